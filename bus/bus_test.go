package bus

/*
 * threeb1 - CPU bus router, I/O register file, and DMA engine
 *
 * Copyright (c) 2026, the threeb1 authors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

import "testing"

type fakeCPU struct {
	supervisor  bool
	busErrors   int
	timeslices  int
}

func (f *fakeCPU) PulseBusError()       { f.busErrors++ }
func (f *fakeCPU) EndTimeslice()        { f.timeslices++ }
func (f *fakeCPU) StatusRegister() uint16 {
	if f.supervisor {
		return supervisorBit
	}
	return 0
}

func newTestBus(supervisor bool) (*Bus, *fakeCPU) {
	cpu := &fakeCPU{supervisor: supervisor}
	b := New(cpu, nil, 256*1024, 2*1024*1024, 2*1024*1024)
	return b, cpu
}

func TestROMOverlayAtBoot(t *testing.T) {
	b, _ := newTestBus(true)
	for i, v := range []byte{0x11, 0x22, 0x33, 0x44} {
		b.ROM.Write8(uint32(i), v)
	}

	if got := b.Read32(0); got != b.Read32(romStart) {
		t.Fatalf("overlay mismatch: read32(0)=%#x read32(rom)=%#x", got, b.Read32(romStart))
	}

	// Set ROMLMAP via the general control register (bits 12-14 select
	// sub-register 1), then the low window should route to RAM.
	b.Write16(0xE41000, 0x8000)
	if !b.ROMLMAP() {
		t.Fatal("expected ROMLMAP to be set")
	}
	b.BaseRAM.Write32(0, 0xCAFEBABE)
	if got := b.Read32(0); got != 0xCAFEBABE {
		t.Errorf("after ROMLMAP set, read32(0) = %#x, expected RAM contents", got)
	}
}

func TestPageFaultScenario(t *testing.T) {
	b, cpu := newTestBus(false)
	// ROMLMAP set so the low window routes to the page table rather
	// than overlaying onto ROM (which would fault UIE, not PAGEFAULT).
	b.romlmap = true
	// map entry for page 0x100 left at zero: not present.
	got := b.Read8(0x100000)
	if got != 0xFF {
		t.Errorf("page fault read got %#x, expected 0xFF (truncated all-ones)", got)
	}
	if b.GENSTAT() != 0xCBFF {
		t.Errorf("genstat = %#04x, expected 0xCBFF", b.GENSTAT())
	}
	if b.BSR0() != 0x7E10 {
		t.Errorf("bsr0 = %#04x, expected 0x7E10", b.BSR0())
	}
	if b.BSR1() != 0x0000 {
		t.Errorf("bsr1 = %#04x, expected 0x0000", b.BSR1())
	}
	if cpu.busErrors != 1 {
		t.Errorf("expected exactly one bus error pulse, got %d", cpu.busErrors)
	}
}

func TestDirtyBitPromotion(t *testing.T) {
	b, _ := newTestBus(false)
	b.romlmap = true // overlay off, so the low window reaches the page table
	// Page 0x100 (above the kernel window): present, write-enabled,
	// unreferenced, mapped to physical page 0.
	b.MapRAM.Write16(0x100*2, 0xA000)

	b.Write16(0x100000, 0x1234)
	entry := b.Mapper.Entry(0x100000)
	if entry&0x6000 != 0x6000 {
		t.Errorf("entry = %#04x, expected referenced+dirty bits set", entry)
	}
	if got := b.Read16(0x100000); got != 0x1234 {
		t.Errorf("read back %#04x, expected 0x1234", got)
	}
}

func TestUserModeAboveRAMWindowIsUIE(t *testing.T) {
	b, cpu := newTestBus(false)
	got := b.Read16(0x500000)
	if got != 0xFFFF {
		t.Errorf("got %#04x expected 0xFFFF", got)
	}
	if b.GENSTAT() != 0xDAFF {
		t.Errorf("genstat = %#04x, expected 0xDAFF", b.GENSTAT())
	}
	if cpu.busErrors != 1 {
		t.Errorf("expected one bus error pulse, got %d", cpu.busErrors)
	}
}

func TestSupervisorBypassesAccessCheck(t *testing.T) {
	b, cpu := newTestBus(true)
	b.romlmap = true // overlay off, so address 0 reaches RAM
	b.Write32(0x000000, 0xDEADBEEF)
	if cpu.busErrors != 0 {
		t.Errorf("supervisor write should not fault, got %d bus errors", cpu.busErrors)
	}
	if got := b.Read32(0x000000); got != 0xDEADBEEF {
		t.Errorf("got %#x expected 0xDEADBEEF", got)
	}
}

func TestDMACountRoundTrip(t *testing.T) {
	b, _ := newTestBus(true)
	b.romlmap = true // overlay off, so zone A is not lifted into zone B
	b.Write16(0x460000, 0x1234) // any zone-A address selecting DMACOUNT (0x060000)
	want := uint32(((0x1234 & 0x3FFF) + 1) & 0x3FFF | 0xC000)
	if got := b.Read16(0x460000); uint32(got) != want {
		t.Errorf("DMACOUNT round trip got %#x expected %#x", got, want)
	}
}

func TestDMADummyTransfer(t *testing.T) {
	b, _ := newTestBus(true)
	b.romlmap = true // overlay off, so zone A is not lifted into zone B
	b.MapRAM.Write16(0, 0x2000) // page 0 present (the mapper does not check write-enable)
	b.dmaAddress = 0

	b.Write16(0x460000, 0x0000) // idmarw (bit14) and dmaen (bit15) both clear
	if got := b.BaseRAM.Read16(0); got != 0xDEAD {
		t.Errorf("dummy DMA transfer got %#04x at RAM[0], expected 0xDEAD", got)
	}
}

func TestCLRSTATResetsFaultRegisters(t *testing.T) {
	b, cpu := newTestBus(false)
	b.romlmap = true // overlay off, so zone A is not lifted into zone B
	b.Read8(0x100000) // force a page fault to populate the fault registers
	cpu.supervisor = true // a user-mode write to zone A would itself fault UIE
	b.Write16(0x4C0000, 0) // any value written to CLRSTAT (0x0C0000)
	if b.GENSTAT() != 0xFFFF || b.BSR0() != 0xFFFF || b.BSR1() != 0xFFFF {
		t.Errorf("after CLRSTAT: genstat=%#04x bsr0=%#04x bsr1=%#04x, expected all 0xFFFF",
			b.GENSTAT(), b.BSR0(), b.BSR1())
	}
}

func TestRAMRoundTripAllWidths(t *testing.T) {
	b, _ := newTestBus(true)
	b.romlmap = true // overlay off, so the low window reaches RAM
	b.Write8(0x000010, 0xAB)
	if got := b.Read8(0x000010); got != 0xAB {
		t.Errorf("8-bit round trip got %#x expected 0xAB", got)
	}
	b.Write16(0x000020, 0xBEEF)
	if got := b.Read16(0x000020); got != 0xBEEF {
		t.Errorf("16-bit round trip got %#x expected 0xBEEF", got)
	}
	b.Write32(0x000030, 0x01020304)
	if got := b.Read32(0x000030); got != 0x01020304 {
		t.Errorf("32-bit round trip got %#x expected 0x01020304", got)
	}
}

func TestDISKCONResetsFDC(t *testing.T) {
	b, _ := newTestBus(true)
	b.romlmap = true // overlay off, so zone A is not lifted into zone B
	b.FDC.WriteReg(0, 0x00) // RESTORE with no image attached raises IRQ (not ready)
	if !b.FDC.IRQ() {
		t.Fatal("expected IRQ pending before DISKCON reset")
	}
	b.Write16(0x4E0000, 0x0000) // bit 7 clear pulses FDC reset
	if b.FDC.IRQ() {
		t.Error("FDC should not have a pending IRQ right after a DISKCON reset")
	}
}
