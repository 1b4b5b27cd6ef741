package machine

/*
 * threeb1 - Machine aggregate: wires the bus, FDC and CPU collaborator
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

import (
	"os"
	"path/filepath"
	"testing"
)

type fakeCPU struct {
	supervisor bool
	busErrors  int
}

func (f *fakeCPU) PulseBusError()         { f.busErrors++ }
func (f *fakeCPU) EndTimeslice()          {}
func (f *fakeCPU) StatusRegister() uint16 {
	if f.supervisor {
		return 0x2000
	}
	return 0
}

func TestLoadROMTruncatesToRegionSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rom.bin")
	data := make([]byte, 512*1024)
	for i := range data {
		data[i] = byte(i)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	m := New(&fakeCPU{supervisor: true}, Options{ROMSize: 256 * 1024})
	if err := m.LoadROM(path); err != nil {
		t.Fatalf("LoadROM: %v", err)
	}
	if m.Bus.ROM.Len() != 256*1024 {
		t.Fatalf("ROM region size = %d, expected 256 KiB", m.Bus.ROM.Len())
	}
	if got := m.Bus.ROM.Read8(0); got != 0 {
		t.Errorf("ROM[0] = %#x, expected 0", got)
	}
}

func TestLoadAndEjectFloppyThroughMachine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "floppy.img")
	buf := make([]byte, 10*512)
	for i := range buf {
		buf[i] = byte(i)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatal(err)
	}

	m := New(&fakeCPU{supervisor: true}, Options{})
	if err := m.LoadFloppy(path, 512, 10, 1, true); err != nil {
		t.Fatalf("LoadFloppy: %v", err)
	}
	if !m.Bus.FDC.Attached() {
		t.Fatal("expected FDC to report an attached image")
	}

	m.EjectFloppy()
	if m.Bus.FDC.Attached() {
		t.Error("expected FDC to report detached after EjectFloppy")
	}
}

func TestResetRestoresFaultRegisters(t *testing.T) {
	cpu := &fakeCPU{supervisor: false}
	m := New(cpu, Options{})
	m.Read8(0x100000) // the ROM overlay lifts this to 0x900000: a UIE fault, populating genstat/bsr0/bsr1
	if m.Bus.GENSTAT() == 0xFFFF {
		t.Fatal("expected genstat to be disturbed by the page fault")
	}

	m.Reset()
	if m.Bus.GENSTAT() != 0xFFFF || m.Bus.BSR0() != 0xFFFF || m.Bus.BSR1() != 0xFFFF {
		t.Errorf("after Reset: genstat=%#04x bsr0=%#04x bsr1=%#04x, expected all 0xFFFF",
			m.Bus.GENSTAT(), m.Bus.BSR0(), m.Bus.BSR1())
	}
}

func TestIRQAssertedFollowsFDC(t *testing.T) {
	m := New(&fakeCPU{supervisor: true}, Options{})
	if m.IRQAsserted() {
		t.Fatal("expected no IRQ before any FDC command")
	}
	m.Bus.FDC.WriteReg(0, 0x00) // RESTORE with no image raises IRQ
	if !m.IRQAsserted() {
		t.Error("expected IRQAsserted to follow the FDC's IRQ line")
	}
}
