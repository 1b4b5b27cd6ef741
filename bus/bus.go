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

// Package bus decodes the 3B1's 24-bit CPU address space, applies the
// ROM overlay and page-table access check ahead of every cycle, and
// implements the memory-mapped I/O register file and the DMA engine
// that pulls WD2797 data into RAM on the CPU's behalf.
package bus

import (
	"log/slog"

	"threeb1/fdc"
	"threeb1/mapper"
	"threeb1/memory"
)

// CPU is the collaborator the bus reports faults and timeslice
// boundaries to. The core never drives the CPU directly; it only
// calls back into it the way a real bus-error trap or interrupt line
// would.
type CPU interface {
	PulseBusError()
	StatusRegister() uint16
	EndTimeslice()
}

// supervisorBit is bit 13 of the 68010 status register (the S-bit).
const supervisorBit = 0x2000

const (
	ramWindowEnd  = 0x3FFFFF
	ioZoneAStart  = 0x400000
	ioZoneAEnd    = 0x7FFFFF
	romStart      = 0x800000
	romEnd        = 0xBFFFFF
	ioZoneBStart  = 0xC00000
	ioZoneBEnd    = 0xFFFFFF
	romOverlayBit = 0x800000
	baseRAMEnd    = 0x1FFFFF
)

// Bus is the 3B1 core: backing stores, page table, I/O register file,
// DMA engine and FDC, wired to a single CPU collaborator.
type Bus struct {
	ROM     *memory.Region
	BaseRAM *memory.Region
	ExpRAM  *memory.Region
	MapRAM  *memory.Region
	VRAM    *memory.Region

	Mapper *mapper.PageTable
	FDC    *fdc.Controller

	cpu CPU
	log *slog.Logger

	genstat, bsr0, bsr1 uint16
	dmaCount            uint16
	dmaAddress          uint32
	idmarw, dmaen       bool
	dmaReading          bool
	leds                uint8
	pie, romlmap        bool
}

// New builds a Bus over freshly sized backing stores. romSize,
// baseRAMSize and expRAMSize must be powers of two, per memory.Region.
func New(cpu CPU, log *slog.Logger, romSize, baseRAMSize, expRAMSize int) *Bus {
	if log == nil {
		log = slog.Default()
	}
	mapRAM := memory.NewRegion("map", 2048)
	b := &Bus{
		ROM:     memory.NewRegion("rom", romSize),
		BaseRAM: memory.NewRegion("base_ram", baseRAMSize),
		ExpRAM:  memory.NewRegion("exp_ram", expRAMSize),
		MapRAM:  mapRAM,
		VRAM:    memory.NewRegion("vram", 32*1024),
		Mapper:  mapper.New(mapRAM),
		FDC:     fdc.New(log),
		cpu:     cpu,
		log:     log,
	}
	b.Reset()
	return b
}

// Reset restores the fault registers and ROM overlay to their
// power-on state: genstat/bsr0/bsr1 all-ones, ROM mapped at virtual 0.
func (b *Bus) Reset() {
	b.genstat, b.bsr0, b.bsr1 = 0xFFFF, 0xFFFF, 0xFFFF
	b.romlmap = false
}

func (b *Bus) supervisor() bool {
	return b.cpu.StatusRegister()&supervisorBit != 0
}

// applyROMOverlay implements §4.3 step 1: while ROMLMAP is clear, bit
// 23 is set in every CPU address, so the low window reads the ROM at
// 0x800000 and zone A addresses (0x4xxxxx) land in zone B (0xCxxxxx).
func (b *Bus) applyROMOverlay(addr uint32) uint32 {
	if !b.romlmap {
		return addr | romOverlayBit
	}
	return addr
}

// width is measured in bytes (1, 2 or 4) throughout this package.
func (b *Bus) checkAndFault(addr uint32, width int, writing bool) (ok bool, faultValue uint32) {
	verdict := b.Mapper.Check(addr, writing, b.supervisor())
	if verdict == mapper.Allowed {
		return true, 0
	}

	switch verdict {
	case mapper.PageFault:
		if writing {
			b.genstat = 0x8BFF
		} else {
			b.genstat = 0xCBFF
		}
		if b.pie {
			b.genstat |= 0x0400
		}
	case mapper.UIE:
		if writing {
			b.genstat = 0x9AFF
		} else {
			b.genstat = 0xDAFF
		}
		if b.pie {
			b.genstat |= 0x0400
		}
	default:
		// KERNEL and PAGE_NO_WE: genstat is left untouched, a
		// behavior the source TODOs rather than implements.
	}

	if width >= 2 {
		b.bsr0 = 0x7C00
	} else if addr&1 != 0 {
		b.bsr0 = 0x7D00
	} else {
		b.bsr0 = 0x7E00
	}
	b.bsr0 |= uint16((addr >> 16) & 0xFF)
	b.bsr1 = uint16(addr & 0xFFFF)

	b.cpu.PulseBusError()
	return false, 0xFFFFFFFF
}

// read is the single dispatcher behind Read8/16/32: the eight CPU
// entry points are near-identical wrappers over this routine and
// write, parameterised by width and direction.
func (b *Bus) read(addr uint32, width int) uint32 {
	addr = b.applyROMOverlay(addr)
	if ok, fault := b.checkAndFault(addr, width, false); !ok {
		return fault
	}
	return b.dispatch(addr, width, 0, false)
}

func (b *Bus) write(addr uint32, width int, val uint32) {
	addr = b.applyROMOverlay(addr)
	if ok, _ := b.checkAndFault(addr, width, true); !ok {
		return
	}
	b.dispatch(addr, width, val, true)
}

// Read8/Read16/Read32 and Write8/Write16/Write32 are the CPU's memory
// hooks, one bus cycle each.
func (b *Bus) Read8(addr uint32) uint8   { return uint8(b.read(addr, 1)) }
func (b *Bus) Read16(addr uint32) uint16 { return uint16(b.read(addr, 2)) }
func (b *Bus) Read32(addr uint32) uint32 { return b.read(addr, 4) }

func (b *Bus) Write8(addr uint32, v uint8)   { b.write(addr, 1, uint32(v)) }
func (b *Bus) Write16(addr uint32, v uint16) { b.write(addr, 2, uint32(v)) }
func (b *Bus) Write32(addr uint32, v uint32) { b.write(addr, 4, v) }

// DisassemblerRead8/16/32 are identical to the CPU read hooks; the
// source gives the disassembler no side-effect-free path, so this
// rewrite preserves that rather than inventing one.
func (b *Bus) DisassemblerRead8(addr uint32) uint8   { return b.Read8(addr) }
func (b *Bus) DisassemblerRead16(addr uint32) uint16 { return b.Read16(addr) }
func (b *Bus) DisassemblerRead32(addr uint32) uint32 { return b.Read32(addr) }

// dispatch implements §4.3 step 3, after ROM overlay and the access
// check have already run.
func (b *Bus) dispatch(addr uint32, width int, val uint32, writing bool) uint32 {
	switch {
	case addr <= ramWindowEnd:
		return b.ramCycle(addr, width, val, writing)
	case addr >= ioZoneAStart && addr <= ioZoneAEnd:
		return b.zoneACycle(addr, width, val, writing)
	case addr >= romStart && addr <= romEnd:
		return b.romCycle(addr, width, val, writing)
	case addr >= ioZoneBStart && addr <= ioZoneBEnd:
		return b.zoneBCycle(addr, width, val, writing)
	default:
		b.log.Warn("bus: address outside any mapped range", "addr", addr)
		return allOnes(width)
	}
}

func allOnes(width int) uint32 {
	switch width {
	case 1:
		return 0xFF
	case 2:
		return 0xFFFF
	default:
		return 0xFFFFFFFF
	}
}

func (b *Bus) ramCycle(addr uint32, width int, val uint32, writing bool) uint32 {
	phys := b.Mapper.Translate(addr, writing)
	return b.ramAt(phys, width, val, writing)
}

// ramAt accesses base_ram/exp_ram by already-translated physical
// address, shared by the normal RAM path and the DMA engine.
func (b *Bus) ramAt(phys uint32, width int, val uint32, writing bool) uint32 {
	var region *memory.Region
	var off uint32
	switch {
	case phys <= baseRAMEnd:
		region, off = b.BaseRAM, phys
	case phys <= ramWindowEnd:
		region, off = b.ExpRAM, phys-(baseRAMEnd+1)
	default:
		if writing {
			return 0
		}
		return allOnes(width)
	}
	return accessRegion(region, off, width, val, writing)
}

func accessRegion(r *memory.Region, off uint32, width int, val uint32, writing bool) uint32 {
	if writing {
		switch width {
		case 1:
			r.Write8(off, uint8(val))
		case 2:
			r.Write16(off, uint16(val))
		default:
			r.Write32(off, val)
		}
		return 0
	}
	switch width {
	case 1:
		return uint32(r.Read8(off))
	case 2:
		return uint32(r.Read16(off))
	default:
		return r.Read32(off)
	}
}

func (b *Bus) romCycle(addr uint32, width int, val uint32, writing bool) uint32 {
	if writing {
		return 0
	}
	return accessRegion(b.ROM, addr-romStart, width, 0, false)
}

// zoneACycle implements the 0x400000-0x7FFFFF sub-selection of §4.3/§4.4.
func (b *Bus) zoneACycle(addr uint32, width int, val uint32, writing bool) uint32 {
	switch addr & 0x0F0000 {
	case 0x000000:
		off := addr & 0xFFFF
		if int(off) >= b.MapRAM.Len() {
			b.log.Warn("bus: map RAM mirror access", "addr", addr)
		}
		return accessRegion(b.MapRAM, off, width, val, writing)
	case 0x020000:
		off := addr & 0xFFFF
		if int(off) >= b.VRAM.Len() {
			b.log.Warn("bus: video RAM mirror access", "addr", addr)
		}
		return accessRegion(b.VRAM, off, width, val, writing)
	default:
		return b.zoneARegister(addr, width, val, writing)
	}
}

func (b *Bus) zoneARegister(addr uint32, width int, val uint32, writing bool) uint32 {
	switch addr & 0x0F0000 {
	case 0x010000: // GENSTAT
		if writing {
			b.genstat = regWrite(b.genstat, addr, width, val)
			return 0
		}
		return regRead(b.genstat, width)
	case 0x030000: // BSR0, read-only
		if writing {
			return 0
		}
		return regRead(b.bsr0, width)
	case 0x040000: // BSR1, read-only
		if writing {
			return 0
		}
		return regRead(b.bsr1, width)
	case 0x060000: // DMACOUNT
		if writing {
			b.writeDMACount(uint16(val))
			return 0
		}
		return uint32((b.dmaCount & 0x3FFF) | 0xC000)
	case 0x070000: // LPRSTAT, read-only
		if writing {
			return 0
		}
		v := uint16(0x0012)
		if b.FDC.IRQ() {
			v |= 0x0008
		}
		return regRead(v, width)
	case 0x0A0000: // MISCCON
		if writing {
			b.dmaReading = val&0x4000 != 0
			b.leds = ^uint8((val>>8)&0x0F) & 0x0F
		}
		return 0
	case 0x0C0000: // CLRSTAT
		if writing {
			b.genstat, b.bsr0, b.bsr1 = 0xFFFF, 0xFFFF, 0xFFFF
		}
		return 0
	case 0x0D0000: // DMA ADDR: address-as-data, the write value is ignored
		if writing {
			b.writeDMAAddress(addr)
		}
		return 0
	case 0x0E0000: // DISKCON
		if writing {
			if val&0x80 == 0 {
				b.FDC.Reset()
			}
		}
		return 0
	default:
		b.log.Warn("bus: unhandled zone A I/O", "addr", addr)
		return allOnes(width)
	}
}

// regRead duplicates a 16-bit register into both halves of a 32-bit
// read, per §4.4's "size 16 enforced" note.
func regRead(v uint16, width int) uint32 {
	if width >= 4 {
		return uint32(v)<<16 | uint32(v)
	}
	return uint32(v)
}

// regWrite applies an 8/16-bit write to a 16-bit register, preserving
// the untouched byte on a narrow write.
func regWrite(v uint16, addr uint32, width int, val uint32) uint16 {
	if width == 1 {
		if addr&1 == 0 {
			return uint16(val)<<8 | (v & 0x00FF)
		}
		return (v &^ 0x00FF) | uint16(val&0xFF)
	}
	return uint16(val)
}

func (b *Bus) writeDMACount(val uint16) {
	b.dmaCount = val & 0x3FFF
	b.idmarw = val&0x4000 != 0
	b.dmaen = val&0x8000 != 0
	b.dmaCount = (b.dmaCount + 1) & 0x3FFF

	if !b.idmarw {
		phys := b.Mapper.Translate(b.dmaAddress, true)
		b.ramAt(phys, 2, 0xDEAD, true)
	}
}

// writeDMAAddress implements the DMA ADDR register's address-as-data
// encoding: the bus address being written to, not the data bus value,
// carries the new bits. This has not been cross-checked against the
// 3B1 TRM and is preserved verbatim from the source.
func (b *Bus) writeDMAAddress(addr uint32) {
	if addr&0x4000 != 0 {
		b.dmaAddress = (b.dmaAddress & 0x1FF) | (uint32(addr&0x3FFE) << 8)
	} else {
		b.dmaAddress = (b.dmaAddress &^ 0x1FF) | uint32(addr&0x1FE)
	}
}

// zoneBCycle implements the 0xC00000-0xFFFFFF decode: only the
// 0xE00000-0xEFFFFF sub-range carries defined registers (FDC, general
// control); everything else is an expansion slot or unimplemented
// peripheral that accepts writes and idles on read.
func (b *Bus) zoneBCycle(addr uint32, width int, val uint32, writing bool) uint32 {
	if addr&0xF00000 != 0xE00000 {
		return b.unimplementedPeripheral(addr, width, writing)
	}

	switch addr & 0x0F0000 {
	case 0x010000: // FDC
		reg := fdc.Register((addr >> 1) & 3)
		// Every FDC register access is the one suspension point the
		// tick loop gets: mark the timeslice for early termination so
		// it can re-poll IRQ before the next instruction.
		b.cpu.EndTimeslice()
		if writing {
			b.FDC.WriteReg(reg, uint8(val))
			return 0
		}
		return regRead(uint16(b.FDC.ReadReg(reg)), width)
	case 0x040000: // General Control
		return b.generalControl(addr, width, val, writing)
	default:
		return b.unimplementedPeripheral(addr, width, writing)
	}
}

func (b *Bus) unimplementedPeripheral(addr uint32, width int, writing bool) uint32 {
	if writing {
		return 0
	}
	b.log.Debug("bus: expansion/peripheral register read, returning idle value", "addr", addr)
	return allOnes(width)
}

// generalControl sub-selects by bits 12-14 of the address, per §4.4.
func (b *Bus) generalControl(addr uint32, width int, val uint32, writing bool) uint32 {
	if !writing {
		return allOnes(width)
	}
	switch (addr >> 12) & 0x07 {
	case 0: // PIE
		b.pie = val&0x8000 != 0
	case 1: // ROMLMAP
		b.romlmap = val&0x8000 != 0
	default:
		// L1/L2 modem, D/N connect, whole-screen reverse, EE, BP:
		// accepted silently, no modeled effect.
	}
	return 0
}

// GENSTAT, BSR0 and BSR1 let tests and the machine's diagnostic
// surface observe the fault registers without a bus cycle.
func (b *Bus) GENSTAT() uint16 { return b.genstat }
func (b *Bus) BSR0() uint16    { return b.bsr0 }
func (b *Bus) BSR1() uint16    { return b.bsr1 }

// ROMLMAP reports the current state of the ROM overlay bit.
func (b *Bus) ROMLMAP() bool { return b.romlmap }

// PIE reports whether the parity-interrupt-enable bit is set.
func (b *Bus) PIE() bool { return b.pie }

// LEDs returns the current front-panel LED state.
func (b *Bus) LEDs() uint8 { return b.leds }

// DMAAddress and DMACount expose the DMA engine's live address and
// countdown, mostly for tests and diagnostics.
func (b *Bus) DMAAddress() uint32 { return b.dmaAddress }
func (b *Bus) DMACount() uint16   { return b.dmaCount }

// StepDMA services one pending WD2797 DRQ: it pulls one 16-bit word
// between the FDC's data register and mapped RAM, in the direction
// dmaReading indicates, and advances dma_address/dma_count. Callers
// invoke this once per bus cycle while dmaen is set and the FDC
// asserts DRQ; there is no background goroutine driving it.
func (b *Bus) StepDMA() {
	if !b.dmaen || !b.FDC.DRQ() {
		return
	}
	if b.dmaCount == 0 {
		b.FDC.DMAMiss()
		return
	}

	phys := b.Mapper.Translate(b.dmaAddress, b.dmaReading)
	if b.dmaReading {
		lo := b.FDC.ReadReg(fdc.RegData)
		hi := b.FDC.ReadReg(fdc.RegData)
		b.ramAt(phys, 2, uint32(lo)<<8|uint32(hi), true)
	} else {
		word := b.ramAt(phys, 2, 0, false)
		b.FDC.WriteReg(fdc.RegData, uint8(word>>8))
		b.FDC.WriteReg(fdc.RegData, uint8(word))
	}

	b.dmaAddress += 2
	b.dmaCount--
}
