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

// Package machine assembles the 3B1 core (backing stores, mapper, bus
// and FDC) into the single process-wide aggregate the CPU interpreter
// drives one bus cycle at a time. Everything outside this aggregate —
// the 68010 interpreter, the SDL front end, the top-level tick loop —
// is an external collaborator reached only through the bus.CPU
// interface and the hook methods of Machine.
package machine

import (
	"fmt"
	"log/slog"
	"os"

	"threeb1/bus"
	"threeb1/diskimage"
	"threeb1/fdc"
)

const (
	defaultROMSize    = 256 * 1024
	defaultBaseRAM    = 2 * 1024 * 1024
	defaultExpRAM     = 2 * 1024 * 1024
	defaultSectorSize = 512
	defaultSectors    = 10
)

// Machine is the process-wide aggregate of spec §3's Machine State: a
// Bus (backing stores, page table, I/O registers, FDC) plus the CPU
// collaborator hooks that drive and are driven by it. It is built as
// an explicit value rather than package-level globals specifically so
// that more than one instance can exist in a test process.
type Machine struct {
	Bus *bus.Bus
	log *slog.Logger
}

// Options configures the backing store sizes at construction time.
// Zero values fall back to the 3B1's stock configuration.
type Options struct {
	ROMSize int
	BaseRAM int
	ExpRAM  int
	Log     *slog.Logger
}

// New builds a Machine with freshly allocated backing stores, wired to
// cpu. The CPU must already exist: the bus calls back into it on
// every fault and never constructs or owns it.
func New(cpu bus.CPU, opts Options) *Machine {
	if opts.ROMSize == 0 {
		opts.ROMSize = defaultROMSize
	}
	if opts.BaseRAM == 0 {
		opts.BaseRAM = defaultBaseRAM
	}
	if opts.ExpRAM == 0 {
		opts.ExpRAM = defaultExpRAM
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Machine{
		Bus: bus.New(cpu, opts.Log, opts.ROMSize, opts.BaseRAM, opts.ExpRAM),
		log: opts.Log,
	}
}

// LoadROM reads path into the ROM region, truncating or zero-padding
// to the region's fixed size.
func (m *Machine) LoadROM(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("machine: load ROM: %w", err)
	}
	if n := m.Bus.ROM.LoadAt(data); n < len(data) {
		m.log.Warn("machine: ROM image truncated to region size", "path", path, "region_size", m.Bus.ROM.Len())
	}
	return nil
}

// LoadFloppy opens path as a flat sector image with the given
// geometry and attaches it to the FDC. writable controls whether
// WRITE SECTOR and FORMAT TRACK commands are honored.
func (m *Machine) LoadFloppy(path string, sectorSize, sectorsPerTrack, heads int, writable bool) error {
	if sectorSize == 0 {
		sectorSize = defaultSectorSize
	}
	if sectorsPerTrack == 0 {
		sectorsPerTrack = defaultSectors
	}
	if heads == 0 {
		heads = 1
	}

	img, err := diskimage.Open(path, writable)
	if err != nil {
		return err
	}
	geom := fdc.Geometry{SectorSize: sectorSize, SectorsPerTrack: sectorsPerTrack, Heads: heads}
	if err := m.Bus.FDC.Load(img, geom, writable && img.Writable()); err != nil {
		return fmt.Errorf("machine: attach floppy: %w", err)
	}
	return nil
}

// EjectFloppy detaches whatever image is currently loaded, if any.
func (m *Machine) EjectFloppy() {
	m.Bus.FDC.Unload()
}

// Reset restores the bus's fault registers and ROM overlay to their
// power-on state. It does not touch RAM contents or the attached
// floppy image.
func (m *Machine) Reset() {
	m.Bus.Reset()
}

// Read8/Read16/Read32, Write8/Write16/Write32 and the Disassembler
// variants are the CPU's memory hooks, forwarded straight to the bus.
func (m *Machine) Read8(addr uint32) uint8    { return m.Bus.Read8(addr) }
func (m *Machine) Read16(addr uint32) uint16  { return m.Bus.Read16(addr) }
func (m *Machine) Read32(addr uint32) uint32  { return m.Bus.Read32(addr) }
func (m *Machine) Write8(addr uint32, v uint8)   { m.Bus.Write8(addr, v) }
func (m *Machine) Write16(addr uint32, v uint16) { m.Bus.Write16(addr, v) }
func (m *Machine) Write32(addr uint32, v uint32) { m.Bus.Write32(addr, v) }

func (m *Machine) DisassemblerRead8(addr uint32) uint8   { return m.Bus.DisassemblerRead8(addr) }
func (m *Machine) DisassemblerRead16(addr uint32) uint16 { return m.Bus.DisassemblerRead16(addr) }
func (m *Machine) DisassemblerRead32(addr uint32) uint32 { return m.Bus.DisassemblerRead32(addr) }

// StepDMA lets the tick loop service one pending FDC DRQ per bus
// cycle, the way the CPU interpreter drives every other hook.
func (m *Machine) StepDMA() {
	m.Bus.StepDMA()
}

// IRQAsserted reports the aggregate interrupt line the tick loop polls
// after every instruction: today this is solely the FDC's IRQ, folded
// through LPRSTAT in hardware and surfaced directly here for the
// interpreter's convenience.
func (m *Machine) IRQAsserted() bool {
	return m.Bus.FDC.IRQ()
}
