/*
 * threeb1 - Address mapper and access checker
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

// Package mapper implements the 3B1 paged virtual-to-physical
// translation for the low 4 MiB of address space, and the permission
// check that gates every bus cycle through it.
package mapper

import "threeb1/memory"

// Verdict is the outcome of a permission check for one bus cycle.
type Verdict int

const (
	Allowed Verdict = iota
	PageFault
	UIE
	Kernel
	PageNoWE
)

func (v Verdict) String() string {
	switch v {
	case Allowed:
		return "ALLOWED"
	case PageFault:
		return "PAGEFAULT"
	case UIE:
		return "UIE"
	case Kernel:
		return "KERNEL"
	case PageNoWE:
		return "PAGE_NO_WE"
	default:
		return "UNKNOWN"
	}
}

// ramWindow is the size of the paged window at the bottom of the
// address space; addresses at or above it bypass translation and
// permission checks treat them as the user-inaccessible I/O/ROM area.
const ramWindow = 0x400000

// kernelWindow is the size of the kernel-reserved region at the
// bottom of the paged window.
const kernelWindow = 0x080000

// PageTable wraps the 2 KiB map RAM region (1024 big-endian 16-bit
// entries) with the translation and permission-check operations the
// bus router needs.
type PageTable struct {
	mapRAM *memory.Region
}

// New builds a PageTable over an already-allocated 2 KiB map RAM region.
func New(mapRAM *memory.Region) *PageTable {
	return &PageTable{mapRAM: mapRAM}
}

func entryOffset(addr uint32) uint32 {
	page := (addr >> 12) & 0x3FF
	return page * 2
}

// Entry returns the raw map entry for addr without side effects.
func (p *PageTable) Entry(addr uint32) uint16 {
	return p.mapRAM.Read16(entryOffset(addr))
}

// Check performs the access check of spec.md §4.2: it never mutates
// map RAM, only inspects it.
func (p *PageTable) Check(addr uint32, writing, supervisor bool) Verdict {
	if supervisor {
		return Allowed
	}
	if addr >= ramWindow {
		return UIE
	}
	entry := p.Entry(addr)
	pagebits := (entry >> 13) & 0x07
	if pagebits&0x03 == 0 {
		return PageFault
	}
	if addr < kernelWindow {
		return Kernel
	}
	if writing && pagebits&0x04 == 0 {
		return PageNoWE
	}
	return Allowed
}

// Translate performs the Address Mapper of spec.md §4.1: for addresses
// below the paged window it resolves the physical page and, if the
// page is present, promotes the referenced/dirty bits in place.
// Addresses at or above the paged window pass through unchanged and
// untouched.
func (p *PageTable) Translate(addr uint32, writing bool) uint32 {
	if addr >= ramWindow {
		return addr
	}
	off := entryOffset(addr)
	entry := p.mapRAM.Read16(off)
	physPage := uint32(entry) & 0x3FF

	if pagebits := (entry >> 13) & 0x03; pagebits != 0 {
		hi := byte(entry >> 8)
		if writing {
			hi |= 0x60
		} else {
			hi |= 0x40
		}
		entry = uint16(hi)<<8 | (entry & 0x00FF)
		p.mapRAM.Write16(off, entry)
	}

	return (physPage << 12) | (addr & 0xFFF)
}
