/*
 * threeb1 - Backing store regions
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

// Package memory implements the backing stores of the 3B1 core: ROM,
// base and expansion RAM, map RAM, and video RAM. Every store shares
// the same Region abstraction, a size-masked big-endian byte buffer,
// so the bus router can treat them uniformly regardless of width.
package memory

import "fmt"

// Region is a contiguous byte buffer addressable in 8/16/32-bit
// big-endian units. Offsets are masked by size-1, so an unaligned or
// out-of-range access wraps within the buffer instead of panicking.
// Size must be a power of two.
type Region struct {
	name string
	buf  []byte
	mask uint32
}

// NewRegion allocates a zeroed region of size bytes. size must be a
// power of two; NewRegion panics otherwise, since every caller in
// this module picks sizes from fixed hardware constants.
func NewRegion(name string, size int) *Region {
	if size <= 0 || size&(size-1) != 0 {
		panic(fmt.Sprintf("memory: region %q size %d is not a power of two", name, size))
	}
	return &Region{name: name, buf: make([]byte, size), mask: uint32(size - 1)}
}

// Name returns the region's diagnostic name.
func (r *Region) Name() string { return r.name }

// Len returns the region's size in bytes.
func (r *Region) Len() int { return len(r.buf) }

// Bytes exposes the raw backing slice, for bulk load operations
// (ROM images, floppy geometry probes) that fall outside the
// width-masked accessors.
func (r *Region) Bytes() []byte { return r.buf }

// LoadAt copies data into the region starting at offset 0, truncating
// if data is larger than the region. It returns the number of bytes
// copied.
func (r *Region) LoadAt(data []byte) int {
	return copy(r.buf, data)
}

func (r *Region) off(offset uint32) uint32 {
	return offset & r.mask
}

// Read8 returns the byte at offset, wrapped within the region.
func (r *Region) Read8(offset uint32) uint8 {
	return r.buf[r.off(offset)]
}

// Write8 stores a byte at offset, wrapped within the region.
func (r *Region) Write8(offset uint32, v uint8) {
	r.buf[r.off(offset)] = v
}

// Read16 returns the big-endian 16-bit value at offset. The high and
// low byte offsets are each wrapped independently, matching the
// hardware's flat address-mask behavior at the end of the buffer.
func (r *Region) Read16(offset uint32) uint16 {
	hi := r.buf[r.off(offset)]
	lo := r.buf[r.off(offset+1)]
	return uint16(hi)<<8 | uint16(lo)
}

// Write16 stores a big-endian 16-bit value at offset.
func (r *Region) Write16(offset uint32, v uint16) {
	r.buf[r.off(offset)] = byte(v >> 8)
	r.buf[r.off(offset+1)] = byte(v)
}

// Read32 returns the big-endian 32-bit value at offset, built from
// two 16-bit halves as the original hardware macros did.
func (r *Region) Read32(offset uint32) uint32 {
	hi := r.Read16(offset)
	lo := r.Read16(offset + 2)
	return uint32(hi)<<16 | uint32(lo)
}

// Write32 stores a big-endian 32-bit value at offset.
func (r *Region) Write32(offset uint32, v uint32) {
	r.Write16(offset, uint16(v>>16))
	r.Write16(offset+2, uint16(v))
}
