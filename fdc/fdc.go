/*
 * threeb1 - WD2797 floppy disk controller model
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

// Package fdc models the WD2797 floppy disk controller as a
// command-driven state machine backed by a flat sector image. It does
// not model seek timing, index pulses, or head load delay: every
// command that needs real data reads or writes the image synchronously
// the moment it is issued, and the DATA register is drained or filled
// by the caller one byte at a time exactly as the real DMA engine
// would.
package fdc

import (
	"errors"
	"log/slog"
)

// Register selects one of the four addressable WD2797 registers.
type Register int

const (
	RegStatus Register = 0
	RegTrack  Register = 1
	RegSector Register = 2
	RegData   Register = 3
)

// Status bits returned from RegStatus.
const (
	statusBusy      uint8 = 0x01
	statusDRQ       uint8 = 0x02
	statusTrack0    uint8 = 0x04
	statusLostData  uint8 = 0x04
	statusCRCErr    uint8 = 0x08
	statusSeekErr   uint8 = 0x10
	statusNotReady  uint8 = 0x80
	statusHeadLoad  uint8 = 0x20
	statusWriteProt uint8 = 0x40
	statusRNF       uint8 = 0x10
)

// Image is the capability set the FDC needs from its backing file: a
// random-access byte store, not a concrete *os.File.
type Image interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Flush() error
	Size() int64
}

// Geometry describes a floppy image's layout.
type Geometry struct {
	SectorSize      int
	SectorsPerTrack int
	Heads           int
	Tracks          int
}

// Controller is one WD2797 instance.
type Controller struct {
	geom Geometry

	track, head, sector int
	trackReg             int
	dataReg              uint8
	lastStepDir          int

	data    []byte
	dataPos int
	dataLen int

	status     uint8
	irq        bool
	cmdHasDRQ  bool
	formatting bool
	writeable  bool
	writePos   int // -1 means no pending write target

	image Image

	log *slog.Logger
}

// New returns an FDC with no image attached.
func New(log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{log: log, lastStepDir: 1, writePos: -1}
	c.Reset()
	return c
}

// Reset clears positioning, IRQ, and the data buffer without freeing
// it. Image, geometry, and write-enable state are untouched; this is
// the effect of a DISKCON write with bit 7 clear.
func (c *Controller) Reset() {
	c.track, c.head, c.sector = 0, 0, 0
	c.trackReg = 0
	c.dataReg = 0
	c.lastStepDir = 1
	c.dataPos, c.dataLen = 0, 0
	c.status = 0
	c.irq = false
	c.cmdHasDRQ = false
	c.formatting = false
	c.writePos = -1
}

// Load attaches image with the given geometry, validates that the
// image size divides evenly into whole tracks, and sizes the data
// buffer to hold one track.
func (c *Controller) Load(image Image, geom Geometry, writeable bool) error {
	trackBytes := geom.SectorSize * geom.SectorsPerTrack * geom.Heads
	if trackBytes <= 0 {
		return errors.New("fdc: invalid geometry")
	}
	size := image.Size()
	if size <= 0 || size%int64(trackBytes) != 0 {
		return errors.New("fdc: geometry does not divide image size into whole tracks")
	}
	geom.Tracks = int(size / int64(trackBytes))
	if geom.Tracks < 1 {
		return errors.New("fdc: image has no complete tracks")
	}

	c.image = image
	c.geom = geom
	c.writeable = writeable
	if need := geom.SectorSize * geom.SectorsPerTrack; len(c.data) < need {
		c.data = make([]byte, need)
	}
	c.Reset()
	return nil
}

// Unload detaches the image and clears geometry. The data buffer
// allocation is left in place.
func (c *Controller) Unload() {
	c.image = nil
	c.geom = Geometry{}
	c.writeable = false
	c.Reset()
}

// Attached reports whether an image is loaded.
func (c *Controller) Attached() bool {
	return c.image != nil
}

// IRQ reports whether the controller has an unacknowledged interrupt.
func (c *Controller) IRQ() bool {
	return c.irq
}

// DRQ reports whether the controller has (or wants) a byte for the
// DMA engine: it is defined purely in terms of the buffer cursor.
func (c *Controller) DRQ() bool {
	return c.dataPos < c.dataLen
}

func (c *Controller) raiseIRQ() {
	c.irq = true
}

// ReadReg reads one of the four addressable registers.
func (c *Controller) ReadReg(reg Register) uint8 {
	switch reg {
	case RegStatus:
		return c.readStatus()
	case RegTrack:
		return uint8(c.trackReg)
	case RegSector:
		return uint8(c.sector)
	case RegData:
		return c.readData()
	default:
		return 0xFF
	}
}

// WriteReg writes one of the four addressable registers.
func (c *Controller) WriteReg(reg Register, val uint8) {
	switch reg {
	case RegStatus:
		c.command(val)
	case RegTrack:
		c.trackReg = int(val)
	case RegSector:
		c.sector = int(val)
	case RegData:
		c.writeData(val)
	}
}

func (c *Controller) readStatus() uint8 {
	c.irq = false
	result := c.status
	pending := c.dataPos < c.dataLen
	if c.cmdHasDRQ {
		if pending {
			result |= statusBusy | statusDRQ | 0x80
		}
	} else if pending {
		result |= statusBusy
	}
	return result
}

func (c *Controller) readData() uint8 {
	if c.dataPos < c.dataLen {
		v := c.data[c.dataPos]
		c.dataPos++
		if c.dataPos == c.dataLen {
			c.raiseIRQ()
		}
		return v
	}
	return c.dataReg
}

func (c *Controller) writeData(val uint8) {
	c.dataReg = val
	active := c.dataPos < c.dataLen && (c.writePos >= 0 || c.formatting)
	if !active {
		return
	}
	if !c.formatting {
		c.data[c.dataPos] = val
	}
	c.dataPos++

	if !c.formatting && c.dataPos == c.dataLen {
		if c.image != nil {
			c.image.WriteAt(c.data[:c.dataLen], int64(c.writePos))
			c.image.Flush()
		}
		c.raiseIRQ()
		c.writePos = -1
		c.formatting = false
	}
}

// DMAMiss is invoked by the DMA engine when it fails to service a
// pending DRQ in time: the transfer is abandoned and a lost-data
// error is reported.
func (c *Controller) DMAMiss() {
	c.dataPos = c.dataLen
	c.status = statusLostData
	c.writePos = 0
	c.raiseIRQ()
}

// command decodes a write to RegStatus as a WD2797 command.
func (c *Controller) command(cmd uint8) {
	c.irq = false
	if !c.Attached() {
		c.status = statusNotReady
		c.raiseIRQ()
		return
	}

	switch cmd >> 4 {
	case 0x0:
		c.restore(cmd)
	case 0x1:
		c.seek(cmd)
	case 0x2, 0x3:
		c.step(cmd)
	case 0x4, 0x5:
		c.stepIn(cmd)
	case 0x6, 0x7:
		c.stepOut(cmd)
	case 0x8, 0x9:
		c.readSector(cmd)
	case 0xA, 0xB:
		c.writeSector(cmd)
	case 0xC:
		c.readAddress(cmd)
	case 0xD:
		c.forceInterrupt(cmd)
	case 0xE:
		c.readTrack(cmd)
	case 0xF:
		c.formatTrack(cmd)
	}
}

func (c *Controller) clearTransfer() {
	c.dataPos, c.dataLen = 0, 0
}

func (c *Controller) finishType1(seekErr bool) {
	c.clearTransfer()
	c.cmdHasDRQ = false
	status := statusHeadLoad
	if c.track == 0 {
		status |= statusTrack0
	}
	if seekErr {
		status |= statusSeekErr
	}
	c.status = status
	c.raiseIRQ()
}

func (c *Controller) restore(_ uint8) {
	c.track = 0
	c.trackReg = 0
	c.finishType1(false)
}

func (c *Controller) seek(_ uint8) {
	seekErr := false
	if int(c.dataReg) < c.geom.Tracks {
		c.track = int(c.dataReg)
		c.trackReg = int(c.dataReg)
	} else {
		seekErr = true
	}
	c.finishType1(seekErr)
}

func clamp(v, lo, hi int) (int, bool) {
	if v < lo {
		return lo, false
	}
	if v > hi {
		return hi, true
	}
	return v, false
}

func (c *Controller) moveHead(dir int, updateTrackReg bool) {
	maxTrack := c.geom.Tracks - 1
	if maxTrack < 0 {
		maxTrack = 0
	}
	track, clampedUp := clamp(c.track+dir, 0, maxTrack)
	c.track = track
	if updateTrackReg {
		c.trackReg = c.track
	}
	c.finishType1(clampedUp && dir > 0)
}

func (c *Controller) step(cmd uint8) {
	c.moveHead(c.lastStepDir, cmd&0x10 != 0)
}

func (c *Controller) stepIn(cmd uint8) {
	c.lastStepDir = 1
	c.moveHead(c.lastStepDir, cmd&0x10 != 0)
}

func (c *Controller) stepOut(cmd uint8) {
	c.lastStepDir = -1
	c.moveHead(c.lastStepDir, cmd&0x10 != 0)
}

func bit1(v uint8) int {
	return int((v >> 1) & 1)
}

func (c *Controller) validCHS(sectorCount int) bool {
	return c.track <= c.geom.Tracks-1 && c.head <= c.geom.Heads-1 &&
		c.sector != 0 && c.sector <= sectorCount
}

func (c *Controller) lba(sectorOffset int) int64 {
	spt := c.geom.SectorsPerTrack
	idx := c.track*c.geom.Heads*spt + c.head*spt + (c.sector - 1) + sectorOffset
	return int64(idx) * int64(c.geom.SectorSize)
}

func (c *Controller) readSector(cmd uint8) {
	c.head = bit1(cmd)
	c.cmdHasDRQ = true
	if !c.validCHS(c.geom.SectorsPerTrack) {
		c.status = statusRNF
		c.raiseIRQ()
		return
	}

	count := 1
	if cmd&0x10 != 0 {
		count = c.geom.SectorsPerTrack
	}

	c.clearTransfer()
	need := count * c.geom.SectorSize
	if cap(c.data) < need {
		c.data = make([]byte, need)
	}
	c.data = c.data[:need]
	for i := 0; i < count; i++ {
		off := i * c.geom.SectorSize
		if _, err := c.image.ReadAt(c.data[off:off+c.geom.SectorSize], c.lba(i)); err != nil {
			c.log.Error("fdc: sector read failed", "err", err)
		}
	}
	c.dataLen = need

	c.status = 0
	if c.dataPos < c.dataLen {
		c.status = statusDRQ
	}
}

func (c *Controller) writeSector(cmd uint8) {
	c.head = bit1(cmd)
	c.cmdHasDRQ = true
	if !c.writeable {
		c.status = statusWriteProt
		c.raiseIRQ()
		return
	}
	if !c.validCHS(c.geom.SectorsPerTrack) {
		c.status = statusRNF
		c.raiseIRQ()
		return
	}

	count := 1
	if cmd&0x10 != 0 {
		count = c.geom.SectorsPerTrack
	}

	c.writePos = int(c.lba(0))
	need := count * c.geom.SectorSize
	if cap(c.data) < need {
		c.data = make([]byte, need)
	}
	c.data = c.data[:need]
	c.dataLen = need
	c.dataPos = 0
	c.status = statusDRQ
}

func sizeCode(sectorSize int) uint8 {
	switch sectorSize {
	case 128:
		return 0
	case 256:
		return 1
	case 512:
		return 2
	case 1024:
		return 3
	default:
		return 0xFF
	}
}

func (c *Controller) readAddress(_ uint8) {
	c.cmdHasDRQ = true
	c.clearTransfer()
	if cap(c.data) < 6 {
		c.data = make([]byte, 6)
	}
	c.data = c.data[:6]
	c.data[0] = uint8(c.track)
	c.data[1] = uint8(c.head)
	c.data[2] = uint8(c.sector)
	c.data[3] = sizeCode(c.geom.SectorSize)
	c.data[4] = 0
	c.data[5] = 0
	c.dataLen = 6
	c.status = statusDRQ
}

func (c *Controller) readTrack(_ uint8) {
	c.cmdHasDRQ = false
	c.clearTransfer()
	c.status = statusRNF
	c.raiseIRQ()
}

// formatBytes is the fixed track image size produced by FORMAT TRACK;
// the emulated geometry never changes, so the bytes written during a
// format are consumed and discarded rather than re-laid-out on disk.
const formatBytes = 7170

func (c *Controller) formatTrack(_ uint8) {
	c.cmdHasDRQ = true
	if !c.writeable {
		c.status = statusWriteProt
		c.raiseIRQ()
		return
	}
	c.dataLen = formatBytes
	c.dataPos = 0
	c.formatting = true
	c.status = statusDRQ
}

func (c *Controller) forceInterrupt(cmd uint8) {
	c.cmdHasDRQ = false
	status := statusHeadLoad
	if !c.writeable {
		status |= statusWriteProt
	}
	if c.track == 0 {
		status |= statusTrack0
	}
	c.status = status
	c.clearTransfer()
	if cmd&0x08 != 0 {
		c.raiseIRQ()
	}
}
