/*
 * threeb1 - Flat floppy image backing file
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

// Package diskimage attaches a raw, flat sector image file to the
// FDC. A real disk file is the normal case, but the FDC only needs
// the {ReadAt, WriteAt, Flush, Size} capability set of fdc.Image, so
// tests can attach an in-memory stand-in instead.
package diskimage

import (
	"errors"
	"fmt"
	"os"
)

// ErrBadGeometry is returned when the file size does not divide
// exactly into whole tracks of the requested geometry.
var ErrBadGeometry = errors.New("diskimage: geometry does not divide file size into whole tracks")

// File is a raw, flat sector image backed by an *os.File.
type File struct {
	f        *os.File
	size     int64
	writable bool
}

// Open attaches path as a floppy image. If writable is false the file
// is opened read-only and WriteAt always fails.
func Open(path string, writable bool) (*File, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("diskimage: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("diskimage: stat %s: %w", path, err)
	}
	return &File{f: f, size: info.Size(), writable: writable}, nil
}

// Size returns the image size in bytes.
func (d *File) Size() int64 { return d.size }

// Writable reports whether the image was opened for writing.
func (d *File) Writable() bool { return d.writable }

// CheckGeometry validates that sectorSize*sectorsPerTrack*heads
// divides the image size into a whole number of tracks, and that
// there is at least one track. It returns that track count.
func CheckGeometry(size int64, sectorSize, sectorsPerTrack, heads int) (int, error) {
	trackBytes := int64(sectorSize * sectorsPerTrack * heads)
	if trackBytes <= 0 || size <= 0 || size%trackBytes != 0 {
		return 0, ErrBadGeometry
	}
	tracks := int(size / trackBytes)
	if tracks < 1 {
		return 0, ErrBadGeometry
	}
	return tracks, nil
}

func (d *File) ReadAt(p []byte, off int64) (int, error) {
	return d.f.ReadAt(p, off)
}

func (d *File) WriteAt(p []byte, off int64) (int, error) {
	if !d.writable {
		return 0, errors.New("diskimage: image is read-only")
	}
	return d.f.WriteAt(p, off)
}

func (d *File) Flush() error {
	return d.f.Sync()
}

// Close detaches the image from the underlying OS file.
func (d *File) Close() error {
	return d.f.Close()
}
