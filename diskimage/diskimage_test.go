package diskimage

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

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestImage(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "floppy.img")
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte(i)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestOpenReadWrite(t *testing.T) {
	path := writeTestImage(t, 512*10)
	img, err := Open(path, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()

	buf := make([]byte, 4)
	if _, err := img.ReadAt(buf, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if buf[0] != 0 || buf[3] != 3 {
		t.Errorf("ReadAt got %v", buf)
	}

	if _, err := img.WriteAt([]byte{0xAA, 0xBB}, 100); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	readback := make([]byte, 2)
	img.ReadAt(readback, 100)
	if readback[0] != 0xAA || readback[1] != 0xBB {
		t.Errorf("write not reflected, got %v", readback)
	}
	if err := img.Flush(); err != nil {
		t.Errorf("Flush: %v", err)
	}
}

func TestOpenReadOnlyRejectsWrite(t *testing.T) {
	path := writeTestImage(t, 512*10)
	img, err := Open(path, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()

	if _, err := img.WriteAt([]byte{1}, 0); err == nil {
		t.Error("expected write to read-only image to fail")
	}
}

func TestCheckGeometry(t *testing.T) {
	tracks, err := CheckGeometry(512*10, 512, 10, 1)
	if err != nil {
		t.Fatalf("CheckGeometry: %v", err)
	}
	if tracks != 1 {
		t.Errorf("got %d tracks, expected 1", tracks)
	}

	if _, err := CheckGeometry(512*10+1, 512, 10, 1); err == nil {
		t.Error("expected error for file size that does not divide evenly")
	}

	if _, err := CheckGeometry(0, 512, 10, 1); err == nil {
		t.Error("expected error for empty image")
	}
}
