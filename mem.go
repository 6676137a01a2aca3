// Copyright 2021 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package multidma

import (
	"fmt"
	"io"
	"unsafe"
)

// Mem is a section of memory usable by the DMA engine.
type Mem interface {
	io.Closer
	Buf() []byte
	// PhysAddr is the bus address of the first byte of Buf.
	PhysAddr() uint64
	// Writeback flushes the cache lines covering the range to memory.
	Writeback(offs, n int) error
	// Invalidate discards the cache lines covering the range.
	Invalidate(offs, n int) error
}

// Allocator allocates contiguous DMA capable memory.
type Allocator interface {
	Alloc(size, align int) (Mem, error)
}

// HeapAllocator allocates from the Go heap. The memory is coherent,
// so cache maintenance is a no-op.
type HeapAllocator struct{}

type heapMem struct {
	buf []byte
}

// Alloc allocates size bytes aligned to align.
func (HeapAllocator) Alloc(size, align int) (Mem, error) {
	if size <= 0 || align <= 0 {
		return nil, fmt.Errorf("heap alloc of %d bytes, align %d: %w", size, align, ErrAllocationFailed)
	}
	raw := make([]byte, size+align-1)
	a := uintptr(unsafe.Pointer(&raw[0]))
	offs := int((uintptr(align) - a%uintptr(align)) % uintptr(align))
	return &heapMem{buf: raw[offs : offs+size : offs+size]}, nil
}

func (m *heapMem) Buf() []byte {
	return m.buf
}

func (m *heapMem) PhysAddr() uint64 {
	if len(m.buf) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&m.buf[0])))
}

func (m *heapMem) Writeback(offs, n int) error {
	return checkRange(m.buf, offs, n)
}

func (m *heapMem) Invalidate(offs, n int) error {
	return checkRange(m.buf, offs, n)
}

func (m *heapMem) Close() error {
	m.buf = nil
	return nil
}

func checkRange(b []byte, offs, n int) error {
	if offs < 0 || n < 0 || offs+n > len(b) {
		return fmt.Errorf("range %d+%d outside %d byte buffer: %w", offs, n, len(b), ErrInvalidArgument)
	}
	return nil
}

// ring is a fixed size byte region addressed by a wrapping offset.
type ring []byte

// advance returns the offset n bytes past offs, wrapped to the ring size.
func (r ring) advance(offs, n uint32) uint32 {
	return (offs + n) % uint32(len(r))
}

// Open creates a type that can use a Reader/Seeker interface to the
// underlying ring.
func (r ring) Open() *ringIO {
	return &ringIO{data: r}
}

// ringIO implements io.Reader, io.ReaderAt and io.Seeker over a ring,
// without wrapping.
type ringIO struct {
	data    []byte
	current int
}

func (r *ringIO) Read(p []byte) (int, error) {
	if r.current >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.current:])
	r.current += n
	return n, nil
}

func (r *ringIO) ReadAt(p []byte, offs int64) (int, error) {
	if offs < 0 || int(offs) >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[offs:])
	if n != len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Seek moves the offset
func (r *ringIO) Seek(offs int64, whence int) (int64, error) {
	n := int(offs)
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		n += r.current
	case io.SeekEnd:
		n += len(r.data)
	default:
		return 0, fmt.Errorf("unknown whence")
	}
	if n < 0 {
		return 0, fmt.Errorf("negative offset")
	}
	r.current = n
	return int64(r.current), nil
}
