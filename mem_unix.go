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

//go:build linux || darwin || freebsd

package multidma

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// MmapAllocator allocates page aligned memory with an anonymous mapping.
// Writeback and Invalidate synchronise the covering pages.
type MmapAllocator struct{}

type mmapMem struct {
	mem []byte // Whole mapping
	buf []byte
}

// Alloc maps enough pages for size bytes. Alignments up to the page size
// are satisfied by the mapping itself.
func (MmapAllocator) Alloc(size, align int) (Mem, error) {
	pg := unix.Getpagesize()
	if size <= 0 || align <= 0 || align > pg {
		return nil, fmt.Errorf("mmap alloc of %d bytes, align %d: %w", size, align, ErrAllocationFailed)
	}
	mapped := (size + pg - 1) &^ (pg - 1)
	mem, err := unix.Mmap(-1, 0, mapped, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes: %v: %w", mapped, err, ErrAllocationFailed)
	}
	return &mmapMem{mem: mem, buf: mem[:size:size]}, nil
}

func (m *mmapMem) Buf() []byte {
	return m.buf
}

func (m *mmapMem) PhysAddr() uint64 {
	return uint64(uintptr(unsafe.Pointer(&m.mem[0])))
}

func (m *mmapMem) Writeback(offs, n int) error {
	return m.sync(offs, n, unix.MS_SYNC)
}

func (m *mmapMem) Invalidate(offs, n int) error {
	return m.sync(offs, n, unix.MS_INVALIDATE)
}

// sync applies msync to the pages covering the range.
func (m *mmapMem) sync(offs, n, flags int) error {
	if err := checkRange(m.buf, offs, n); err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	pg := unix.Getpagesize()
	start := offs &^ (pg - 1)
	end := (offs + n + pg - 1) &^ (pg - 1)
	if end > len(m.mem) {
		end = len(m.mem)
	}
	return unix.Msync(m.mem[start:end], flags)
}

func (m *mmapMem) Close() error {
	if m.mem == nil {
		return nil
	}
	err := unix.Munmap(m.mem)
	m.mem = nil
	m.buf = nil
	return err
}
