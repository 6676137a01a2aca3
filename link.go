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

import "io"

// Link is one physical sub-transfer of a multiplex channel. It owns the
// physical channel serving the link, the source frame offsets gathered
// into its frame, and its own ring within the channel buffer.
type Link struct {
	id    int
	ch    PhysChannel
	offs  []uint32 // Transforms, in link frame order
	buf   ring
	base  int    // Offset of buf within the channel buffer
	wptr  uint32 // Write cursor within buf
	elems []Elem
}

// newLink initialises the link and claims the physical channel.
func newLink(e Engine, id int) (*Link, error) {
	pc, err := e.Acquire(id)
	if err != nil {
		return nil, err
	}
	return &Link{id: id, ch: pc}, nil
}

// ID returns the link id.
func (l *Link) ID() int {
	return l.id
}

// Transforms returns the source frame offsets of the link.
func (l *Link) Transforms() []uint32 {
	return append([]uint32(nil), l.offs...)
}

// Buffer returns a reader over the ring of the link.
func (l *Link) Buffer() io.ReadSeeker {
	return l.buf.Open()
}

// WriteOffset returns the current write cursor within the ring.
func (l *Link) WriteOffset() uint32 {
	return l.wptr
}

// Elems returns the descriptors of the link.
func (l *Link) Elems() []Elem {
	return append([]Elem(nil), l.elems...)
}

// active returns true while the link holds its physical channel.
func (l *Link) active() bool {
	return l.ch != nil
}

// burst returns the bytes the link takes from each source frame.
func (l *Link) burst(chBytes uint32) uint32 {
	return uint32(len(l.offs)) * chBytes
}

// gather copies one frame of samples from the source ring at rptr into
// the link ring, and advances the write cursor.
func (l *Link) gather(src ring, rptr, chBytes uint32) uint32 {
	for i, off := range l.offs {
		s := src.advance(rptr, off)
		d := l.buf.advance(l.wptr, uint32(i)*chBytes)
		copy(l.buf[d:d+chBytes], src[s:s+chBytes])
	}
	n := l.burst(chBytes)
	l.wptr = l.buf.advance(l.wptr, n)
	return n
}

// scatter is the capture counterpart of gather. One frame of samples is
// copied from the link ring into the source ring at rptr.
func (l *Link) scatter(dst ring, rptr, chBytes uint32) uint32 {
	for i, off := range l.offs {
		d := dst.advance(rptr, off)
		s := l.buf.advance(l.wptr, uint32(i)*chBytes)
		copy(dst[d:d+chBytes], l.buf[s:s+chBytes])
	}
	n := l.burst(chBytes)
	l.wptr = l.buf.advance(l.wptr, n)
	return n
}

func (l *Link) start() error {
	if !l.active() {
		return nil
	}
	return l.ch.Start()
}

func (l *Link) stop() error {
	if !l.active() {
		return nil
	}
	return l.ch.Stop()
}

func (l *Link) pause() error {
	if !l.active() {
		return nil
	}
	return l.ch.Pause()
}

func (l *Link) resume() error {
	if !l.active() {
		return nil
	}
	return l.ch.Resume()
}

// release returns the physical channel to the engine.
func (l *Link) release() {
	if l.active() {
		l.ch.SetCallback(nil)
		l.ch.Release()
		l.ch = nil
	}
}
