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
	"strings"
	"sync"
	"sync/atomic"
)

// Controller is a multiplexer device instance. It owns a fixed set of
// channels and the lock that serialises every channel operation with the
// link completion callbacks.
type Controller struct {
	mu     sync.Mutex
	engine Engine
	alloc  Allocator
	chans  []*Channel
	busy   int32 // Channels checked out
}

// Probe creates a controller with n channels whose links are served by
// the engine. The link buffers are allocated from alloc, or from the Go
// heap if alloc is nil.
func Probe(e Engine, alloc Allocator, n int) (*Controller, error) {
	if e == nil {
		return nil, fmt.Errorf("no engine: %w", ErrInvalidArgument)
	}
	if n <= 0 || n > MaxChannels {
		return nil, fmt.Errorf("%d channels: %w", n, ErrInvalidArgument)
	}
	if alloc == nil {
		alloc = HeapAllocator{}
	}
	c := &Controller{engine: e, alloc: alloc}
	c.chans = make([]*Channel, n)
	for i := range c.chans {
		c.chans[i] = &Channel{ctl: c, index: i, state: StateInit}
	}
	trace("probe: %d channels", n)
	return c, nil
}

// Remove returns every checked out channel, releasing the links and
// buffers.
func (c *Controller) Remove() {
	trace("remove")
	for _, ch := range c.chans {
		ch.Put()
	}
}

// Channel checks out the channel at index.
func (c *Controller) Channel(index int) (*Channel, error) {
	if index < 0 || index >= len(c.chans) {
		traceErr("invalid channel %d", index)
		return nil, fmt.Errorf("channel %d: %w", index, ErrInvalidArgument)
	}
	trace("channel get: channel %d", index)
	c.mu.Lock()
	ch := c.chans[index]
	if ch.state != StateInit {
		c.mu.Unlock()
		traceErr("channel %d busy", index)
		return nil, fmt.Errorf("channel %d: %w", index, ErrBusy)
	}
	ch.state = StateReady
	c.mu.Unlock()
	atomic.AddInt32(&c.busy, 1)
	return ch, nil
}

// Channels returns the number of channels of the controller.
func (c *Controller) Channels() int {
	return len(c.chans)
}

// Busy returns the number of channels checked out.
func (c *Controller) Busy() int {
	return int(atomic.LoadInt32(&c.busy))
}

// Attribute returns a fixed property of the device.
func (c *Controller) Attribute(a Attribute) (uint32, error) {
	switch a {
	case AttrBufferAlignment:
		return BufferAlign, nil
	case AttrCopyAlignment:
		return CopyAlign, nil
	case AttrBufferAddressAlignment:
		return CacheAlign, nil
	case AttrBufferPeriodCount:
		return PeriodCount, nil
	}
	return 0, fmt.Errorf("attribute %d: %w", int(a), ErrInvalidArgument)
}

// Description returns a human readable string describing the controller.
func (c *Controller) Description() string {
	var s strings.Builder
	fmt.Fprintf(&s, "multidma %d channels, %d busy", len(c.chans), c.Busy())
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.chans {
		if ch.state == StateInit {
			continue
		}
		fmt.Fprintf(&s, "; ch%d %s", ch.index, ch.state)
		for _, l := range ch.links {
			fmt.Fprintf(&s, " link%d/%d", l.id, len(l.offs))
		}
	}
	return s.String()
}
