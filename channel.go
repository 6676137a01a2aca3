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
	"errors"
	"fmt"
	"sync/atomic"
)

// State of a multiplex channel.
type State int

const (
	StateInit State = iota
	StateReady
	StatePrepared
	StateActive
	StatePaused
)

var stateNames = [...]string{"init", "ready", "prepared", "active", "paused"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Channel is a multiplex channel, the logical channel used by the pipeline.
// All methods take the controller lock. The channel callback is invoked
// with the lock held, so it must not call back into the Channel.
type Channel struct {
	ctl   *Controller
	index int
	state State
	dir   Direction
	cb    Callback

	links   []*Link
	mem     Mem  // Backing store of the link rings
	src     ring // Source ring of the pipeline
	rptr    uint32
	period  uint32 // Source period size
	chBytes uint32

	pending   uint32 // Completions outstanding for the current period
	lastBytes uint32 // Bytes of the last period issued
}

// Index returns the index of the channel within the controller.
func (c *Channel) Index() int {
	return c.index
}

// State returns the current state.
func (c *Channel) State() State {
	c.ctl.mu.Lock()
	defer c.ctl.mu.Unlock()
	return c.state
}

// Links returns the configured links, in discovery order.
func (c *Channel) Links() []*Link {
	c.ctl.mu.Lock()
	defer c.ctl.mu.Unlock()
	return append([]*Link(nil), c.links...)
}

// Pending returns the number of link completions still outstanding.
func (c *Channel) Pending() uint32 {
	c.ctl.mu.Lock()
	defer c.ctl.mu.Unlock()
	return c.pending
}

// ReadOffset returns the read cursor within the source ring.
func (c *Channel) ReadOffset() uint32 {
	c.ctl.mu.Lock()
	defer c.ctl.mu.Unlock()
	return c.rptr
}

// SetCallback installs the callback invoked once per completed period.
func (c *Channel) SetCallback(cb Callback) {
	c.ctl.mu.Lock()
	defer c.ctl.mu.Unlock()
	trace("channel %d: set callback", c.index)
	c.cb = cb
}

// Put returns the channel to the controller, releasing the links and
// the buffer.
func (c *Channel) Put() {
	c.ctl.mu.Lock()
	if c.state == StateInit {
		c.ctl.mu.Unlock()
		return
	}
	trace("channel %d: put", c.index)
	c.teardown()
	c.cb = nil
	c.state = StateInit
	c.ctl.mu.Unlock()
	atomic.AddInt32(&c.ctl.busy, -1)
}

// SetConfig builds the links and the link buffer from the configuration.
// A channel that is already active ignores the new configuration.
// On failure all links are released and the channel is left ready.
func (c *Channel) SetConfig(cfg *Config) error {
	c.ctl.mu.Lock()
	defer c.ctl.mu.Unlock()
	trace("channel %d: set config", c.index)
	switch c.state {
	case StateActive:
		trace("channel %d: active, config ignored", c.index)
		return nil
	case StateReady:
	case StatePrepared:
		c.teardown()
		c.state = StateReady
	default:
		return fmt.Errorf("channel %d: set config in state %s: %w", c.index, c.state, ErrBusy)
	}
	if err := validate(cfg); err != nil {
		traceErr("channel %d: %v", c.index, err)
		return fmt.Errorf("channel %d: %w", c.index, err)
	}
	c.dir = cfg.Direction
	c.period = cfg.Elems[0].Size
	c.chBytes = cfg.ChannelBytes
	trace("channel %d: src period bytes %d ch bytes %d", c.index, c.period, c.chBytes)
	err := c.buildLinks(cfg.Map)
	if err == nil {
		err = c.allocBuffer(cfg)
	}
	if err == nil {
		err = c.configureLinks(cfg)
	}
	if err != nil {
		traceErr("channel %d: %v", c.index, err)
		c.teardown()
		return fmt.Errorf("channel %d: %w", c.index, err)
	}
	trace("channel %d: %d links configured", c.index, len(c.links))
	c.state = StatePrepared
	return nil
}

func validate(cfg *Config) error {
	switch {
	case cfg == nil:
		return fmt.Errorf("no config: %w", ErrInvalidArgument)
	case cfg.Map == nil || len(cfg.Map.Entries) == 0:
		return fmt.Errorf("empty stream map: %w", ErrInvalidConfig)
	case len(cfg.Map.Entries) > MaxMapEntries:
		return fmt.Errorf("%d stream map entries: %w", len(cfg.Map.Entries), ErrInvalidConfig)
	case len(cfg.Elems) == 0 || cfg.Elems[0].Size == 0:
		return fmt.Errorf("no descriptors: %w", ErrInvalidConfig)
	case cfg.ChannelBytes == 0:
		return fmt.Errorf("zero channel bytes: %w", ErrInvalidConfig)
	case cfg.Routes == nil:
		return fmt.Errorf("no link routing: %w", ErrInvalidConfig)
	}
	return nil
}

// buildLinks claims a physical channel for each link in the map and
// computes its transforms. Links claimed so far are kept in c.links
// so a failure can be unwound by the caller.
func (c *Channel) buildLinks(sm *StreamMap) error {
	ids := sm.Links()
	if len(ids) == 0 {
		return fmt.Errorf("no routed channels: %w", ErrInvalidConfig)
	}
	if len(ids) > MaxLinks {
		return fmt.Errorf("%d links: %w", len(ids), ErrResourceExhausted)
	}
	for _, id := range ids {
		l, err := newLink(c.ctl.engine, id)
		if err != nil {
			return fmt.Errorf("link %d allocation failed: %w: %w", id, ErrResourceExhausted, err)
		}
		c.links = append(c.links, l)
		l.ch.SetCallback(func(ev EventKind, next *CallbackData) {
			c.linkDone(l, ev, next)
		})
		if l.offs, err = sm.Transforms(id, c.chBytes); err != nil {
			return err
		}
	}
	return nil
}

// verifyDescriptors checks that the descriptors are contiguous and of
// equal size, and returns the total size.
func (c *Channel) verifyDescriptors(cfg *Config) (uint32, error) {
	if c.period%uint32(len(c.links)) != 0 {
		return 0, fmt.Errorf("period %d not divisible by %d links: %w", c.period, len(c.links), ErrInvalidConfig)
	}
	base := cfg.Elems[0].memAddr(c.dir)
	var size uint32
	for i, e := range cfg.Elems {
		if e.memAddr(c.dir) != base+uint64(size) {
			return 0, fmt.Errorf("descriptor %d not continuous: %w", i, ErrInvalidConfig)
		}
		if e.Size != c.period {
			return 0, fmt.Errorf("descriptor %d size %d not even: %w", i, e.Size, ErrInvalidConfig)
		}
		size += e.Size
	}
	return size, nil
}

// allocBuffer allocates the link buffer and divides it between the links.
func (c *Channel) allocBuffer(cfg *Config) error {
	if c.period%uint32(len(cfg.Map.Entries)) != 0 {
		return fmt.Errorf("period %d not divisible by %d channels: %w", c.period, len(cfg.Map.Entries), ErrInvalidConfig)
	}
	size, err := c.verifyDescriptors(cfg)
	if err != nil {
		return err
	}
	targ := c.period / uint32(len(c.links))
	if targ%c.chBytes != 0 {
		return fmt.Errorf("link period %d not a multiple of %d channel bytes: %w", targ, c.chBytes, ErrInvalidConfig)
	}
	if uint32(len(cfg.Source)) < size {
		return fmt.Errorf("source of %d bytes smaller than descriptors (%d): %w", len(cfg.Source), size, ErrInvalidConfig)
	}
	mem, err := c.ctl.alloc.Alloc(int(size), CacheAlign)
	if err != nil {
		if !errors.Is(err, ErrAllocationFailed) {
			err = fmt.Errorf("%w: %w", ErrAllocationFailed, err)
		}
		return err
	}
	c.mem = mem
	c.src = ring(cfg.Source[:size])
	c.rptr = 0
	trace("channel %d: buf 0x%x - 0x%x %d bytes", c.index, mem.PhysAddr(), mem.PhysAddr()+uint64(size), size)
	trace("channel %d: src period bytes %d link period bytes %d num periods %d", c.index, c.period, targ, len(cfg.Elems))
	count := len(cfg.Elems)
	lsize := int(targ) * count
	for i, l := range c.links {
		fifo, err := cfg.Routes.Fifo(l.id)
		if err != nil {
			return fmt.Errorf("link %d fifo: %w", l.id, err)
		}
		l.base = lsize * i
		l.buf = ring(mem.Buf()[l.base : l.base+lsize])
		l.wptr = 0
		l.elems = linkDescriptors(c.dir, count, targ, mem.PhysAddr()+uint64(l.base), fifo)
		trace("channel %d: link %d buf 0x%x fifo 0x%x", c.index, l.id, mem.PhysAddr()+uint64(l.base), fifo)
	}
	return nil
}

// configureLinks applies the descriptors and handshake of each link to
// its physical channel.
func (c *Channel) configureLinks(cfg *Config) error {
	for _, l := range c.links {
		hs, err := cfg.Routes.Handshake(l.id)
		if err != nil {
			return fmt.Errorf("no link %d dma info: %w", l.id, err)
		}
		trace("channel %d: link %d handshake %d", c.index, l.id, hs)
		lc := &LinkConfig{Direction: c.dir, Elems: l.elems, Buffer: l.buf}
		if c.dir == MemToDev {
			lc.DestDev = hs
		} else {
			lc.SrcDev = hs
		}
		if err := l.ch.Configure(lc); err != nil {
			return fmt.Errorf("failed to set config for link %d: %w", l.id, err)
		}
	}
	return nil
}

// teardown releases the links, then the buffer.
func (c *Channel) teardown() {
	trace("channel %d: free links", c.index)
	for _, l := range c.links {
		l.release()
	}
	c.links = nil
	if c.mem != nil {
		if err := c.mem.Close(); err != nil {
			traceErr("channel %d: free buffer: %v", c.index, err)
		}
		c.mem = nil
	}
	c.src = nil
	c.rptr = 0
	c.pending = 0
	c.lastBytes = 0
}

// Start starts every link. If a link fails, all links are stopped.
// On success the callback receives the token for the first period.
func (c *Channel) Start() error {
	c.ctl.mu.Lock()
	defer c.ctl.mu.Unlock()
	trace("channel %d: start", c.index)
	if c.state != StatePrepared {
		traceErr("channel %d: start in state %s", c.index, c.state)
		return fmt.Errorf("channel %d: start in state %s: %w", c.index, c.state, ErrBusy)
	}
	for _, l := range c.links {
		if err := l.start(); err != nil {
			traceErr("channel %d: failed to start link %d: %v", c.index, l.id, err)
			c.stopLinks()
			return fmt.Errorf("channel %d: start link %d: %w", c.index, l.id, err)
		}
	}
	c.pending = 0
	c.state = StateActive
	if c.cb != nil {
		next := CallbackData{Size: c.period, Status: Reload}
		c.cb(EventCopy, &next)
	}
	return nil
}

// Stop stops every link, even if some fail, and returns the last error.
// An active or paused channel returns to prepared.
func (c *Channel) Stop() error {
	c.ctl.mu.Lock()
	defer c.ctl.mu.Unlock()
	trace("channel %d: stop", c.index)
	err := c.stopLinks()
	if c.state == StateActive || c.state == StatePaused {
		c.state = StatePrepared
	}
	c.pending = 0
	if err != nil {
		traceErr("channel %d: stop: %v", c.index, err)
		return fmt.Errorf("channel %d: %w", c.index, err)
	}
	return nil
}

func (c *Channel) stopLinks() error {
	var err error
	for _, l := range c.links {
		// Attempt to stop all links, even if some fail.
		if e := l.stop(); e != nil {
			traceErr("channel %d: failed to stop link %d: %v", c.index, l.id, e)
			err = fmt.Errorf("stop link %d: %w", l.id, e)
		}
	}
	return err
}

// Pause pauses every link of an active channel. If a link fails, the
// links already paused are resumed and the channel stays active.
func (c *Channel) Pause() error {
	c.ctl.mu.Lock()
	defer c.ctl.mu.Unlock()
	trace("channel %d: pause", c.index)
	if c.state != StateActive {
		return nil
	}
	for i, l := range c.links {
		if err := l.pause(); err != nil {
			traceErr("channel %d: failed to pause link %d: %v", c.index, l.id, err)
			for _, p := range c.links[:i] {
				if e := p.resume(); e != nil {
					traceErr("channel %d: failed to resume link %d: %v", c.index, p.id, e)
				}
			}
			return fmt.Errorf("channel %d: pause link %d: %w", c.index, l.id, err)
		}
	}
	c.state = StatePaused
	return nil
}

// Release resumes every link of a paused channel.
func (c *Channel) Release() error {
	c.ctl.mu.Lock()
	defer c.ctl.mu.Unlock()
	trace("channel %d: release", c.index)
	if c.state != StatePaused {
		return nil
	}
	for _, l := range c.links {
		if err := l.resume(); err != nil {
			traceErr("channel %d: failed to release link %d: %v", c.index, l.id, err)
			return fmt.Errorf("channel %d: release link %d: %w", c.index, l.id, err)
		}
	}
	c.state = StateActive
	return nil
}

// burst returns the bytes of one frame across all links.
func (c *Channel) burst() uint32 {
	var n uint32
	for _, l := range c.links {
		n += l.burst(c.chBytes)
	}
	return n
}

// Copy moves whole frames between the source ring and the link rings,
// and issues one transfer per link. Bytes beyond the last whole frame
// are left for the next call. The bytes moved are returned, also when
// issuing a transfer fails.
func (c *Channel) Copy(bytes int, flags uint32) (int, error) {
	c.ctl.mu.Lock()
	defer c.ctl.mu.Unlock()
	if len(c.links) == 0 || c.src == nil {
		return 0, fmt.Errorf("channel %d: copy in state %s: %w", c.index, c.state, ErrInvalidArgument)
	}
	burst := c.burst()
	if burst == 0 {
		return 0, fmt.Errorf("channel %d: no slots routed: %w", c.index, ErrInvalidArgument)
	}
	if bytes < 0 || uint32(bytes) < burst {
		traceErr("channel %d: data size %d not enough for burst size %d", c.index, bytes, burst)
		return 0, fmt.Errorf("channel %d: %d bytes less than burst of %d: %w", c.index, bytes, burst, ErrInvalidArgument)
	}
	toCopy := uint32(bytes) - uint32(bytes)%burst
	tracev("channel %d: bytes %d to_copy %d", c.index, bytes, toCopy)
	if c.dir == DevToMem {
		for _, l := range c.links {
			if err := c.mem.Invalidate(l.base, len(l.buf)); err != nil {
				traceErr("channel %d: invalidate link %d: %v", c.index, l.id, err)
			}
		}
	}
	for n := uint32(0); n < toCopy; n += burst {
		for _, l := range c.links {
			if c.dir == MemToDev {
				l.gather(c.src, c.rptr, c.chBytes)
			} else {
				l.scatter(c.src, c.rptr, c.chBytes)
			}
		}
		c.rptr = c.src.advance(c.rptr, burst)
	}
	c.lastBytes = toCopy
	return int(toCopy), c.issue(toCopy, flags)
}

// issue arms the completion barrier and requests a transfer on each link.
// A failed link is removed from the barrier; the remaining links are
// still issued and the last error is returned.
func (c *Channel) issue(bytes uint32, flags uint32) error {
	var err error
	per := int(bytes) / len(c.links)
	c.pending += uint32(len(c.links))
	for _, l := range c.links {
		var e error
		if c.dir == MemToDev {
			e = c.mem.Writeback(l.base, len(l.buf))
		}
		if e == nil {
			e = l.ch.Transfer(per, flags)
		}
		if e != nil {
			traceErr("channel %d: copy failed, link %d: %v", c.index, l.id, e)
			c.pending--
			err = fmt.Errorf("channel %d: copy link %d: %w", c.index, l.id, e)
		}
	}
	return err
}

// linkDone is the completion callback of each link. The channel callback
// runs once all the links of the period have completed. If it returns End,
// every link is stopped and the channel returns to prepared.
func (c *Channel) linkDone(l *Link, ev EventKind, next *CallbackData) {
	c.ctl.mu.Lock()
	defer c.ctl.mu.Unlock()
	next.Status = Reload
	if !l.active() {
		tracev("channel %d: completion on released link %d", c.index, l.id)
		return
	}
	if c.pending == 0 {
		tracev("channel %d: unexpected completion on link %d", c.index, l.id)
		return
	}
	c.pending--
	tracev("channel %d: link %d done, %d expected", c.index, l.id, c.pending)
	if c.pending != 0 || c.cb == nil {
		return
	}
	done := CallbackData{Size: c.lastBytes, Status: Reload}
	c.cb(ev, &done)
	if done.Status != End {
		return
	}
	trace("channel %d: end of stream", c.index)
	next.Status = End
	for _, o := range c.links {
		// The completing link stops itself on End.
		if o == l {
			continue
		}
		if err := o.stop(); err != nil {
			traceErr("channel %d: failed to stop link %d: %v", c.index, o.id, err)
		}
	}
	if c.state == StateActive || c.state == StatePaused {
		c.state = StatePrepared
	}
}

// Status returns the status of the first link holding a physical channel.
func (c *Channel) Status(d Direction) (Status, error) {
	c.ctl.mu.Lock()
	defer c.ctl.mu.Unlock()
	for _, l := range c.links {
		if !l.active() {
			continue
		}
		s, err := l.ch.Status(d)
		if err != nil {
			traceErr("channel %d: status: %v", c.index, err)
			return Status{}, fmt.Errorf("channel %d: status link %d: %w", c.index, l.id, err)
		}
		s.State = c.state
		return s, nil
	}
	return Status{State: c.state}, nil
}

// DataSize returns the data available (capture) or the space free
// (playback), as the smallest across the links scaled by the link count.
func (c *Channel) DataSize() (avail, free uint32, err error) {
	c.ctl.mu.Lock()
	defer c.ctl.mu.Unlock()
	if len(c.links) == 0 {
		return 0, 0, nil
	}
	n := uint32(len(c.links))
	if c.dir == DevToMem {
		avail = ^uint32(0)
	} else {
		free = ^uint32(0)
	}
	for _, l := range c.links {
		a, f, err := l.ch.DataSize()
		if err != nil {
			traceErr("channel %d: data size failed for link %d: %v", c.index, l.id, err)
			return 0, 0, fmt.Errorf("channel %d: data size link %d: %w", c.index, l.id, err)
		}
		if c.dir == DevToMem {
			if a*n < avail {
				avail = a * n
			}
			tracev("channel %d: link %d avail %d", c.index, l.id, a)
		} else {
			if f*n < free {
				free = f * n
			}
			tracev("channel %d: link %d free %d", c.index, l.id, f)
		}
	}
	return avail, free, nil
}
