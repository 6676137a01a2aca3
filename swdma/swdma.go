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

// Package swdma is a software DMA engine for the multidma package.
// Each channel moves data between the memory it is configured with and
// a software FIFO, and raises a completion for every transfer.
//
// In the default mode completions are delivered asynchronously by a
// dispatcher goroutine once the channel is started. With Manual set,
// transfers are queued until Complete is called, which lets the caller
// choose the order in which the links of a period complete.
package swdma

import (
	"fmt"
	"sync"

	"github.com/aamcrae/multidma"
	"github.com/platinasystems/log"
)

// Operation names recorded by a channel, and accepted by Fail.
const (
	OpConfigure = "configure"
	OpStart     = "start"
	OpStop      = "stop"
	OpPause     = "pause"
	OpResume    = "resume"
	OpTransfer  = "transfer"
	OpStatus    = "status"
	OpDataSize  = "datasize"
	OpRelease   = "release"
)

// Engine is a set of software DMA channels, one per link id.
type Engine struct {
	// Manual queues completions until Complete is called.
	Manual bool

	mu    sync.Mutex
	chans []*Channel
}

// New creates an engine serving links 0 to n-1.
func New(n int) *Engine {
	e := &Engine{chans: make([]*Channel, n)}
	for i := range e.chans {
		e.chans[i] = &Channel{e: e, id: i, ev: newEvent(), fail: make(map[string]error)}
	}
	return e
}

// Acquire claims the channel of the link.
func (e *Engine) Acquire(link int) (multidma.PhysChannel, error) {
	if link < 0 || link >= len(e.chans) {
		return nil, fmt.Errorf("swdma: link %d: %w", link, multidma.ErrNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.chans[link]
	if c.claimed {
		return nil, fmt.Errorf("swdma: link %d: %w", link, multidma.ErrBusy)
	}
	c.claimed = true
	return c, nil
}

// Channel returns the channel of the link, for inspection.
func (e *Engine) Channel(link int) *Channel {
	return e.chans[link]
}

// Claimed returns the number of channels claimed.
func (e *Engine) Claimed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.chans {
		if c.claimed {
			n++
		}
	}
	return n
}

// Channel is one software DMA channel.
type Channel struct {
	e       *Engine
	id      int
	claimed bool // Protected by the engine lock
	ev      *event

	mu       sync.Mutex
	cfg      *multidma.LinkConfig
	cb       multidma.Callback
	running  bool
	paused   bool
	rptr     int
	queue    []int // Sizes of the transfers not yet completed
	captured []byte
	input    []byte
	inPos    int
	ops      []string
	fail     map[string]error
	done     uint64 // Bytes completed
}

// Fail makes the named operation return err. A nil err clears the fault.
func (c *Channel) Fail(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.fail, op)
	} else {
		c.fail[op] = err
	}
}

// record logs the operation and returns any injected fault.
// Called with the lock held.
func (c *Channel) record(op string) error {
	c.ops = append(c.ops, op)
	return c.fail[op]
}

// Ops returns the operations performed on the channel.
func (c *Channel) Ops() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ops...)
}

// Config returns the last configuration applied.
func (c *Channel) Config() *multidma.LinkConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Captured returns the data played out of the channel.
func (c *Channel) Captured() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.captured...)
}

// SetInput sets the data that a capture channel reads from its FIFO.
// The data is repeated as needed.
func (c *Channel) SetInput(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input = append([]byte(nil), b...)
	c.inPos = 0
}

// Queued returns the number of transfers waiting for completion.
func (c *Channel) Queued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Running returns true if the channel is started.
func (c *Channel) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Release returns the channel to the engine.
func (c *Channel) Release() {
	c.ev.clearHandler()
	c.mu.Lock()
	c.record(OpRelease)
	c.cfg = nil
	c.cb = nil
	c.running = false
	c.paused = false
	c.queue = nil
	c.mu.Unlock()
	c.e.mu.Lock()
	c.claimed = false
	c.e.mu.Unlock()
}

func (c *Channel) Configure(lc *multidma.LinkConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(OpConfigure); err != nil {
		return err
	}
	if lc == nil || len(lc.Elems) == 0 || len(lc.Buffer) == 0 {
		return fmt.Errorf("swdma: link %d: empty config: %w", c.id, multidma.ErrInvalidConfig)
	}
	c.cfg = lc
	c.rptr = 0
	c.captured = nil
	log.Printf("debug", "swdma: link %d: %d descriptors of %d bytes, handshake %d/%d",
		c.id, len(lc.Elems), lc.Elems[0].Size, lc.SrcDev, lc.DestDev)
	return nil
}

func (c *Channel) SetCallback(cb multidma.Callback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cb = cb
}

func (c *Channel) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(OpStart); err != nil {
		return err
	}
	if c.cfg == nil {
		return fmt.Errorf("swdma: link %d: start before configure: %w", c.id, multidma.ErrInvalidConfig)
	}
	c.running = true
	c.paused = false
	if !c.e.Manual {
		c.ev.setHandler(c.drain)
		if len(c.queue) > 0 {
			c.ev.raise()
		}
	}
	return nil
}

func (c *Channel) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(OpStop); err != nil {
		return err
	}
	c.running = false
	c.paused = false
	c.queue = nil
	return nil
}

func (c *Channel) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(OpPause); err != nil {
		return err
	}
	c.paused = true
	return nil
}

func (c *Channel) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(OpResume); err != nil {
		return err
	}
	c.paused = false
	if len(c.queue) > 0 && !c.e.Manual {
		c.ev.raise()
	}
	return nil
}

// Transfer queues a transfer of bytes. Started channels complete it
// asynchronously unless the engine is in manual mode.
func (c *Channel) Transfer(bytes int, flags uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(OpTransfer); err != nil {
		return err
	}
	if c.cfg == nil {
		return fmt.Errorf("swdma: link %d: transfer before configure: %w", c.id, multidma.ErrInvalidConfig)
	}
	if bytes <= 0 || bytes > len(c.cfg.Buffer) {
		return fmt.Errorf("swdma: link %d: transfer of %d bytes: %w", c.id, bytes, multidma.ErrInvalidArgument)
	}
	c.queue = append(c.queue, bytes)
	if c.running && !c.paused && !c.e.Manual {
		c.ev.raise()
	}
	return nil
}

// Complete completes the oldest queued transfer and invokes the callback
// on the calling goroutine. It returns false if nothing was queued.
func (c *Channel) Complete() bool {
	c.mu.Lock()
	if len(c.queue) == 0 {
		c.mu.Unlock()
		return false
	}
	n := c.queue[0]
	c.queue = c.queue[1:]
	c.move(n)
	cb := c.cb
	c.mu.Unlock()
	if cb == nil {
		return true
	}
	// The callback takes the multiplexer lock, so it is called unlocked.
	next := multidma.CallbackData{Size: uint32(n), Status: multidma.Reload}
	cb(multidma.EventCopy, &next)
	if next.Status == multidma.End {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}
	return true
}

// drain is the interrupt handler of an automatic channel.
func (c *Channel) drain() {
	for {
		c.mu.Lock()
		ok := c.running && !c.paused
		c.mu.Unlock()
		if !ok || !c.Complete() {
			return
		}
	}
}

// move transfers n bytes between the ring and the FIFO.
// Called with the lock held.
func (c *Channel) move(n int) {
	buf := c.cfg.Buffer
	for n > 0 {
		k := len(buf) - c.rptr
		if k > n {
			k = n
		}
		if c.cfg.Direction == multidma.MemToDev {
			c.captured = append(c.captured, buf[c.rptr:c.rptr+k]...)
		} else {
			c.fill(buf[c.rptr : c.rptr+k])
		}
		c.rptr = (c.rptr + k) % len(buf)
		c.done += uint64(k)
		n -= k
	}
}

// fill copies input data into b.
func (c *Channel) fill(b []byte) {
	if len(c.input) == 0 {
		return
	}
	for i := range b {
		b[i] = c.input[c.inPos]
		c.inPos = (c.inPos + 1) % len(c.input)
	}
}

func (c *Channel) Status(d multidma.Direction) (multidma.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(OpStatus); err != nil {
		return multidma.Status{}, err
	}
	s := multidma.Status{ReadPos: uint32(c.rptr), Timestamp: c.done}
	if c.cfg != nil {
		q := 0
		for _, n := range c.queue {
			q += n
		}
		s.WritePos = uint32((c.rptr + q) % len(c.cfg.Buffer))
	}
	return s, nil
}

// DataSize reports the queued bytes as available, and the rest of the
// ring as free.
func (c *Channel) DataSize() (avail, free uint32, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(OpDataSize); err != nil {
		return 0, 0, err
	}
	if c.cfg == nil {
		return 0, 0, fmt.Errorf("swdma: link %d: not configured: %w", c.id, multidma.ErrInvalidConfig)
	}
	q := 0
	for _, n := range c.queue {
		q += n
	}
	if q > len(c.cfg.Buffer) {
		q = len(c.cfg.Buffer)
	}
	return uint32(q), uint32(len(c.cfg.Buffer) - q), nil
}
