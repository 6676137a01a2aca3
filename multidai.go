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

import "fmt"

// TriggerCmd is a command passed to a DAI trigger.
type TriggerCmd int

const (
	TriggerStart TriggerCmd = iota
	TriggerStop
	TriggerPause
	TriggerRelease
)

// Dai is the serial link interface serving one link.
type Dai interface {
	Trigger(cmd TriggerCmd, d Direction) error
	Fifo(d Direction, id int) uint32
	Handshake(d Direction, id int) uint32
	ContextStore() error
	ContextRestore() error
	Put()
}

// DaiGetter returns the DAI of type typ serving link id.
type DaiGetter func(typ uint32, id int) (Dai, error)

// Route is the DMA routing information of one link.
type Route struct {
	Link      int
	Fifo      uint32
	Handshake uint32
}

// RouteTable is a Routing built from a list of routes.
type RouteTable []Route

// Fifo returns the FIFO address of the link.
func (rt RouteTable) Fifo(link int) (uint32, error) {
	for _, r := range rt {
		if r.Link == link {
			return r.Fifo, nil
		}
	}
	return 0, fmt.Errorf("link %d fifo: %w", link, ErrNotFound)
}

// Handshake returns the hardware handshake of the link.
func (rt RouteTable) Handshake(link int) (uint32, error) {
	for _, r := range rt {
		if r.Link == link {
			return r.Handshake, nil
		}
	}
	return 0, fmt.Errorf("link %d handshake: %w", link, ErrNotFound)
}

type childDai struct {
	dai Dai
	id  int
}

// MultiDai aggregates the DAIs of all the links in a stream map, and
// provides the routing table used to configure a multiplex channel.
type MultiDai struct {
	typ  uint32
	get  DaiGetter
	dais []childDai
}

// NewMultiDai creates a MultiDai that obtains child DAIs of type typ.
func NewMultiDai(typ uint32, get DaiGetter) *MultiDai {
	return &MultiDai{typ: typ, get: get}
}

// SetConfig creates a child DAI for each link of the map that does not
// have one already.
func (m *MultiDai) SetConfig(sm *StreamMap) error {
	for _, id := range sm.Links() {
		if m.has(id) {
			continue
		}
		if len(m.dais) == MaxLinks {
			return fmt.Errorf("multidai: more than %d links: %w", MaxLinks, ErrResourceExhausted)
		}
		trace("multidai: make child dai type %d id %d", m.typ, id)
		d, err := m.get(m.typ, id)
		if err != nil {
			traceErr("multidai: child dai %d: %v", id, err)
			return fmt.Errorf("multidai: link %d: %w", id, err)
		}
		m.dais = append(m.dais, childDai{dai: d, id: id})
	}
	return nil
}

func (m *MultiDai) has(id int) bool {
	for _, c := range m.dais {
		if c.id == id {
			return true
		}
	}
	return false
}

// Links returns the link ids of the child DAIs.
func (m *MultiDai) Links() []int {
	ids := make([]int, len(m.dais))
	for i, c := range m.dais {
		ids[i] = c.id
	}
	return ids
}

// each applies f to every child, returning the last error.
func (m *MultiDai) each(op string, f func(Dai) error) error {
	var err error
	for _, c := range m.dais {
		if e := f(c.dai); e != nil {
			traceErr("multidai: %s link %d: %v", op, c.id, e)
			err = fmt.Errorf("multidai: %s link %d: %w", op, c.id, e)
		}
	}
	return err
}

// Trigger passes the command to every child.
func (m *MultiDai) Trigger(cmd TriggerCmd, d Direction) error {
	trace("multidai: trigger cmd %d", cmd)
	return m.each("trigger", func(dai Dai) error { return dai.Trigger(cmd, d) })
}

// ContextStore saves the context of every child.
func (m *MultiDai) ContextStore() error {
	return m.each("context store", Dai.ContextStore)
}

// ContextRestore restores the context of every child.
func (m *MultiDai) ContextRestore() error {
	return m.each("context restore", Dai.ContextRestore)
}

// DmaInfo returns the routing table of the children for the direction.
func (m *MultiDai) DmaInfo(d Direction) RouteTable {
	rt := make(RouteTable, len(m.dais))
	for i, c := range m.dais {
		rt[i] = Route{Link: c.id, Fifo: c.dai.Fifo(d, c.id), Handshake: c.dai.Handshake(d, c.id)}
		trace("multidai: dai %d id %d fifo 0x%x handshake %d", i, c.id, rt[i].Fifo, rt[i].Handshake)
	}
	return rt
}

// Remove puts every child.
func (m *MultiDai) Remove() {
	trace("multidai: remove")
	for _, c := range m.dais {
		c.dai.Put()
	}
	m.dais = nil
}
