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

package swdma

import (
	"sync"

	"github.com/aamcrae/multidma"
)

// FIFO address layout of the software DAIs.
const (
	FifoBase   = 0x1000
	FifoStride = 0x100
)

// Dai is a software serial link. Its FIFO is at FifoBase + FifoStride*id
// and its handshake is the link id.
type Dai struct {
	mu       sync.Mutex
	id       int
	triggers []multidma.TriggerCmd
	stores   int
	restores int
	put      bool
	fail     error
}

func (d *Dai) Trigger(cmd multidma.TriggerCmd, dir multidma.Direction) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return d.fail
	}
	d.triggers = append(d.triggers, cmd)
	return nil
}

func (d *Dai) Fifo(dir multidma.Direction, id int) uint32 {
	return uint32(FifoBase + FifoStride*id)
}

func (d *Dai) Handshake(dir multidma.Direction, id int) uint32 {
	return uint32(id)
}

func (d *Dai) ContextStore() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stores++
	return d.fail
}

func (d *Dai) ContextRestore() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.restores++
	return d.fail
}

func (d *Dai) Put() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.put = true
}

// Fail makes the trigger and context operations return err.
func (d *Dai) Fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = err
}

// Triggers returns the trigger commands received.
func (d *Dai) Triggers() []multidma.TriggerCmd {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]multidma.TriggerCmd(nil), d.triggers...)
}

// Contexts returns the number of context stores and restores.
func (d *Dai) Contexts() (stores, restores int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stores, d.restores
}

// IsPut returns true once the DAI has been put.
func (d *Dai) IsPut() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.put
}

// DaiSet creates and tracks software DAIs.
type DaiSet struct {
	mu   sync.Mutex
	dais map[int]*Dai
}

// NewDaiSet creates an empty DaiSet.
func NewDaiSet() *DaiSet {
	return &DaiSet{dais: make(map[int]*Dai)}
}

// Get is a multidma.DaiGetter returning the DAI of the link, creating
// it if needed.
func (s *DaiSet) Get(typ uint32, id int) (multidma.Dai, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dais[id]
	if !ok {
		d = &Dai{id: id}
		s.dais[id] = d
	}
	return d, nil
}

// Dai returns the DAI of the link, or nil.
func (s *DaiSet) Dai(id int) *Dai {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dais[id]
}

// Routes returns a routing table for the links, without creating DAIs.
func Routes(links ...int) multidma.RouteTable {
	var d Dai
	rt := make(multidma.RouteTable, len(links))
	for i, id := range links {
		rt[i] = multidma.Route{Link: id, Fifo: d.Fifo(multidma.MemToDev, id), Handshake: d.Handshake(multidma.MemToDev, id)}
	}
	return rt
}
