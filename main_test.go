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

package multidma_test

import (
	"encoding/binary"
	"io"
	"os"
	"testing"

	"github.com/platinasystems/log"
	"github.com/stretchr/testify/require"

	"github.com/aamcrae/multidma"
	"github.com/aamcrae/multidma/swdma"
)

func TestMain(m *testing.M) {
	log.Tee(io.Discard)
	os.Exit(m.Run())
}

const srcAddr = 0x20000

// rig is a controller on a manual software engine with channel 0 checked
// out. The channel callback records the completed sizes.
type rig struct {
	t    *testing.T
	eng  *swdma.Engine
	ctl  *multidma.Controller
	ch   *multidma.Channel
	src  []byte
	done []uint32
}

func newRig(t *testing.T) *rig {
	r := &rig{t: t, eng: swdma.New(16)}
	r.eng.Manual = true
	ctl, err := multidma.Probe(r.eng, nil, multidma.MaxChannels)
	require.NoError(t, err)
	r.ctl = ctl
	t.Cleanup(ctl.Remove)
	r.ch, err = ctl.Channel(0)
	require.NoError(t, err)
	r.ch.SetCallback(func(ev multidma.EventKind, next *multidma.CallbackData) {
		r.done = append(r.done, next.Size)
	})
	return r
}

// fourChannels routes channels 0 and 2 to link 5, and 1 and 3 to link 7.
func fourChannels() *multidma.StreamMap {
	return multidma.NewStreamMap().
		Map(0, 5, 1<<1, 1).
		Map(2, 5, 1<<0, 1).
		Map(1, 7, 1<<0, 1).
		Map(3, 7, 1<<1, 1)
}

// perLink routes channel i to slot 0 of link i.
func perLink(n int) *multidma.StreamMap {
	sm := multidma.NewStreamMap()
	for i := 0; i < n; i++ {
		sm.Map(i, i, 1, 1)
	}
	return sm
}

func descriptors(period, periods int) []multidma.Elem {
	elems := make([]multidma.Elem, periods)
	for i := range elems {
		elems[i] = multidma.Elem{Src: srcAddr + uint64(i*period), Size: uint32(period)}
	}
	return elems
}

// config returns a playback config of 4 byte samples with a fresh source.
func (r *rig) config(sm *multidma.StreamMap, period, periods int) *multidma.Config {
	r.src = make([]byte, period*periods)
	return &multidma.Config{
		Direction:    multidma.MemToDev,
		ChannelBytes: 4,
		Elems:        descriptors(period, periods),
		Source:       r.src,
		Map:          sm,
		Routes:       swdma.Routes(sm.Links()...),
	}
}

func (r *rig) setWords(w ...uint32) {
	for i, v := range w {
		binary.LittleEndian.PutUint32(r.src[i*4:], v)
	}
}

func (r *rig) srcWords() []uint32 {
	return toWords(r.src)
}

func linkWords(t *testing.T, l *multidma.Link) []uint32 {
	b, err := io.ReadAll(l.Buffer())
	require.NoError(t, err)
	return toWords(b)
}

func toWords(b []byte) []uint32 {
	w := make([]uint32, len(b)/4)
	for i := range w {
		w[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return w
}
