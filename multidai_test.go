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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aamcrae/multidma"
	"github.com/aamcrae/multidma/swdma"
)

const daiType = 3

func TestMultiDaiConfig(t *testing.T) {
	set := swdma.NewDaiSet()
	md := multidma.NewMultiDai(daiType, set.Get)
	require.NoError(t, md.SetConfig(fourChannels()))
	assert.Equal(t, []int{5, 7}, md.Links())
	require.NotNil(t, set.Dai(5))
	require.NotNil(t, set.Dai(7))

	// Links already present are not created again.
	require.NoError(t, md.SetConfig(perLink(2).Map(2, 7, 1, 1)))
	assert.Equal(t, []int{5, 7, 0, 1}, md.Links())

	rt := md.DmaInfo(multidma.MemToDev)
	require.Len(t, rt, 4)
	assert.Equal(t, multidma.Route{Link: 7, Fifo: swdma.FifoBase + 7*swdma.FifoStride, Handshake: 7}, rt[1])
	fifo, err := rt.Fifo(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(swdma.FifoBase), fifo)
	hs, err := rt.Handshake(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), hs)
	_, err = rt.Fifo(9)
	assert.ErrorIs(t, err, multidma.ErrNotFound)
	_, err = rt.Handshake(9)
	assert.ErrorIs(t, err, multidma.ErrNotFound)
}

func TestMultiDaiTooManyLinks(t *testing.T) {
	set := swdma.NewDaiSet()
	md := multidma.NewMultiDai(daiType, set.Get)
	err := md.SetConfig(perLink(multidma.MaxLinks + 1))
	assert.ErrorIs(t, err, multidma.ErrResourceExhausted)
	assert.Len(t, md.Links(), multidma.MaxLinks)
}

func TestMultiDaiGetFailure(t *testing.T) {
	fault := errors.New("no such dai")
	set := swdma.NewDaiSet()
	md := multidma.NewMultiDai(daiType, func(typ uint32, id int) (multidma.Dai, error) {
		assert.Equal(t, uint32(daiType), typ)
		if id == 7 {
			return nil, fault
		}
		return set.Get(typ, id)
	})
	assert.ErrorIs(t, md.SetConfig(fourChannels()), fault)
	assert.Equal(t, []int{5}, md.Links())
}

func TestMultiDaiTrigger(t *testing.T) {
	set := swdma.NewDaiSet()
	md := multidma.NewMultiDai(daiType, set.Get)
	require.NoError(t, md.SetConfig(perLink(3)))

	require.NoError(t, md.Trigger(multidma.TriggerStart, multidma.MemToDev))
	errA, errB := errors.New("trigger fault A"), errors.New("trigger fault B")
	set.Dai(0).Fail(errA)
	set.Dai(1).Fail(errB)
	err := md.Trigger(multidma.TriggerStop, multidma.MemToDev)
	assert.ErrorIs(t, err, errB)
	assert.NotErrorIs(t, err, errA)
	assert.Equal(t, []multidma.TriggerCmd{multidma.TriggerStart, multidma.TriggerStop}, set.Dai(2).Triggers())
	assert.Equal(t, []multidma.TriggerCmd{multidma.TriggerStart}, set.Dai(0).Triggers())
}

func TestMultiDaiContext(t *testing.T) {
	set := swdma.NewDaiSet()
	md := multidma.NewMultiDai(daiType, set.Get)
	require.NoError(t, md.SetConfig(fourChannels()))
	require.NoError(t, md.ContextStore())
	require.NoError(t, md.ContextRestore())
	fault := errors.New("context fault")
	set.Dai(5).Fail(fault)
	assert.ErrorIs(t, md.ContextStore(), fault)
	for _, id := range []int{5, 7} {
		stores, restores := set.Dai(id).Contexts()
		assert.Equal(t, 2, stores, "dai %d", id)
		assert.Equal(t, 1, restores, "dai %d", id)
	}
}

func TestMultiDaiRemove(t *testing.T) {
	set := swdma.NewDaiSet()
	md := multidma.NewMultiDai(daiType, set.Get)
	require.NoError(t, md.SetConfig(fourChannels()))
	md.Remove()
	assert.True(t, set.Dai(5).IsPut())
	assert.True(t, set.Dai(7).IsPut())
	assert.Empty(t, md.Links())
}

// The routes of a MultiDai drive the configuration of a channel.
func TestMultiDaiRouting(t *testing.T) {
	r := newRig(t)
	set := swdma.NewDaiSet()
	md := multidma.NewMultiDai(daiType, set.Get)
	sm := fourChannels()
	require.NoError(t, md.SetConfig(sm))
	cfg := r.config(sm, 32, 1)
	cfg.Routes = md.DmaInfo(cfg.Direction)
	require.NoError(t, r.ch.SetConfig(cfg))
	require.NoError(t, md.Trigger(multidma.TriggerStart, cfg.Direction))
	require.NoError(t, r.ch.Start())
	assert.Equal(t, uint32(5), r.eng.Channel(5).Config().DestDev)
	assert.Equal(t, uint64(swdma.FifoBase+7*swdma.FifoStride), r.eng.Channel(7).Config().Elems[0].Dest)
}
