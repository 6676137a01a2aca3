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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fourChannels routes channels 0 and 2 to link 5, and 1 and 3 to link 7,
// with the slot order reversed on link 5.
func fourChannels() *StreamMap {
	return NewStreamMap().
		Map(0, 5, 1<<1, 1).
		Map(2, 5, 1<<0, 1).
		Map(1, 7, 1<<0, 1).
		Map(3, 7, 1<<1, 1)
}

func TestTransformsSlotOrder(t *testing.T) {
	sm := fourChannels()
	offs, err := sm.Transforms(5, 4)
	require.NoError(t, err)
	assert.Equal(t, []uint32{8, 0}, offs)
	offs, err = sm.Transforms(7, 4)
	require.NoError(t, err)
	assert.Equal(t, []uint32{4, 12}, offs)

	// Identical input gives identical output.
	again, err := sm.Transforms(7, 4)
	require.NoError(t, err)
	assert.Equal(t, offs, again)

	offs, err = sm.Transforms(9, 4)
	require.NoError(t, err)
	assert.Empty(t, offs)
}

func TestTransformsSharedSlot(t *testing.T) {
	// Both channels on slot 0, channel 6 also on slot 3: map order
	// decides within a slot, slot order decides across slots.
	sm := NewStreamMap().Map(6, 1, 1<<0|1<<3, 1).Map(2, 1, 1<<0, 1).Map(4, 1, 1<<1, 1)
	offs, err := sm.Transforms(1, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint32{12, 4, 8, 12}, offs)
}

func TestTransformsLimit(t *testing.T) {
	sm := NewStreamMap().Map(0, 0, 1<<MaxTransforms-1, 1)
	offs, err := sm.Transforms(0, 4)
	require.NoError(t, err)
	assert.Len(t, offs, MaxTransforms)

	sm.Map(1, 0, 1<<31, 1)
	_, err = sm.Transforms(0, 4)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLinksFirstSeen(t *testing.T) {
	sm := NewStreamMap().
		Map(0, 7, 1, 1).
		Map(1, NoLink, 1, 1).
		Map(2, 3, 1, 1).
		Map(3, 7, 2, 1).
		Map(4, 0, 1, 1)
	assert.Equal(t, []int{7, 3, 0}, sm.Links())
	assert.False(t, sm.Entries[1].Routed())
	assert.Empty(t, NewStreamMap().Links())
}

func TestStreamMapBlob(t *testing.T) {
	sm := fourChannels().Map(4, NoLink, 0, -3)
	b, err := sm.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, mapHeaderSize+5*mapEntrySize)
	assert.Equal(t, []byte{5, 0, 0, 0}, b[:4])
	// Channel 4, unassigned link.
	assert.Equal(t, []byte{4, 0, 0, 0, 0xff, 0xff, 0xff, 0xff}, b[4+4*16:4+4*16+8])

	dec, err := DecodeStreamMap(b)
	require.NoError(t, err)
	assert.Equal(t, sm.Entries, dec.Entries)
}

func TestStreamMapBlobErrors(t *testing.T) {
	_, err := DecodeStreamMap([]byte{1, 0})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = DecodeStreamMap([]byte{2, 0, 0, 0, 1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = DecodeStreamMap([]byte{MaxMapEntries + 1, 0, 0, 0})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	sm := NewStreamMap()
	for i := 0; i <= MaxMapEntries; i++ {
		sm.Map(i, 0, 1, 1)
	}
	_, err = sm.MarshalBinary()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
