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
	"encoding/binary"
	"fmt"
)

// NoLink marks a stream map entry that is not routed to any link.
const NoLink = -1

const (
	mapHeaderSize = 4
	mapEntrySize  = 16
)

// ChannelMapEntry routes one audio channel onto the slots of a link.
type ChannelMapEntry struct {
	Channel uint16 // Audio channel index within the source frame
	Link    int32  // Target link, or NoLink
	Mask    uint32 // Slots of the link frame carrying this channel
	Coeff   int32
}

// Routed returns true if the entry targets a link.
func (e ChannelMapEntry) Routed() bool {
	return e.Link != NoLink
}

// StreamMap is the channel map of a stream.
// A map is built through the chained Map method e.g:
//   sm := NewStreamMap()
//   sm.Map(0, 5, 1<<1, 1).Map(2, 5, 1<<0, 1)
// Several entries may target the same link with different slot masks.
type StreamMap struct {
	Entries []ChannelMapEntry
}

// NewStreamMap creates an empty StreamMap.
func NewStreamMap() *StreamMap {
	return new(StreamMap)
}

// Map adds an entry routing the audio channel ch to the slots in mask of link.
func (sm *StreamMap) Map(ch, link int, mask uint32, coeff int32) *StreamMap {
	sm.Entries = append(sm.Entries, ChannelMapEntry{Channel: uint16(ch), Link: int32(link), Mask: mask, Coeff: coeff})
	return sm
}

// Links returns the distinct links targeted by the map, in the order
// they first appear.
func (sm *StreamMap) Links() []int {
	var links []int
next:
	for _, e := range sm.Entries {
		if !e.Routed() {
			continue
		}
		for _, l := range links {
			if l == int(e.Link) {
				continue next
			}
		}
		links = append(links, int(e.Link))
	}
	return links
}

// Transforms returns the source frame offsets gathered into the frame of link.
// Slot positions are scanned in ascending order, and for each slot the
// entries are scanned in map order, so the result fixes the order of the
// samples in the link frame.
func (sm *StreamMap) Transforms(link int, chBytes uint32) ([]uint32, error) {
	var offs []uint32
	for slot := 0; slot < nSlots; slot++ {
		bit := uint32(1) << uint(slot)
		for _, e := range sm.Entries {
			if int(e.Link) != link || e.Mask&bit == 0 {
				continue
			}
			if len(offs) == MaxTransforms {
				return nil, fmt.Errorf("link %d: more than %d transforms: %w", link, MaxTransforms, ErrInvalidConfig)
			}
			offs = append(offs, uint32(e.Channel)*chBytes)
		}
	}
	return offs, nil
}

// MarshalBinary encodes the map in the IPC wire format:
// a 32 bit entry count followed by 16 byte entries.
func (sm *StreamMap) MarshalBinary() ([]byte, error) {
	if len(sm.Entries) > MaxMapEntries {
		return nil, fmt.Errorf("%d map entries: %w", len(sm.Entries), ErrInvalidConfig)
	}
	b := make([]byte, mapHeaderSize+mapEntrySize*len(sm.Entries))
	binary.LittleEndian.PutUint32(b, uint32(len(sm.Entries)))
	p := b[mapHeaderSize:]
	for _, e := range sm.Entries {
		binary.LittleEndian.PutUint16(p[0:], e.Channel)
		binary.LittleEndian.PutUint32(p[4:], uint32(e.Link))
		binary.LittleEndian.PutUint32(p[8:], e.Mask)
		binary.LittleEndian.PutUint32(p[12:], uint32(e.Coeff))
		p = p[mapEntrySize:]
	}
	return b, nil
}

// UnmarshalBinary decodes a map in the IPC wire format, replacing any
// existing entries.
func (sm *StreamMap) UnmarshalBinary(b []byte) error {
	if len(b) < mapHeaderSize {
		return fmt.Errorf("stream map blob too short (%d bytes): %w", len(b), ErrInvalidConfig)
	}
	n := int(binary.LittleEndian.Uint32(b))
	if n > MaxMapEntries {
		return fmt.Errorf("%d map entries: %w", n, ErrInvalidConfig)
	}
	p := b[mapHeaderSize:]
	if len(p) < n*mapEntrySize {
		return fmt.Errorf("stream map blob truncated, %d entries in %d bytes: %w", n, len(b), ErrInvalidConfig)
	}
	sm.Entries = make([]ChannelMapEntry, n)
	for i := range sm.Entries {
		e := &sm.Entries[i]
		e.Channel = binary.LittleEndian.Uint16(p[0:])
		e.Link = int32(binary.LittleEndian.Uint32(p[4:]))
		e.Mask = binary.LittleEndian.Uint32(p[8:])
		e.Coeff = int32(binary.LittleEndian.Uint32(p[12:]))
		p = p[mapEntrySize:]
	}
	return nil
}

// DecodeStreamMap creates a StreamMap from an IPC blob.
func DecodeStreamMap(b []byte) (*StreamMap, error) {
	sm := NewStreamMap()
	if err := sm.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return sm, nil
}
