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

const (
	MaxChannels   = 4  // Number of multiplex channels per device
	MaxLinks      = 8  // Number of links per channel
	MaxTransforms = 8  // Number of transforms per link
	MaxMapEntries = 32 // Number of entries in a stream map
	nSlots        = 32 // Slot positions in a link frame

	BufferAlign = 4  // Required alignment of buffer sizes
	CopyAlign   = 4  // Required alignment of copy sizes
	CacheAlign  = 64 // Alignment of the link buffer
	PeriodCount = 3  // Preferred number of periods
)

// Direction of a transfer.
type Direction int

const (
	MemToDev Direction = iota // Playback
	DevToMem                  // Capture
)

func (d Direction) String() string {
	switch d {
	case MemToDev:
		return "mem-to-dev"
	case DevToMem:
		return "dev-to-mem"
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

// Elem is a single transfer descriptor.
type Elem struct {
	Src  uint64
	Dest uint64
	Size uint32
}

// memAddr returns the memory side address of the descriptor.
func (e Elem) memAddr(d Direction) uint64 {
	if d == DevToMem {
		return e.Dest
	}
	return e.Src
}

// Config is the transfer configuration passed to Channel.SetConfig.
// The descriptors in Elems describe Source, which is the
// interleaved buffer of the pipeline. The memory address of the first
// descriptor corresponds to Source[0]. Each descriptor is one period,
// and the descriptors must be contiguous and of equal size.
type Config struct {
	Direction    Direction
	ChannelBytes uint32 // Bytes per sample of one audio channel
	Elems        []Elem
	Source       []byte
	Map          *StreamMap
	Routes       Routing
}

// Attribute identifies a fixed property of the device.
type Attribute int

const (
	AttrBufferAlignment Attribute = iota
	AttrCopyAlignment
	AttrBufferAddressAlignment
	AttrBufferPeriodCount
)

// linkDescriptors builds the descriptors for one link, with count
// periods of size bytes, starting at the memory address addr and
// transferring to or from the device FIFO.
func linkDescriptors(d Direction, count int, size uint32, addr uint64, fifo uint32) []Elem {
	elems := make([]Elem, count)
	for i := range elems {
		elems[i].Size = size
		if d == MemToDev {
			elems[i].Src = addr
			elems[i].Dest = uint64(fifo)
		} else {
			elems[i].Src = uint64(fifo)
			elems[i].Dest = addr
		}
		addr += uint64(size)
	}
	return elems
}
