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

// EventKind identifies the event reported to a Callback.
type EventKind int

const (
	EventCopy EventKind = iota // A transfer has completed
)

// CallbackStatus tells the engine how to continue after a completion.
type CallbackStatus int

const (
	Reload CallbackStatus = iota // Continue with the next period
	End                          // Stop after this period
	Ignore
)

// CallbackData describes a completion. Size holds the bytes completed, and
// the callback sets Status to select what the engine does next.
type CallbackData struct {
	Size   uint32
	Status CallbackStatus
}

// Callback is invoked on a transfer completion.
type Callback func(ev EventKind, next *CallbackData)

// Status is the position report of a channel.
type Status struct {
	State     State
	ReadPos   uint32
	WritePos  uint32
	Timestamp uint64
}

// LinkConfig is the configuration applied to the physical channel of a link.
// Buffer is the memory the descriptors address on the memory side.
type LinkConfig struct {
	Direction Direction
	Elems     []Elem
	SrcDev    uint32 // Handshake for capture
	DestDev   uint32 // Handshake for playback
	Buffer    []byte
}

// Engine is the physical DMA controller that provides one channel per link.
type Engine interface {
	// Acquire claims the physical channel serving link.
	// A channel that is already claimed returns ErrBusy.
	Acquire(link int) (PhysChannel, error)
}

// PhysChannel is a single physical DMA channel.
// Completion callbacks must be delivered asynchronously, never from
// within the calls below; they run in the context of the
// completion interrupt.
type PhysChannel interface {
	Release()
	Configure(lc *LinkConfig) error
	SetCallback(cb Callback)
	Start() error
	Stop() error
	Pause() error
	Resume() error
	Transfer(bytes int, flags uint32) error
	Status(d Direction) (Status, error)
	DataSize() (avail, free uint32, err error)
}

// Routing maps link ids to the FIFO address and the hardware handshake
// of the serial link. Unknown links return ErrNotFound.
type Routing interface {
	Fifo(link int) (uint32, error)
	Handshake(link int) (uint32, error)
}

// Device is the set of operations the pipeline uses on a DMA channel.
type Device interface {
	Put()
	SetConfig(cfg *Config) error
	SetCallback(cb Callback)
	Start() error
	Stop() error
	Pause() error
	Release() error
	Copy(bytes int, flags uint32) (int, error)
	Status(d Direction) (Status, error)
	DataSize() (avail, free uint32, err error)
}

var _ Device = (*Channel)(nil)
