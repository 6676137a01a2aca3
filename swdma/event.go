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

import "sync"

// event is the completion interrupt line of a channel.
// Raising the line is never blocked; raises that arrive while the
// handler is busy are coalesced, so the handler must drain all the work
// queued when it runs.
type event struct {
	mu                sync.Mutex
	handlerRegistered bool
	evChan            chan bool
	stopChan          chan struct{}
}

// newEvent creates and initialises an event.
func newEvent() *event {
	return &event{evChan: make(chan bool, 1)}
}

// raise signals the line.
func (e *event) raise() {
	select {
	case e.evChan <- true:
	default:
		// Already pending.
	}
}

// setHandler installs an asynch handler that is invoked when the line
// is raised.
func (e *event) setHandler(f func()) {
	e.clearHandler()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlerRegistered = true
	e.stopChan = make(chan struct{})
	go e.dispatcher(f, e.stopChan)
}

// clearHandler removes any currently installed handler. It does not wait
// for a running handler to return, as the handler may be blocked on a
// lock held by the caller.
func (e *event) clearHandler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlerRegistered {
		close(e.stopChan)
		e.handlerRegistered = false
	}
}

// dispatcher is a shim between the line and the handler.
// The stop channel is used to indicate when the handler should terminate.
func (e *event) dispatcher(f func(), stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-e.evChan:
			select {
			case <-stop:
				return
			default:
			}
			f()
		}
	}
}
