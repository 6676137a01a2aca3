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
	"sync/atomic"

	"github.com/platinasystems/log"
)

var verbose int32

// Verbose enables tracing of the copy path and completion interrupts.
func Verbose(on bool) {
	if on {
		atomic.StoreInt32(&verbose, 1)
	} else {
		atomic.StoreInt32(&verbose, 0)
	}
}

func trace(format string, args ...interface{}) {
	log.Printf(append([]interface{}{"info", "multidma: " + format}, args...)...)
}

func traceErr(format string, args ...interface{}) {
	log.Printf(append([]interface{}{"err", "multidma: " + format}, args...)...)
}

// tracev traces from the copy path and interrupt context.
func tracev(format string, args ...interface{}) {
	if atomic.LoadInt32(&verbose) == 0 {
		return
	}
	log.Printf(append([]interface{}{"debug", "multidma: " + format}, args...)...)
}
