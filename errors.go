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

import "errors"

// Errors returned by the multiplexer, and expected from Engine and Routing
// implementations. Returned errors wrap one of these with context, so test
// them with errors.Is.
var (
	ErrBusy              = errors.New("busy")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrInvalidConfig     = errors.New("invalid config")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrAllocationFailed  = errors.New("allocation failed")
)
