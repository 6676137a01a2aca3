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

//go:build linux || darwin || freebsd

package multidma

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMmapAllocator(t *testing.T) {
	m, err := MmapAllocator{}.Alloc(5000, CacheAlign)
	require.NoError(t, err)
	b := m.Buf()
	require.Len(t, b, 5000)
	assert.Zero(t, m.PhysAddr()%CacheAlign)
	b[4999] = 0x5a
	assert.NoError(t, m.Writeback(4000, 1000))
	assert.NoError(t, m.Invalidate(0, 10))
	assert.ErrorIs(t, m.Writeback(4000, 1001), ErrInvalidArgument)
	assert.NoError(t, m.Close())
	assert.NoError(t, m.Close())

	_, err = MmapAllocator{}.Alloc(100, 1<<20)
	assert.ErrorIs(t, err, ErrAllocationFailed)
}
