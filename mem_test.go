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
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeapAllocator(t *testing.T) {
	for _, align := range []int{1, 4, 64, 256} {
		m, err := HeapAllocator{}.Alloc(100, align)
		require.NoError(t, err)
		assert.Len(t, m.Buf(), 100)
		assert.Zero(t, m.PhysAddr()%uint64(align), "align %d", align)
		assert.NoError(t, m.Writeback(0, 100))
		assert.ErrorIs(t, m.Writeback(90, 20), ErrInvalidArgument)
		assert.NoError(t, m.Close())
	}
	_, err := HeapAllocator{}.Alloc(0, 4)
	assert.ErrorIs(t, err, ErrAllocationFailed)
}

func TestRingAdvance(t *testing.T) {
	r := make(ring, 16)
	assert.Equal(t, uint32(8), r.advance(4, 4))
	assert.Equal(t, uint32(0), r.advance(12, 4))
	assert.Equal(t, uint32(2), r.advance(14, 4))
}

func TestRingReader(t *testing.T) {
	r := ring{1, 2, 3, 4, 5, 6}
	rd := r.Open()
	b, err := io.ReadAll(rd)
	require.NoError(t, err)
	assert.Equal(t, []byte(r), b)

	off, err := rd.Seek(-2, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(4), off)
	p := make([]byte, 4)
	n, err := rd.Read(p)
	require.NoError(t, err)
	assert.Equal(t, []byte{5, 6}, p[:n])

	n, err = r.Open().ReadAt(p, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{2, 3, 4, 5}, p)
	_, err = rd.Seek(-10, io.SeekCurrent)
	assert.Error(t, err)
}
