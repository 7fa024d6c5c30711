// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInfoLayout(t *testing.T) {
	info, err := NewInfo([]Sequence{
		{Name: "q0", Residues: []byte("MKT")},
		{Name: "q1", Residues: []byte("AAAA")},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, info.NumQueries())
	assert.Equal(t, Range{0, 3}, info.QueryRange(0))
	assert.Equal(t, Range{0, 4}, info.QueryRange(1))
	assert.Equal(t, uint32(0), info.QueryBias(0))
	assert.Equal(t, uint32(3), info.QueryBias(1))
}

func TestLocalOffsetOf(t *testing.T) {
	info, err := NewInfo([]Sequence{
		{Name: "q0", Residues: []byte("MKT")},
		{Name: "q1", Residues: []byte("AAAA")},
	})
	require.NoError(t, err)

	for _, tc := range []struct {
		global       uint32
		wantQuery    int
		wantLocalOff uint32
	}{
		{0, 0, 0},
		{2, 0, 2},
		{3, 1, 0},
		{6, 1, 3},
	} {
		q, off := info.LocalOffsetOf(tc.global)
		assert.Equal(t, tc.wantQuery, q, "global %d", tc.global)
		assert.Equal(t, tc.wantLocalOff, off, "global %d", tc.global)
	}
}
