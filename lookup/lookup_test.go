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

package lookup

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boratyng/blastcore/matrix"
	"github.com/boratyng/blastcore/query"
)

func toResidues(t *testing.T, s string) []byte {
	t.Helper()
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		r := matrix.ResidueIndex(s[i])
		require.GreaterOrEqual(t, r, int8(0), "unrecognized residue %c", s[i])
		out[i] = byte(r)
	}
	return out
}

func scanAll(t *Table, subject []byte) []uint32 {
	var got []uint32
	t.Scan(subject, 0, len(subject)-t.WordLength(), func(off uint32, pos int) {
		got = append(got, off)
	})
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	return got
}

func TestExactMatchOnlyWhenThresholdZero(t *testing.T) {
	m, err := matrix.Load("BLOSUM62", 1)
	require.NoError(t, err)

	b, err := NewBuilder(Options{WordLength: 3, AlphabetSize: m.Dim(), Threshold: 0})
	require.NoError(t, err)

	q := toResidues(t, "MKT")
	require.NoError(t, b.IndexQuery(q, []query.Range{{0, 3}}, 0, m))

	tbl, err := b.Finalize()
	require.NoError(t, err)

	// Exact match present.
	assert.Equal(t, []uint32{0}, scanAll(tbl, toResidues(t, "MKT")))
	// Neighboring but non-identical word absent when T==0.
	assert.Empty(t, scanAll(tbl, toResidues(t, "LKT")))
}

func TestNeighborhoodExpansionIncludesScoringMatch(t *testing.T) {
	m, err := matrix.Load("BLOSUM62", 1)
	require.NoError(t, err)

	b, err := NewBuilder(Options{WordLength: 3, AlphabetSize: m.Dim(), Threshold: 11})
	require.NoError(t, err)

	q := toResidues(t, "MKT")
	require.NoError(t, b.IndexQuery(q, []query.Range{{0, 3}}, 0, m))
	tbl, err := b.Finalize()
	require.NoError(t, err)

	// "LKT" scores 2+5+5=12 >= 11, so it must be reachable.
	assert.Equal(t, []uint32{0}, scanAll(tbl, toResidues(t, "LKT")))
}

func TestNeighborhoodExpansionExcludesBelowThreshold(t *testing.T) {
	m, err := matrix.Load("BLOSUM62", 1)
	require.NoError(t, err)

	b, err := NewBuilder(Options{WordLength: 3, AlphabetSize: m.Dim(), Threshold: 13})
	require.NoError(t, err)

	q := toResidues(t, "MKT")
	require.NoError(t, b.IndexQuery(q, []query.Range{{0, 3}}, 0, m))
	tbl, err := b.Finalize()
	require.NoError(t, err)

	// "LKT" scores 12 < 13, must not be reachable.
	assert.Empty(t, scanAll(tbl, toResidues(t, "LKT")))
}

func TestPresenceBitMatchesBackboneOccupancy(t *testing.T) {
	m, err := matrix.Load("BLOSUM62", 1)
	require.NoError(t, err)
	b, err := NewBuilder(Options{WordLength: 3, AlphabetSize: m.Dim(), Threshold: 11})
	require.NoError(t, err)
	require.NoError(t, b.IndexQuery(toResidues(t, "MKT"), []query.Range{{0, 3}}, 0, m))
	tbl, err := b.Finalize()
	require.NoError(t, err)

	for key := uint64(0); key < tbl.backboneSize; key++ {
		cell := tbl.backbone[key]
		if cell.NumUsed > 0 {
			assert.True(t, tbl.Present(key), "key %d has hits but presence bit unset", key)
		}
	}
}

func TestIndexQueryAfterFinalizeFails(t *testing.T) {
	m, err := matrix.Load("BLOSUM62", 1)
	require.NoError(t, err)
	b, err := NewBuilder(Options{WordLength: 3, AlphabetSize: m.Dim(), Threshold: 0})
	require.NoError(t, err)
	_, err = b.Finalize()
	require.NoError(t, err)

	err = b.IndexQuery(toResidues(t, "MKT"), []query.Range{{0, 3}}, 0, m)
	assert.ErrorIs(t, err, ErrFinalized)
}

func TestEmptyLocationsYieldsEmptyTable(t *testing.T) {
	m, err := matrix.Load("BLOSUM62", 1)
	require.NoError(t, err)
	b, err := NewBuilder(Options{WordLength: 3, AlphabetSize: m.Dim(), Threshold: 11})
	require.NoError(t, err)
	require.NoError(t, b.IndexQuery(toResidues(t, "MKT"), nil, 0, m))
	tbl, err := b.Finalize()
	require.NoError(t, err)
	for key := uint64(0); key < tbl.backboneSize; key++ {
		assert.False(t, tbl.Present(key))
	}
}

func TestDuplicateLocationsCollapse(t *testing.T) {
	m, err := matrix.Load("BLOSUM62", 1)
	require.NoError(t, err)
	b, err := NewBuilder(Options{WordLength: 3, AlphabetSize: m.Dim(), Threshold: 0})
	require.NoError(t, err)
	q := toResidues(t, "MKT")
	require.NoError(t, b.IndexQuery(q, []query.Range{{0, 3}, {0, 3}}, 0, m))
	tbl, err := b.Finalize()
	require.NoError(t, err)

	var hits int
	tbl.Scan(toResidues(t, "MKT"), 0, 0, func(off uint32, pos int) { hits++ })
	assert.Equal(t, 1, hits)
}

func TestBuildDeterministic(t *testing.T) {
	m, err := matrix.Load("BLOSUM62", 1)
	require.NoError(t, err)

	build := func() *Table {
		b, err := NewBuilder(Options{WordLength: 3, AlphabetSize: m.Dim(), Threshold: 11})
		require.NoError(t, err)
		require.NoError(t, b.IndexQuery(toResidues(t, "MKTLKT"), []query.Range{{0, 6}}, 0, m))
		tbl, err := b.Finalize()
		require.NoError(t, err)
		return tbl
	}

	t1, t2 := build(), build()
	assert.Equal(t, t1.backbone, t2.backbone)
	assert.Equal(t, t1.overflow, t2.overflow)
	assert.Equal(t, t1.presence, t2.presence)
}
