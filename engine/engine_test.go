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

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boratyng/blastcore/collect"
	"github.com/boratyng/blastcore/extend"
	"github.com/boratyng/blastcore/lookup"
	"github.com/boratyng/blastcore/matrix"
	"github.com/boratyng/blastcore/query"
	"github.com/boratyng/blastcore/subject"
)

func toResidues(t *testing.T, s string) []byte {
	t.Helper()
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		r := matrix.ResidueIndex(s[i])
		require.GreaterOrEqual(t, r, int8(0))
		out[i] = byte(r)
	}
	return out
}

func buildTable(t *testing.T, threshold int32, q []byte) (*lookup.Table, *matrix.Matrix) {
	t.Helper()
	m, err := matrix.Load("BLOSUM62", 1)
	require.NoError(t, err)
	b, err := lookup.NewBuilder(lookup.Options{WordLength: 3, AlphabetSize: m.Dim(), Threshold: threshold})
	require.NoError(t, err)
	require.NoError(t, b.IndexQuery(q, []query.Range{{0, query.Pos(len(q))}}, 0, m))
	tbl, err := b.Finalize()
	require.NoError(t, err)
	return tbl, m
}

// TestRunSingletonExactMatch runs a single exact-match query end to end.
func TestRunSingletonExactMatch(t *testing.T) {
	q := toResidues(t, "MKT")
	tbl, m := buildTable(t, 0, q)
	info, err := query.NewInfo([]query.Sequence{{Name: "q0", Residues: q}})
	require.NoError(t, err)

	src := subject.NewInMemoryList([]subject.Token{
		{ID: "s0", Residues: toResidues(t, "MKT")},
		{ID: "s1", Residues: toResidues(t, "AAA")},
	})
	coll := collect.New(1, 0, 0)

	h := Run(Config{
		NumWorkers:    1,
		Source:        src,
		Table:         tbl,
		Matrix:        m,
		QueryInfo:     info,
		Collector:     coll,
		ExtendOptions: extend.Options{WordLength: 3, WindowSize: 0, XDrop: 1000, UngappedCutoff: 0},
		TotalHspLimit: 0,
	}, nil)

	require.NoError(t, h.FindError())
	blob := h.Result()
	require.Len(t, blob.Hitlists, 1)
	lists := blob.Hitlists[0].Lists
	require.Len(t, lists, 1)
	assert.Equal(t, "s0", lists[0].SubjectID)
	require.Len(t, lists[0].Hsps, 1)
	assert.Equal(t, 0, lists[0].Hsps[0].QueryRange.From)
	assert.Equal(t, 2, lists[0].Hsps[0].QueryRange.To)
}

func TestRunEmptyQuerySetSpawnsNoWorkers(t *testing.T) {
	info, err := query.NewInfo(nil)
	require.NoError(t, err)
	coll := collect.New(0, 0, 0)
	src := subject.NewInMemoryList(nil)
	tbl, m := buildTable(t, 0, toResidues(t, "MKT"))

	h := Run(Config{
		NumWorkers: 4,
		Source:     src,
		Table:      tbl,
		Matrix:     m,
		QueryInfo:  info,
		Collector:  coll,
	}, nil)
	require.NoError(t, h.FindError())
	assert.Empty(t, h.Result().Hitlists)
}

func TestRunPropagatesSourceError(t *testing.T) {
	q := toResidues(t, "MKT")
	tbl, m := buildTable(t, 0, q)
	info, err := query.NewInfo([]query.Sequence{{Name: "q0", Residues: q}})
	require.NoError(t, err)
	coll := collect.New(1, 0, 0)

	h := Run(Config{
		NumWorkers:    2,
		Source:        failingSource{},
		Table:         tbl,
		Matrix:        m,
		QueryInfo:     info,
		Collector:     coll,
		ExtendOptions: extend.Options{WordLength: 3, XDrop: 1000},
	}, nil)
	assert.ErrorIs(t, h.FindError(), subject.ErrIO)
}

type failingSource struct{}

func (failingSource) Next() (*subject.Token, bool, error) {
	return nil, false, subject.ErrIO
}

// TestRunCancellation checks that a run whose cancellation is requested
// before any subject is pulled yields ErrCancelled and no frozen
// collector.
func TestRunCancellation(t *testing.T) {
	q := toResidues(t, "MKT")
	tbl, m := buildTable(t, 0, q)
	info, err := query.NewInfo([]query.Sequence{{Name: "q0", Residues: q}})
	require.NoError(t, err)
	coll := collect.New(1, 0, 0)

	var cancel Cancellation
	cancel.Cancel()

	src := subject.NewInMemoryList([]subject.Token{{ID: "s0", Residues: toResidues(t, "MKT")}})
	h := Run(Config{
		NumWorkers:    1,
		Source:        src,
		Table:         tbl,
		Matrix:        m,
		QueryInfo:     info,
		Collector:     coll,
		ExtendOptions: extend.Options{WordLength: 3, XDrop: 1000},
	}, &cancel)

	assert.ErrorIs(t, h.FindError(), ErrCancelled)
	assert.False(t, h.frozen)
}
