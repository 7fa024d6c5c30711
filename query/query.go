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

// Package query provides bookkeeping that lets a single lookup table
// be built over several concatenated queries while still being able to
// map a global offset back to (query index, local offset).
package query

import (
	"fmt"
	"math"
	"sort"
)

// Pos is a query offset or sequence position, following the interval
// package's PosType convention of a signed 32-bit coordinate.
type Pos = int32

// PosMax is the largest representable Pos.
const PosMax = math.MaxInt32

// Range is a half-open [From, To) interval of query offsets.
type Range struct {
	From, To Pos
}

// Len returns To - From.
func (r Range) Len() int { return int(r.To - r.From) }

// maxBiasedOffset is the largest value bias plus any query position may
// reach.
const maxBiasedOffset = 1<<32 - 1

// Info is the QueryInfo collaborator: it holds, for a set of queries
// indexed together into one LookupTable, each query's local range and
// the bias added to its offsets when they are stored in the table.
type Info struct {
	seqs   []Sequence
	ranges []Range
	biases []uint32
}

// Sequence is a single query: its residues and display name. The
// residues are indices into a matrix.Alphabet-compatible alphabet.
type Sequence struct {
	Name     string
	Residues []byte
}

// NewInfo builds an Info for seqs, laying queries out back to back in a
// single concatenated offset space (bias[0] = 0, bias[i] = bias[i-1] +
// len(seqs[i-1])). This is the layout lookup.Builder.IndexQuery
// expects to receive via successive calls, one per query, each with its
// own bias.
func NewInfo(seqs []Sequence) (*Info, error) {
	info := &Info{
		seqs:   seqs,
		ranges: make([]Range, len(seqs)),
		biases: make([]uint32, len(seqs)),
	}
	var bias uint32
	for i, s := range seqs {
		info.ranges[i] = Range{From: 0, To: Pos(len(s.Residues))}
		info.biases[i] = bias
		end := uint64(bias) + uint64(len(s.Residues))
		if end > maxBiasedOffset {
			return nil, fmt.Errorf("query: offset space overflow at query %d (%s)", i, s.Name)
		}
		bias = uint32(end)
	}
	return info, nil
}

// NumQueries returns the number of queries indexed together.
func (info *Info) NumQueries() int { return len(info.seqs) }

// QueryRange returns the local [From, To) range of query i.
func (info *Info) QueryRange(i int) Range { return info.ranges[i] }

// QueryBias returns the bias added to offsets of query i when they are
// stored in a LookupTable.
func (info *Info) QueryBias(i int) uint32 { return info.biases[i] }

// Sequence returns the residues of query i.
func (info *Info) Sequence(i int) []byte { return info.seqs[i].Residues }

// Name returns the display name of query i.
func (info *Info) Name(i int) string { return info.seqs[i].Name }

// LocalOffsetOf maps a global (biased) offset back to the query index
// and local offset within that query that produced it.
func (info *Info) LocalOffsetOf(globalOffset uint32) (queryIdx int, localOffset uint32) {
	// biases is sorted ascending by construction; find the last bias <=
	// globalOffset.
	i := sort.Search(len(info.biases), func(i int) bool {
		return info.biases[i] > globalOffset
	})
	i--
	if i < 0 {
		i = 0
	}
	return i, globalOffset - info.biases[i]
}
