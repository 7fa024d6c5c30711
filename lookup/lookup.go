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

// Package lookup builds and scans the protein seed lookup table: a
// thin-backbone builder that performs neighborhood expansion
// (the NeighborExpander component, in neighbor.go, grounded on
// core/blast_aalookup.c's s_AddWordHitsCore), finalized into a
// read-only thick backbone + overflow + presence-vector bit filter.
package lookup

import (
	"github.com/grailbio/base/errors"

	"github.com/boratyng/blastcore/matrix"
	"github.com/boratyng/blastcore/query"
)

// hitsPerCell is the number of offsets stored inline in a
// thick-backbone cell before it migrates to the overflow array.
// Matches AA_HITS_PER_CELL in core/blast_aalookup.c.
const hitsPerCell = 3

// maxBackboneEntries bounds Σ^w so a misconfigured (w, Σ) pair fails
// fast with AllocFailed instead of attempting a multi-terabyte
// allocation. w is 2 or 3 in practice, which keeps any real call far
// under this.
const maxBackboneEntries = 1 << 30

// Errors returned by this package. They wrap github.com/grailbio/base/errors
// values so callers can use errors.Is against them.
var (
	ErrAllocFailed   = errors.New("lookup: backbone or overflow allocation too large")
	ErrFinalized     = errors.New("lookup: table already finalized")
	ErrNotFinalized  = errors.New("lookup: table not finalized")
	ErrBadWordLength = errors.New("lookup: word length must be 2 or 3")
)

// Options configures a Builder.
type Options struct {
	// WordLength is the number of residues per word (w). 2 or 3 in
	// practice.
	WordLength int
	// AlphabetSize is Σ, the number of distinct residues (typically the
	// Dim() of the matrix.Matrix used to build the table).
	AlphabetSize int
	// Threshold is the neighborhood score cutoff T. T == 0 disables
	// neighborhood expansion: only exact query words are indexed.
	Threshold int32
	// UsePSSM records that the table is built from a position-specific
	// scoring matrix (Builder.IndexPSSM) rather than from query words
	// (Builder.IndexQuery). Builder does not read it: the caller selects
	// the path by which of the two methods it calls.
	UsePSSM bool
}

// backboneCell is one thick-backbone entry: either empty (NumUsed==0),
// "few" (NumUsed <= hitsPerCell, offsets stored inline), or "many"
// (NumUsed > hitsPerCell, offsets in Table.overflow starting at
// Cursor).
type backboneCell struct {
	NumUsed int32
	Entries [hitsPerCell]uint32
	Cursor  int32
}

// Table is the frozen, read-only lookup table produced by
// Builder.Finalize. Once built it is safe for concurrent Scan calls
// from many goroutines (invariant L1).
type Table struct {
	wordLength   int
	alphabetSize int
	backboneSize uint64
	backbone     []backboneCell
	overflow     []uint32
	presence     []uint64
}

// WordLength returns w.
func (t *Table) WordLength() int { return t.wordLength }

// AlphabetSize returns Σ.
func (t *Table) AlphabetSize() int { return t.alphabetSize }

// BackboneSize returns Σ^w.
func (t *Table) BackboneSize() uint64 { return t.backboneSize }

func packedKey(word []byte, alphabetSize int) uint64 {
	var k uint64
	for _, r := range word {
		k = k*uint64(alphabetSize) + uint64(r)
	}
	return k
}

func presenceWords(backboneSize uint64) int {
	return int((backboneSize + 63) / 64)
}

func presenceGet(presence []uint64, key uint64) bool {
	return presence[key/64]&(1<<(key%64)) != 0
}

func presenceSet(presence []uint64, key uint64) {
	presence[key/64] |= 1 << (key % 64)
}

// Present reports whether any word hashes to key in this table.
func (t *Table) Present(key uint64) bool {
	return presenceGet(t.presence, key)
}

// EmitFunc receives each (queryOffset, subjectPosition) seed produced by
// Scan.
type EmitFunc func(queryOffset uint32, subjectPosition int)

// Scan calls emit once for every stored query offset at every w-mer
// window of subject[startOffset:endOffset+wordLength] (so that the
// last window starts at endOffset). Scan performs no allocation and is
// safe to call concurrently from many goroutines on the same frozen
// Table.
func (t *Table) Scan(subject []byte, startOffset, endOffset int, emit EmitFunc) {
	w := t.wordLength
	for pos := startOffset; pos <= endOffset; pos++ {
		if pos+w > len(subject) {
			break
		}
		key := packedKey(subject[pos:pos+w], t.alphabetSize)
		if !presenceGet(t.presence, key) {
			continue
		}
		cell := &t.backbone[key]
		if cell.NumUsed <= hitsPerCell {
			for i := int32(0); i < cell.NumUsed; i++ {
				emit(cell.Entries[i], pos)
			}
		} else {
			start := cell.Cursor
			for i := int32(0); i < cell.NumUsed; i++ {
				emit(t.overflow[start+i], pos)
			}
		}
	}
}

// QueryInfo is the subset of query.Info that describes a set of queries
// indexed into one table. Builder does not take it: callers read each
// query's residues and bias from it and pass them to IndexQuery.
type QueryInfo interface {
	NumQueries() int
	QueryRange(i int) query.Range
	QueryBias(i int) uint32
	Sequence(i int) []byte
}

// Matrix is the subset of *matrix.Matrix that neighborhood expansion
// needs. Declared as an interface so PSSM-backed scoring (a per-column
// matrix) and a fixed matrix.Matrix can share this code path.
type Matrix interface {
	Score(a, b matrix.Residue) int32
	RowMax(a matrix.Residue) int32
	Dim() int
}
