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
	"fmt"

	"github.com/boratyng/blastcore/query"
)

// Builder accumulates query words into a thin (mutable) backbone; call
// Finalize to obtain a frozen, read-only Table. A Builder is not safe
// for concurrent use; indexing happens once, single-threaded, before
// the concurrent search phase begins.
//
// The thin backbone is a scratch arena: thinBackbone holds one growable
// []uint32 per backbone key, all owned by the Builder; Finalize copies
// the non-empty per-key slices into Table.backbone/overflow and the
// whole arena is then dropped.
type Builder struct {
	opts         Options
	backboneSize uint64
	thinBackbone [][]uint32
	finalized    bool
}

// NewBuilder validates opts and allocates the thin backbone.
func NewBuilder(opts Options) (*Builder, error) {
	if opts.WordLength != 2 && opts.WordLength != 3 {
		return nil, ErrBadWordLength
	}
	if opts.AlphabetSize <= 0 {
		return nil, fmt.Errorf("lookup: invalid alphabet size %d", opts.AlphabetSize)
	}
	if opts.Threshold < 0 {
		return nil, fmt.Errorf("lookup: threshold must be >= 0, got %d", opts.Threshold)
	}

	backboneSize := uint64(1)
	for i := 0; i < opts.WordLength; i++ {
		backboneSize *= uint64(opts.AlphabetSize)
		if backboneSize > maxBackboneEntries {
			return nil, ErrAllocFailed
		}
	}

	return &Builder{
		opts:         opts,
		backboneSize: backboneSize,
		thinBackbone: make([][]uint32, backboneSize),
	}, nil
}

// addWordHit appends offset to the thin-backbone chain for key. This is
// the single mutation point shared by exact-match insertion and
// neighborhood expansion (BlastLookupAddWordHit in
// core/blast_aalookup.c).
func (b *Builder) addWordHit(key uint64, offset uint32) {
	b.thinBackbone[key] = append(b.thinBackbone[key], offset)
}

// IndexQuery adds every word inside locations from query, with bias
// added to each stored offset: exact-match grouping followed by
// threshold-pruned neighborhood expansion when opts.Threshold > 0.
//
// Every exact query word is indexed. When opts.Threshold is 0, or a
// word's self-score is below opts.Threshold, expansion does not reach
// the word itself, so its offsets are inserted directly; otherwise
// expansion inserts them.
//
// locations may be empty (legal, indexes nothing); overlapping or
// duplicate locations are collapsed (each query offset is indexed at
// most once) rather than rejected.
func (b *Builder) IndexQuery(residues []byte, locations []query.Range, bias uint32, m Matrix) error {
	if b.finalized {
		return ErrFinalized
	}
	w := b.opts.WordLength

	visited := make([]bool, len(residues))
	groups := make(map[uint64][]uint32)
	var order []uint64 // preserves first-seen order of keys, for determinism
	for _, loc := range locations {
		from, to := int(loc.From), int(loc.To)
		for pos := from; pos+w <= to && pos+w <= len(residues); pos++ {
			if pos < 0 || visited[pos] {
				continue
			}
			visited[pos] = true
			key := packedKey(residues[pos:pos+w], b.opts.AlphabetSize)
			if _, ok := groups[key]; !ok {
				order = append(order, key)
			}
			groups[key] = append(groups[key], uint32(pos))
		}
	}

	threshold := b.opts.Threshold
	for _, key := range order {
		offsets := groups[key]
		word := residues[offsets[0] : int(offsets[0])+w]

		var selfScore int32
		for _, r := range word {
			selfScore += m.Score(r, r)
		}

		if threshold == 0 || selfScore < threshold {
			for _, off := range offsets {
				b.addWordHit(key, bias+off)
			}
		}
		if threshold == 0 {
			continue
		}

		upperBound := int32(0)
		for _, r := range word {
			upperBound += m.RowMax(r)
		}

		info := &neighborInfo{
			builder:   b,
			queryWord: word,
			scratch:   make([]byte, w),
			matrix:    m,
			threshold: threshold,
			offsets:   offsets,
			bias:      bias,
		}
		expand(info, upperBound, 0)
	}

	return nil
}

// Finalize copies the thin backbone into the frozen thick backbone,
// overflow array, and presence vector, and returns the read-only
// Table. After Finalize, further IndexQuery calls fail.
func (b *Builder) Finalize() (*Table, error) {
	if b.finalized {
		return nil, ErrFinalized
	}
	b.finalized = true

	t := &Table{
		wordLength:   b.opts.WordLength,
		alphabetSize: b.opts.AlphabetSize,
		backboneSize: b.backboneSize,
		backbone:     make([]backboneCell, b.backboneSize),
		presence:     make([]uint64, presenceWords(b.backboneSize)),
	}

	var overflowNeeded int64
	for _, chain := range b.thinBackbone {
		if len(chain) > hitsPerCell {
			overflowNeeded += int64(len(chain))
		}
	}
	if overflowNeeded > 0 {
		if overflowNeeded > maxBackboneEntries {
			return nil, ErrAllocFailed
		}
		t.overflow = make([]uint32, overflowNeeded)
	}

	var cursor int32
	for key, chain := range b.thinBackbone {
		if len(chain) == 0 {
			continue
		}
		presenceSet(t.presence, uint64(key))
		cell := &t.backbone[key]
		cell.NumUsed = int32(len(chain))
		if len(chain) <= hitsPerCell {
			copy(cell.Entries[:], chain)
		} else {
			cell.Cursor = cursor
			copy(t.overflow[cursor:], chain)
			cursor += int32(len(chain))
		}
	}

	b.thinBackbone = nil // drop the arena as a whole
	return t, nil
}
