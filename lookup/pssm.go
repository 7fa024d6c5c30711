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

import "github.com/boratyng/blastcore/query"

// PSSM is a position-specific scoring matrix: one score row per query
// column, each row holding one score per alphabet letter. IndexPSSM
// slides a wordsize-column window across it instead of reading a fixed
// query sequence, following core/blast_aalookup.c's
// s_AddPSSMNeighboringWords.
type PSSM struct {
	rows         [][]int32
	alphabetSize int
}

// NewPSSM wraps rows (one []int32 of length alphabetSize per query
// column) as a PSSM.
func NewPSSM(rows [][]int32, alphabetSize int) *PSSM {
	return &PSSM{rows: rows, alphabetSize: alphabetSize}
}

// NumColumns returns the number of PSSM rows (query columns).
func (p *PSSM) NumColumns() int { return len(p.rows) }

func (p *PSSM) rowMax(col int) int32 {
	row := p.rows[col]
	m := row[0]
	for _, v := range row[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// IndexPSSM adds every word-length window of PSSM columns inside
// locations to the table, using neighborhood expansion exactly as
// IndexQuery does but scoring against PSSM columns rather than a fixed
// query word (core/blast_aalookup.c's s_AddPSSMWordHits /
// s_AddPSSMWordHitsCore). There is no concept of an "exact match"
// short-circuit for PSSMs: every window is run through expansion, and
// threshold == 0 is not special-cased here; the same recursion applies,
// so with threshold 0 every word whose window score is >= 0 is inserted
// (the C source only special-cases threshold==0 in the non-PSSM path
// because it has the notion of inserting the *query's own word*
// unconditionally, something a PSSM has no fixed equivalent of).
func (b *Builder) IndexPSSM(pssm *PSSM, locations []query.Range, bias uint32) error {
	if b.finalized {
		return ErrFinalized
	}
	w := b.opts.WordLength

	// rowMax is maintained as a sliding array of length w, refreshed one
	// slot at a time as the window advances.
	rowMax := make([]int32, w)

	for _, loc := range locations {
		from, to := int(loc.From), int(loc.To)-w+1
		if to < from {
			continue
		}
		for i := 0; i < w-1; i++ {
			rowMax[i] = pssm.rowMax(from + i)
		}
		for offset := from; offset < to; offset++ {
			rowMax[w-1] = pssm.rowMax(offset + w - 1)

			info := &pssmNeighborInfo{
				builder:      b,
				pssm:         pssm,
				scratch:      make([]byte, w),
				rowMax:       append([]int32(nil), rowMax...),
				threshold:    b.opts.Threshold,
				bias:         bias + uint32(offset),
				windowStart:  offset,
				alphabetSize: b.opts.AlphabetSize,
			}
			upperBound := int32(0)
			for _, m := range rowMax {
				upperBound += m
			}
			pssmExpand(info, upperBound, 0)

			copy(rowMax, rowMax[1:])
		}
	}
	return nil
}

type pssmNeighborInfo struct {
	builder      *Builder
	pssm         *PSSM
	scratch      []byte
	rowMax       []int32
	threshold    int32
	bias         uint32
	windowStart  int
	alphabetSize int
}

func pssmExpand(info *pssmNeighborInfo, upperBound int32, depth int) {
	row := info.pssm.rows[info.windowStart+depth]
	remaining := upperBound - info.rowMax[depth]
	last := depth == len(info.scratch)-1

	for letter := 0; letter < len(row); letter++ {
		candidate := remaining + row[letter]
		if candidate < info.threshold {
			continue
		}
		info.scratch[depth] = byte(letter)
		if last {
			key := packedKey(info.scratch, info.alphabetSize)
			info.builder.addWordHit(key, info.bias)
			continue
		}
		pssmExpand(info, candidate, depth+1)
	}
}
