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

// neighborInfo is the neighborhood-expansion traversal frame:
// everything the recursion needs, allocated once per exact-match group
// and then threaded through by pointer so the recursion itself
// allocates nothing. Grounded on NeighborInfo in
// core/blast_aalookup.c.
type neighborInfo struct {
	builder   *Builder
	queryWord []byte // the word whose neighbors are being computed
	scratch   []byte // len == wordsize; built up one residue per recursion level
	matrix    Matrix
	threshold int32
	offsets   []uint32 // query offsets sharing queryWord, unbiased
	bias      uint32
}

// expand enumerates every subject word within score threshold of
// info.queryWord and inserts info.offsets (biased) under each one's
// packed key. upperBound is the best score any completion of the word
// built so far could achieve; depth is the position being decided.
//
// Soundness/completeness: a subject word S is visited iff
// sum_i M[Q_i][S_i] >= threshold, by induction on depth using the
// standard branch-and-bound argument: upperBound at depth d is exactly
// the best possible total score given the letters fixed at positions
// < d and row-max upper bounds for positions >= d, so pruning a branch
// whose upperBound < threshold can never discard a word that would
// have passed.
func expand(info *neighborInfo, upperBound int32, depth int) {
	queryResidue := info.queryWord[depth]
	// Remove this position's contribution to the upper bound; the loop
	// below replaces it with the exact score of each candidate letter.
	remaining := upperBound - info.matrix.RowMax(queryResidue)

	last := depth == len(info.queryWord)-1
	alphabet := info.matrix.Dim()

	for letter := 0; letter < alphabet; letter++ {
		candidate := remaining + info.matrix.Score(queryResidue, byte(letter))
		if candidate < info.threshold {
			continue
		}
		info.scratch[depth] = byte(letter)
		if last {
			key := packedKey(info.scratch, info.builder.opts.AlphabetSize)
			for _, off := range info.offsets {
				info.builder.addWordHit(key, info.bias+off)
			}
			continue
		}
		expand(info, candidate, depth+1)
	}
}
