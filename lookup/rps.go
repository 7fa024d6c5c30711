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

// RawCell is one precomputed RPS backbone entry, as it would be read
// from an on-disk RPS lookup file (core/blast_aalookup.c's
// RPSLookupTableNew, which mmaps a BlastRPSLookupFileHeader rather than
// building the backbone by indexing a query). NumUsed <= hitsPerCell
// cells store their offsets inline in Entries; larger cells store
// Cursor, an index into the accompanying overflow slice.
type RawCell struct {
	NumUsed int32
	Entries [hitsPerCell]uint32
	Cursor  int32
}

// LoadRPS builds a frozen Table directly from a precomputed RPS
// backbone and overflow array, skipping the indexQuery/neighborhood
// expansion path entirely: RPS-BLAST's backbone is prepared once,
// offline, against a profile database, and every search against that
// database reuses it unchanged.
//
// The original RPS lookup table additionally buckets retrieved offsets
// by subject region (RPS_BUCKET_SIZE) to improve cache locality during
// scanning; that bucketing is an optimization, not a correctness
// requirement, and is intentionally omitted here. Scan works directly
// against the loaded backbone.
func LoadRPS(wordLength, alphabetSize int, cells []RawCell, overflow []uint32) (*Table, error) {
	backboneSize := uint64(len(cells))
	t := &Table{
		wordLength:   wordLength,
		alphabetSize: alphabetSize,
		backboneSize: backboneSize,
		backbone:     make([]backboneCell, backboneSize),
		overflow:     overflow,
		presence:     make([]uint64, presenceWords(backboneSize)),
	}
	for i, c := range cells {
		if c.NumUsed == 0 {
			continue
		}
		t.backbone[i] = backboneCell(c)
		presenceSet(t.presence, uint64(i))
	}
	return t, nil
}
