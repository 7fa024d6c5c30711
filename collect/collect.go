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

// Package collect provides a concurrent, per-query-mutex-partitioned
// buffer of HSPs, with per-subject and per-query caps, a trim pass
// grounded on the original's TrimBlastHSPResults formula, and a
// freeze-once state machine.
package collect

import (
	"sort"
	"sync"

	"github.com/grailbio/base/errors"
)

// ErrFrozen is returned by Insert after Freeze.
var ErrFrozen = errors.New("collect: collector is frozen")

// Strand records which strand an HSP was found on. Protein search (this
// core's scope) only ever uses Forward; Reverse exists so the type is
// ready for nucleotide variants that search reverse-complemented
// subject views.
type Strand int

const (
	Forward Strand = iota
	Reverse
)

// Range is a closed [From, To] interval; endpoints are closed on both
// ends.
type Range struct {
	From, To int
}

// Hsp is one High-scoring Segment Pair.
type Hsp struct {
	QueryRange   Range
	SubjectRange Range
	Strand       Strand
	RawScore     int32
	Diag         int
}

// less implements the HspList comparator: strictly decreasing
// RawScore, ties broken by smaller QueryRange.From, then smaller
// SubjectRange.From.
func less(a, b Hsp) bool {
	if a.RawScore != b.RawScore {
		return a.RawScore > b.RawScore
	}
	if a.QueryRange.From != b.QueryRange.From {
		return a.QueryRange.From < b.QueryRange.From
	}
	return a.SubjectRange.From < b.SubjectRange.From
}

// HspList is the ordered, capped set of HSPs for one (query, subject)
// pair.
type HspList struct {
	SubjectID string
	Hsps      []Hsp
}

func (l *HspList) bestScore() int32 {
	if len(l.Hsps) == 0 {
		return 0
	}
	return l.Hsps[0].RawScore
}

func (l *HspList) insert(h Hsp, hspNumMax int) {
	// First index i where l.Hsps[i] does not strictly precede h; insert
	// h there to keep the list ordered by less().
	i := sort.Search(len(l.Hsps), func(i int) bool { return !less(l.Hsps[i], h) })
	l.Hsps = append(l.Hsps, Hsp{})
	copy(l.Hsps[i+1:], l.Hsps[i:])
	l.Hsps[i] = h
	if hspNumMax > 0 && len(l.Hsps) > hspNumMax {
		l.Hsps = l.Hsps[:hspNumMax]
	}
}

// PerQueryHitlist is the ordered map from subject-id to HspList for one
// query, capped at hitlistSize.
type PerQueryHitlist struct {
	mu        sync.Mutex
	byID      map[string]*HspList
	hitlist   []*HspList // order irrelevant internally; sorted on demand
	hspNumMax int
	hitlistSz int
}

func newPerQueryHitlist(hspNumMax, hitlistSize int) *PerQueryHitlist {
	return &PerQueryHitlist{
		byID:      make(map[string]*HspList),
		hspNumMax: hspNumMax,
		hitlistSz: hitlistSize,
	}
}

func (h *PerQueryHitlist) insert(subjectID string, hsp Hsp) {
	h.mu.Lock()
	defer h.mu.Unlock()

	list, ok := h.byID[subjectID]
	if !ok {
		list = &HspList{SubjectID: subjectID}
		h.byID[subjectID] = list
		h.hitlist = append(h.hitlist, list)
	}
	list.insert(hsp, h.hspNumMax)

	if h.hitlistSz > 0 && len(h.hitlist) > h.hitlistSz {
		h.evictWorst()
	}
}

// evictWorst drops the subject with the lowest best-HSP score, ties
// broken by higher subject-id. Caller holds mu.
func (h *PerQueryHitlist) evictWorst() {
	worst := 0
	for i := 1; i < len(h.hitlist); i++ {
		a, b := h.hitlist[i], h.hitlist[worst]
		if a.bestScore() < b.bestScore() ||
			(a.bestScore() == b.bestScore() && a.SubjectID > b.SubjectID) {
			worst = i
		}
	}
	delete(h.byID, h.hitlist[worst].SubjectID)
	h.hitlist = append(h.hitlist[:worst], h.hitlist[worst+1:]...)
}

// snapshot returns the hitlist's HspLists ordered by best-HSP score
// descending, ties broken by smaller subject-id.
func (h *PerQueryHitlist) snapshot() []*HspList {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := append([]*HspList(nil), h.hitlist...)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.bestScore() != b.bestScore() {
			return a.bestScore() > b.bestScore()
		}
		return a.SubjectID < b.SubjectID
	})
	return out
}

// trim applies the proportional trim formula to this query's hitlist
// in place, with totalHspLimit as this query's HSP budget. Returns the
// number of HSPs removed.
func (h *PerQueryHitlist) trim(totalHspLimit int) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.hitlist)
	if n == 0 || totalHspLimit <= 0 {
		return 0
	}
	ordered := append([]*HspList(nil), h.hitlist...)
	sort.Slice(ordered, func(i, j int) bool {
		if len(ordered[i].Hsps) != len(ordered[j].Hsps) {
			return len(ordered[i].Hsps) < len(ordered[j].Hsps)
		}
		return ordered[i].SubjectID < ordered[j].SubjectID
	})

	removed := 0
	hspsSoFar := 0
	for j, list := range ordered {
		allowed := ((j+1)*totalHspLimit)/n - hspsSoFar
		if allowed < 1 && hspsSoFar < totalHspLimit {
			allowed = 1
		}
		if allowed < 0 {
			allowed = 0
		}
		if allowed < len(list.Hsps) {
			removed += len(list.Hsps) - allowed
			list.Hsps = list.Hsps[:allowed]
		}
		hspsSoFar += len(list.Hsps)
	}
	return removed
}

// BlobOfHsps is the frozen, top-level preliminary-search result: one
// PerQueryHitlist per query.
type BlobOfHsps struct {
	Hitlists []QueryResult
}

// QueryResult names a query and its ordered HspLists.
type QueryResult struct {
	QueryIdx int
	Lists    []*HspList
}

// Collector is a state machine: Open -> (trimmed) Open -> Frozen.
type Collector struct {
	perQuery    []*PerQueryHitlist
	hspNumMax   int
	hitlistSize int

	mu     sync.Mutex
	frozen bool
}

// New builds a Collector with one PerQueryHitlist per query index in
// [0, numQueries); the map from queryIdx to lock+list is built once and
// never resizes.
func New(numQueries, hspNumMax, hitlistSize int) *Collector {
	c := &Collector{
		perQuery:    make([]*PerQueryHitlist, numQueries),
		hspNumMax:   hspNumMax,
		hitlistSize: hitlistSize,
	}
	for i := range c.perQuery {
		c.perQuery[i] = newPerQueryHitlist(hspNumMax, hitlistSize)
	}
	return c
}

// Insert adds hsp for (queryIdx, subjectID). Thread-safe; contends only
// on queryIdx's own mutex.
func (c *Collector) Insert(queryIdx int, subjectID string, hsp Hsp) error {
	c.mu.Lock()
	frozen := c.frozen
	c.mu.Unlock()
	if frozen {
		return ErrFrozen
	}
	c.perQuery[queryIdx].insert(subjectID, hsp)
	return nil
}

// Trim applies the proportional trim formula per query independently.
// Returns the total number of HSPs removed across all queries, which
// the engine reports as Diagnostics.HspsTrimmed.
func (c *Collector) Trim(totalHspLimit int) int {
	removed := 0
	for _, pq := range c.perQuery {
		removed += pq.trim(totalHspLimit)
	}
	return removed
}

// Freeze transitions the collector to read-only and returns the final
// result. Idempotent: calling it twice returns the same snapshot.
func (c *Collector) Freeze() BlobOfHsps {
	c.mu.Lock()
	c.frozen = true
	c.mu.Unlock()

	blob := BlobOfHsps{Hitlists: make([]QueryResult, len(c.perQuery))}
	for i, pq := range c.perQuery {
		blob.Hitlists[i] = QueryResult{QueryIdx: i, Lists: pq.snapshot()}
	}
	return blob
}
