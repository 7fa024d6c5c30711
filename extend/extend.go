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

// Package extend performs per-seed ungapped extension with X-drop,
// gated by a per-worker diagonal-hit map that implements the
// one-hit/two-hit heuristics.
package extend

import "github.com/boratyng/blastcore/matrix"

// Matrix is the subset of *matrix.Matrix extension needs, declared as
// an interface so a PSSM-backed scorer can share this code path (same
// reasoning as lookup.Matrix).
type Matrix interface {
	Score(a, b matrix.Residue) int32
}

// Options configures an Extender: the initial-word parameters and the
// ungapped half of hit-saving parameters.
type Options struct {
	// WordLength is w, the seed length (needed to compute the seed's
	// right edge on the diagonal).
	WordLength int
	// WindowSize is the two-hit window. WindowSize == 0 selects one-hit
	// mode: every seed is extended immediately. WindowSize > 0 selects
	// two-hit mode: a second seed on the same diagonal within
	// WindowSize positions is required before extending.
	WindowSize int
	// XDrop is the score drop-off that terminates extension in each
	// direction.
	XDrop int32
	// UngappedCutoff discards HSPs scoring below this raw score.
	UngappedCutoff int32
	// DiagMapBits sizes the per-worker diagonal-hit map at 2^DiagMapBits
	// entries; diagonals collide modulo that size. 0 selects a default.
	DiagMapBits uint
}

const defaultDiagMapBits = 16

// Hit is a seed emitted by a lookup-table scan: a (query offset,
// subject offset) pair.
type Hit struct {
	QueryOffset   int
	SubjectOffset int
}

// Extension is the ungapped alignment WordExtender produces from a
// surviving seed.
type Extension struct {
	QueryFrom, QueryTo     int // inclusive
	SubjectFrom, SubjectTo int
	RawScore               int32
	Diag                   int
}

// diagEntry is one per-worker diagonal-hit map slot: the subject offset
// of the last seed seen on this diagonal
// (bucket), used both for the "already extended past here" skip and
// for the two-hit window check.
type diagEntry struct {
	diag           int
	lastOffset     int
	extendedUpTo   int
	hasExtended    bool
}

// Extender holds one worker's private ungapped-extension state: the
// diagonal-hit map, zero-allocation after construction, scoped to the
// query/subject/matrix it extends against for one subject at a time.
type Extender struct {
	opts     Options
	diagMap  []diagEntry
	diagMask int
}

// New allocates an Extender's scratch state once, at worker
// construction; the hot scanning loop allocates nothing.
func New(opts Options) *Extender {
	bits := opts.DiagMapBits
	if bits == 0 {
		bits = defaultDiagMapBits
	}
	size := 1 << bits
	e := &Extender{opts: opts, diagMap: make([]diagEntry, size), diagMask: size - 1}
	for i := range e.diagMap {
		e.diagMap[i].diag = emptyDiag
	}
	return e
}

// emptyDiag is a sentinel no real diagonal (subject - query offset)
// ever equals, since it is far outside any representable int32 range
// difference in practice; used to mark an empty bucket distinctly from
// diagonal 0.
const emptyDiag = 1<<63 - 1

// ResetForSubject clears the diagonal-hit map between subjects: the
// two-hit window is scoped to a single subject, so the map is reset
// (not reallocated) before each new subject.
func (e *Extender) ResetForSubject() {
	for i := range e.diagMap {
		e.diagMap[i] = diagEntry{diag: emptyDiag}
	}
}

func (e *Extender) bucket(diag int) *diagEntry {
	idx := diag & e.diagMask
	if idx < 0 {
		idx += len(e.diagMap)
	}
	return &e.diagMap[idx]
}

// Gate decides whether hit should proceed to extension: it skips seeds
// on a diagonal already extended past this point, and in two-hit mode
// requires a second nearby seed on the same diagonal. It also updates
// the diagonal-hit map as a side effect.
func (e *Extender) Gate(hit Hit) bool {
	diag := hit.SubjectOffset - hit.QueryOffset
	entry := e.bucket(diag)
	rightEdge := hit.SubjectOffset + e.opts.WordLength - 1

	if entry.diag == diag && entry.hasExtended && rightEdge <= entry.extendedUpTo {
		// Step 1: this diagonal has already been extended past this
		// seed's right edge in this subject; skip.
		return false
	}

	if e.opts.WindowSize <= 0 {
		// One-hit mode: every seed not already covered by a prior
		// extension on this diagonal proceeds.
		entry.diag = diag
		entry.lastOffset = hit.SubjectOffset
		return true
	}

	// Two-hit mode: require a second seed on the same diagonal within
	// WindowSize positions before extending.
	if entry.diag == diag && hit.SubjectOffset-entry.lastOffset <= e.opts.WindowSize {
		entry.lastOffset = hit.SubjectOffset
		return true
	}
	entry.diag = diag
	entry.lastOffset = hit.SubjectOffset
	return false
}

// markExtended records that diag has now been extended through
// subjectPos, so Gate can skip redundant re-extension of the same
// region on a later seed.
func (e *Extender) markExtended(diag, subjectPos int) {
	entry := e.bucket(diag)
	entry.diag = diag
	entry.hasExtended = true
	entry.extendedUpTo = subjectPos
	entry.lastOffset = subjectPos
}

// Extend performs ungapped X-drop extension from hit and reports the
// resulting Extension and whether it passed opts.UngappedCutoff.
// query and subject are the full sequences hit's offsets index into; m
// scores residue pairs. Extend allocates no memory.
func (e *Extender) Extend(hit Hit, query, subject []byte, m Matrix) (Extension, bool) {
	w := e.opts.WordLength
	diag := hit.SubjectOffset - hit.QueryOffset

	seedScore := int32(0)
	for i := 0; i < w; i++ {
		seedScore += m.Score(query[hit.QueryOffset+i], subject[hit.SubjectOffset+i])
	}

	leftScore, leftBest := e.walk(query, subject, hit.QueryOffset-1, hit.SubjectOffset-1, -1, m)
	rightScore, rightBest := e.walk(query, subject,
		hit.QueryOffset+w, hit.SubjectOffset+w, +1, m)

	total := leftScore + seedScore + rightScore
	qFrom, qTo := hit.QueryOffset-leftBest, hit.QueryOffset+w-1+rightBest
	sFrom, sTo := hit.SubjectOffset-leftBest, hit.SubjectOffset+w-1+rightBest

	e.markExtended(diag, sTo)

	ext := Extension{
		QueryFrom: qFrom, QueryTo: qTo,
		SubjectFrom: sFrom, SubjectTo: sTo,
		RawScore: total,
		Diag:     diag,
	}
	return ext, total >= e.opts.UngappedCutoff
}

// walk extends one direction from (qPos, sPos) by step (+1 or -1),
// accumulating score and tracking the offset (distance from the seed
// edge) of the best running score seen, stopping when the score falls
// XDrop below the best seen so far, or either sequence end is reached
// (a seed touching a sequence end simply clamps extension there).
func (e *Extender) walk(query, subject []byte, qPos, sPos, step int, m Matrix) (score int32, bestOffset int) {
	var running, best int32
	offset := 0
	for qPos >= 0 && qPos < len(query) && sPos >= 0 && sPos < len(subject) {
		running += m.Score(query[qPos], subject[sPos])
		offset++
		if running > best {
			best = running
			bestOffset = offset
		} else if best-running > e.opts.XDrop {
			break
		}
		qPos += step
		sPos += step
	}
	return best, bestOffset
}
