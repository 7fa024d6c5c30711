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

// Package engine spawns numWorkers goroutines that each pull subjects
// from a subject.Source, scan them through a lookup.Table, run
// surviving seeds through an extend.Extender, and insert passing HSPs
// into a collect.Collector, following the worker-pool shape
// markduplicates.generateBAM/generatePAM use to fan work out to a
// fixed goroutine count and join with errors.Once for first-error
// aggregation.
package engine

import (
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"

	"github.com/boratyng/blastcore/collect"
	"github.com/boratyng/blastcore/diag"
	"github.com/boratyng/blastcore/extend"
	"github.com/boratyng/blastcore/lookup"
	"github.com/boratyng/blastcore/subject"
)

// ErrCancelled is returned by Run (via FindError) when Cancel was
// called before all workers finished.
var ErrCancelled = errors.New("engine: run cancelled")

// Config configures a Run. NumWorkers >= 1; 1 means cooperative
// single-threaded.
type Config struct {
	NumWorkers     int
	Source         subject.Source
	Table          *lookup.Table
	Matrix         extend.Matrix
	QueryInfo      QueryInfo
	Collector      *collect.Collector
	ExtendOptions  extend.Options
	TotalHspLimit  int
}

// QueryInfo is the subset of query.Info the engine needs to map a
// lookup-table hit's global (biased) offset back to a query index and
// local offset.
type QueryInfo interface {
	NumQueries() int
	LocalOffsetOf(globalOffset uint32) (queryIdx int, localOffset uint32)
	Sequence(i int) []byte
}

// Handle is the running-or-finished engine, returned by Run. FindError
// inspects the first error after workers join.
type Handle struct {
	err    error
	cancel *diag.AtomicErrorFlag
	diags  diag.Counters
	blob   collect.BlobOfHsps
	frozen bool
}

// FindError returns the first recorded error, or nil on success.
func (h *Handle) FindError() error { return h.err }

// Diagnostics returns the merged per-worker counters.
func (h *Handle) Diagnostics() diag.Counters { return h.diags }

// Result returns the frozen BlobOfHsps. Only meaningful when
// FindError() == nil.
func (h *Handle) Result() collect.BlobOfHsps { return h.blob }

// Cancellation is a cooperative cancellation token shared between the
// caller and a running engine: an atomic flag readable by all workers.
// Run also sets it when a worker fails, so the remaining workers stop
// early.
type Cancellation struct {
	flag diag.AtomicErrorFlag
}

// Cancel requests that Run stop as soon as workers notice.
func (c *Cancellation) Cancel() { c.flag.Set() }

// Run executes the preliminary search: spawns cfg.NumWorkers workers,
// each draining subjects from cfg.Source until exhaustion, cancellation
// (cancel), or a terminal error. On success it trims the collector,
// merges diagnostics, and freezes the collector. On any worker
// failure, or on cancellation, the collector is
// never frozen and the run's error is surfaced via Handle.FindError.
func Run(cfg Config, cancel *Cancellation) *Handle {
	if cancel == nil {
		cancel = &Cancellation{}
	}
	h := &Handle{}

	if cfg.QueryInfo.NumQueries() == 0 {
		// Boundary behavior: an empty query list yields an empty result
		// with no workers spawned.
		h.blob = cfg.Collector.Freeze()
		h.frozen = true
		return h
	}

	numWorkers := cfg.NumWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}

	firstErr := errors.Once{}
	var mu sync.Mutex
	var merged diag.Counters
	recs := make([]diag.Recorder, numWorkers)
	var wg sync.WaitGroup

	log.Debug.Printf("engine: starting %d workers", numWorkers)
	for wi := 0; wi < numWorkers; wi++ {
		wg.Add(1)
		go func(workerIdx int) {
			defer wg.Done()
			ext := extend.New(cfg.ExtendOptions)
			err := runWorker(cfg, &cancel.flag, ext, &recs[workerIdx])
			if err != nil {
				firstErr.Set(err)
				cancel.flag.Set()
			}
		}(wi)
	}
	wg.Wait()

	mu.Lock()
	for i := range recs {
		merged.Add(recs[i].Snapshot())
	}
	mu.Unlock()
	h.diags = merged
	if err := firstErr.Err(); err != nil {
		log.Debug.Printf("engine: run failed: %v", err)
		h.err = err
		return h
	}
	if cancel.flag.IsSet() {
		h.err = ErrCancelled
		return h
	}

	removed := cfg.Collector.Trim(cfg.TotalHspLimit)
	h.diags.HspsTrimmed += uint64(removed)
	h.blob = cfg.Collector.Freeze()
	h.frozen = true
	return h
}

// runWorker is one worker's loop: pull a subject token, scan it
// through the table, feed every surviving hit through
// ext, insert passing HSPs, release the token, repeat until the source
// is exhausted or cancellation/error stops the loop.
func runWorker(cfg Config, cancelFlag *diag.AtomicErrorFlag, ext *extend.Extender, rec *diag.Recorder) error {
	for {
		if cancelFlag.IsSet() {
			return nil
		}
		tok, ok, err := cfg.Source.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		ext.ResetForSubject()
		if err := scanSubject(cfg, ext, rec, tok); err != nil {
			tok.Release()
			return err
		}
		tok.Release()
		rec.AddSubjectsScanned(1)
	}
}

func scanSubject(cfg Config, ext *extend.Extender, rec *diag.Recorder, tok *subject.Token) error {
	w := cfg.Table.WordLength()
	if len(tok.Residues) < w {
		// Boundary behavior: a subject shorter than w yields no seeds,
		// no HSPs, but still counts as scanned (accounted by the
		// caller).
		return nil
	}

	var insertErr error
	endOffset := len(tok.Residues) - w
	cfg.Table.Scan(tok.Residues, 0, endOffset, func(queryOffset uint32, subjectPos int) {
		if insertErr != nil {
			return
		}
		rec.AddSeedsEmitted(1)
		queryIdx, localOffset := cfg.QueryInfo.LocalOffsetOf(queryOffset)
		hit := extend.Hit{QueryOffset: int(localOffset), SubjectOffset: subjectPos}

		if !ext.Gate(hit) {
			rec.AddSeedsSkippedDiagonal(1)
			return
		}
		rec.AddExtensionsAttempted(1)
		qSeq := cfg.QueryInfo.Sequence(queryIdx)
		extension, passed := ext.Extend(hit, qSeq, tok.Residues, cfg.Matrix)
		if !passed {
			return
		}
		rec.AddExtensionsPassedCutoff(1)
		hsp := collect.Hsp{
			QueryRange:   collect.Range{From: extension.QueryFrom, To: extension.QueryTo},
			SubjectRange: collect.Range{From: extension.SubjectFrom, To: extension.SubjectTo},
			Strand:       collect.Forward,
			RawScore:     extension.RawScore,
			Diag:         extension.Diag,
		}
		if err := cfg.Collector.Insert(queryIdx, tok.ID, hsp); err != nil {
			insertErr = err
			return
		}
		rec.AddHspsInserted(1)
	})
	return insertErr
}
