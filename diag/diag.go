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

// Package diag provides per-worker counters that the search engine
// merges, under a single lock, once all workers have joined.
package diag

import "sync/atomic"

// Counters holds per-run search progress counters. All fields are
// 64-bit unsigned and merged by pointwise sum; read only after workers
// join.
type Counters struct {
	SeedsEmitted           uint64
	SeedsSkippedDiagonal   uint64
	ExtensionsAttempted    uint64
	ExtensionsPassedCutoff uint64
	HspsInserted           uint64
	HspsTrimmed            uint64
	SubjectsScanned        uint64
	ElapsedNanos           uint64
}

// Add merges other into c pointwise. Not safe to call concurrently on
// the same c; the engine calls this once per worker under its own
// lock, after every worker has exited.
func (c *Counters) Add(other Counters) {
	c.SeedsEmitted += other.SeedsEmitted
	c.SeedsSkippedDiagonal += other.SeedsSkippedDiagonal
	c.ExtensionsAttempted += other.ExtensionsAttempted
	c.ExtensionsPassedCutoff += other.ExtensionsPassedCutoff
	c.HspsInserted += other.HspsInserted
	c.HspsTrimmed += other.HspsTrimmed
	c.SubjectsScanned += other.SubjectsScanned
	c.ElapsedNanos += other.ElapsedNanos
}

// Recorder is the per-worker accumulator the engine's worker loop
// updates directly (no locking: each worker owns exactly one
// Recorder for its lifetime, a private counters accumulator merged only
// once the worker exits).
type Recorder struct {
	c Counters
}

// Snapshot returns a copy of the counters accumulated so far.
func (r *Recorder) Snapshot() Counters { return r.c }

func (r *Recorder) AddSeedsEmitted(n uint64)           { r.c.SeedsEmitted += n }
func (r *Recorder) AddSeedsSkippedDiagonal(n uint64)   { r.c.SeedsSkippedDiagonal += n }
func (r *Recorder) AddExtensionsAttempted(n uint64)    { r.c.ExtensionsAttempted += n }
func (r *Recorder) AddExtensionsPassedCutoff(n uint64) { r.c.ExtensionsPassedCutoff += n }
func (r *Recorder) AddHspsInserted(n uint64)           { r.c.HspsInserted += n }
func (r *Recorder) AddHspsTrimmed(n uint64)            { r.c.HspsTrimmed += n }
func (r *Recorder) AddSubjectsScanned(n uint64)        { r.c.SubjectsScanned += n }
func (r *Recorder) AddElapsedNanos(n uint64)           { r.c.ElapsedNanos += n }

// AtomicErrorFlag is the cooperative cancellation / first-failure
// signal shared by all workers: an atomic flag that the caller or any
// failing worker may set and all workers poll. The zero value is "not
// set".
type AtomicErrorFlag struct {
	v int32
}

// Set marks the flag. Safe to call from many goroutines; only the
// first call has any effect on readers' timing (they just observe true
// sooner or later).
func (f *AtomicErrorFlag) Set() { atomic.StoreInt32(&f.v, 1) }

// IsSet reports whether Set has been called.
func (f *AtomicErrorFlag) IsSet() bool { return atomic.LoadInt32(&f.v) != 0 }
