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

// Package efflen computes, per query, the effective search space and
// raw-score cutoffs derived from the real subject database
// length/count and the matrix's Karlin-Altschul statistics
// (core/blast_options.h's BlastEffectiveLengthsOptions /
// BlastEffectiveLengthsParameters, and the e-value-to-raw-score
// conversion core/blast_options.h documents against
// BlastHitSavingParameters.cutoff_score).
package efflen

import (
	"math"

	"github.com/grailbio/base/errors"
)

// ErrDegenerate is returned when a query's effective length would be
// non-positive, or scoring parameters are otherwise inconsistent.
var ErrDegenerate = errors.New("efflen: degenerate effective length")

// KarlinAltschul holds a matrix's precomputed ungapped statistical
// parameters. For BLOSUM62 (ungapped): lambda=0.3176, K=0.134,
// H=0.4012 are the standard published values; other matrices need
// their own published triple, supplied by the caller rather than
// computed here -- deriving them from first principles (PSI-BLAST-style
// matrix rescaling) is out of scope; they are supplied, not derived.
type KarlinAltschul struct {
	Lambda float64
	K      float64
	H      float64
}

// Options configures Compute.
type Options struct {
	// DbLength is the real (unmodified) total database length in
	// residues, L.
	DbLength int64
	// DbNumSeqs is the real database sequence count, N.
	DbNumSeqs int64
	// Stats are the matrix's Karlin-Altschul parameters.
	Stats KarlinAltschul
	// EValueThreshold is the e-value cutoff to convert to raw ungapped
	// and gapped score cutoffs.
	EValueThreshold float64
}

// Cutoffs is the per-query output of Compute: the adjusted effective
// search space and the raw-score cutoffs it implies.
type Cutoffs struct {
	EffectiveSearchSpace float64
	UngappedCutoff       int32
	GappedCutoff         int32
}

// Compute returns one Cutoffs per entry of queryLengths, following
// BLAST's effective-length model: each query's effective length is its
// real length minus the expected HSP length `ln(K*L*n) / H`, floored at
// 1; the database's effective length is adjusted symmetrically. Cutoffs
// are solved from `E = K * m_eff * n_eff * exp(-lambda * S)` for S, the
// smallest raw score with expected e-value <= opts.EValueThreshold.
func Compute(queryLengths []int, opts Options) ([]Cutoffs, error) {
	if opts.DbLength <= 0 || opts.DbNumSeqs <= 0 {
		return nil, errors.E(ErrDegenerate, "efflen: non-positive database length or sequence count")
	}
	if opts.Stats.Lambda <= 0 || opts.Stats.K <= 0 || opts.Stats.H <= 0 {
		return nil, errors.E(ErrDegenerate, "efflen: invalid Karlin-Altschul parameters")
	}

	out := make([]Cutoffs, len(queryLengths))
	dbLen := float64(opts.DbLength)
	for i, qLen := range queryLengths {
		expectedHspLen := math.Log(opts.Stats.K*dbLen*float64(qLen)) / opts.Stats.H
		effQueryLen := float64(qLen) - expectedHspLen
		effDbLen := dbLen - float64(opts.DbNumSeqs)*expectedHspLen
		if effQueryLen < 1 {
			effQueryLen = 1
		}
		if effDbLen < float64(opts.DbNumSeqs) {
			return nil, errors.E(ErrDegenerate, "efflen: effective database length non-positive")
		}
		searchSpace := effQueryLen * effDbLen
		cutoff := rawScoreCutoff(opts.Stats, searchSpace, opts.EValueThreshold)
		out[i] = Cutoffs{
			EffectiveSearchSpace: searchSpace,
			UngappedCutoff:       cutoff,
			// Gapped extension is out of this core's scope; the gapped
			// cutoff is reported equal to the ungapped one so callers
			// that plumb it through to a traceback stage still get a
			// sane, conservative value.
			GappedCutoff: cutoff,
		}
	}
	return out, nil
}

// rawScoreCutoff solves E = K * searchSpace * exp(-lambda * S) for the
// smallest integer S with expected e-value <= evalueThreshold.
func rawScoreCutoff(stats KarlinAltschul, searchSpace, evalueThreshold float64) int32 {
	if evalueThreshold <= 0 {
		return math.MaxInt32
	}
	s := math.Log(stats.K*searchSpace/evalueThreshold) / stats.Lambda
	return int32(math.Ceil(s))
}
