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

// Package matrix provides static amino-acid substitution matrices and
// the row-max cache used to prune lookup-table neighborhood expansion.
package matrix

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrUnknownMatrix is returned by Load when the requested matrix name is
// not registered.
var ErrUnknownMatrix = errors.New("matrix: unknown substitution matrix")

// Residue is an index into a Matrix's alphabet. Ordinary code obtains
// Residue values from ASCII letters through ResidueIndex over the
// Alphabet string in tables.go.
type Residue = byte

// Matrix is a dense, immutable Σ×Σ integer substitution table plus a
// row-wise maximum cache. Matrix values are fixed at Load time; callers
// must not rescale a loaded Matrix (scaling is applied once, at load).
type Matrix struct {
	name   string
	dim    int
	vals   []int32 // dim*dim, row-major
	rowMax []int32 // dim
}

// Dim returns the alphabet size Σ this matrix was built for.
func (m *Matrix) Dim() int { return m.dim }

// Name returns the registered name the matrix was loaded under.
func (m *Matrix) Name() string { return m.name }

// Score returns M[a][b]. Both a and b must be < Dim(); callers in the
// hot path (lookup, extend) are expected to only ever present alphabet
// indices derived from the same Dim(), so this does no bounds checking
// beyond what the slice indexing itself provides.
func (m *Matrix) Score(a, b Residue) int32 {
	return m.vals[int(a)*m.dim+int(b)]
}

// RowMax returns max_b M[a][b], precomputed at Load time.
func (m *Matrix) RowMax(a Residue) int32 {
	return m.rowMax[a]
}

// Load returns the named substitution matrix, with every entry
// multiplied by scale (scale == 1 for an unscaled matrix; RPS/PSI-BLAST
// callers pass a scaling factor baked in at load time so downstream code
// never has to rescale). Load fails with ErrUnknownMatrix if name is not
// registered.
func Load(name string, scale int32) (*Matrix, error) {
	base, ok := registry[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownMatrix, "%q", name)
	}
	m := &Matrix{
		name:   name,
		dim:    base.dim,
		vals:   make([]int32, base.dim*base.dim),
		rowMax: make([]int32, base.dim),
	}
	for i, v := range base.vals {
		m.vals[i] = v * scale
	}
	for a := 0; a < m.dim; a++ {
		max := m.vals[a*m.dim]
		for b := 1; b < m.dim; b++ {
			if v := m.vals[a*m.dim+b]; v > max {
				max = v
			}
		}
		m.rowMax[a] = max
	}
	return m, nil
}

// Registered reports the names Load will accept, for help text and
// error messages.
func Registered() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	return names
}

type rawMatrix struct {
	dim  int
	vals []int32
}

func (r rawMatrix) String() string {
	return fmt.Sprintf("%dx%d matrix", r.dim, r.dim)
}
