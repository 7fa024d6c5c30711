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

// Package subject provides a thread-safe, single-pass stream of
// subject sequences that search workers pull from concurrently.
package subject

import (
	"sync"

	"github.com/grailbio/base/errors"
)

// ErrIO is the terminal error Next returns when the underlying source
// fails; once returned, the Source must not be used further.
var ErrIO = errors.New("subject: io error")

// Token is a borrowed view of one subject sequence, valid until
// Release is called.
type Token struct {
	ID       string
	Residues []byte
}

// Release returns the token to its Source. It is a no-op: InMemoryList,
// Concatenated and Database tokens all reference memory their Source
// already holds (Database loads its records eagerly), so there is
// nothing to clean up.
func (t *Token) Release() {}

// Source is a pull-based subject stream: Next atomically returns the
// next subject or (nil, false, nil) when the source is exhausted.
// Multiple goroutines may call Next concurrently; each subject is
// handed to exactly one caller. A non-nil error is terminal: the caller
// must stop pulling from this Source.
type Source interface {
	Next() (*Token, bool, error)
}

// InMemoryList is a Source over subjects already resident in memory,
// useful for tests and for small subject sets (e.g. -subject as opposed
// to -db in BLAST's own CLI).
type InMemoryList struct {
	mu      sync.Mutex
	tokens  []Token
	cursor  int
}

// NewInMemoryList builds a Source over subjects.
func NewInMemoryList(subjects []Token) *InMemoryList {
	return &InMemoryList{tokens: subjects}
}

// Next implements Source.
func (s *InMemoryList) Next() (*Token, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor >= len(s.tokens) {
		return nil, false, nil
	}
	t := &s.tokens[s.cursor]
	s.cursor++
	return t, true, nil
}

// Concatenated is a Source that hands out windows of one shared,
// already-concatenated residue buffer, each demarcated by a boundary
// table. This mirrors the RPS-BLAST database layout, where all subject
// profiles are packed end to end and addressed by a start-offset table
// rather than stored as independent byte slices.
type Concatenated struct {
	mu        sync.Mutex
	residues  []byte
	ids       []string
	starts    []int // len(ids)+1, starts[i]..starts[i+1] bounds subject i
	cursor    int
}

// NewConcatenated builds a Concatenated source. starts must have
// len(ids)+1 entries, ascending, with starts[0] == 0.
func NewConcatenated(residues []byte, ids []string, starts []int) *Concatenated {
	return &Concatenated{residues: residues, ids: ids, starts: starts}
}

// Next implements Source.
func (s *Concatenated) Next() (*Token, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor >= len(s.ids) {
		return nil, false, nil
	}
	i := s.cursor
	s.cursor++
	return &Token{
		ID:       s.ids[i],
		Residues: s.residues[s.starts[i]:s.starts[i+1]],
	}, true, nil
}
