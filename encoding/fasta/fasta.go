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

// Package fasta parses protein FASTA files directly into residue-index
// sequences, ready to feed a lookup.Table or extend.Extender without a
// separate translation pass. Briefly, FASTA files consist of a number
// of named sequences that may be interrupted by newlines. For example:
//
// >sp|P01308|INS_HUMAN Insulin
// MALWMRLLPLLALLALWGPDPAAAFVNQHLCGSHLVEALYLVCGERGFFYTPKTRREAE
// DLQVGQVELGGGPGAGSLQPLALEGSLQKR
//
// Note: Sequence names are defined to be the stretch of characters
// excluding spaces immediately after '>'. Any text appearing after a
// space is ignored. For example, '>sp|P01308|INS_HUMAN Insulin' becomes
// 'sp|P01308|INS_HUMAN'.
package fasta

import (
	"bufio"
	"io"

	"github.com/pkg/errors"

	"github.com/boratyng/blastcore/matrix"
)

const (
	mib            = 1024 * 1024
	bufferInitSize = 16 * mib
)

// Record is one parsed sequence: a name and its residues, already
// translated from ASCII letters into matrix.Residue alphabet indices.
// A letter the matrix alphabet doesn't recognize (ambiguity codes,
// stray characters) is translated to 'X' rather than rejected, since a
// BLAST search tolerates unknown residues in a subject or query
// rather than failing the whole record over them.
type Record struct {
	Name     string
	Residues []byte
}

// Parse reads every record out of r eagerly, translating residues as
// each line is scanned. Both subject.OpenDatabase and query loading go
// through this path: every record is needed exactly once as residue
// indices, so there's no benefit to keeping the raw ASCII around or to
// the random-access-index machinery a genomic FASTA reader would offer
// for a small subset of a large reference.
func Parse(r io.Reader) ([]Record, error) {
	var records []Record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, bufferInitSize)
	var name string
	var residues []byte
	seen := false
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' { // Start a new sequence.
			if seen {
				records = append(records, Record{Name: name, Residues: residues})
			}
			name = headerName(line[1:])
			residues = nil
			seen = true
			continue
		}
		if !seen {
			return nil, errors.Errorf("malformed FASTA file: sequence data before first header")
		}
		residues = appendResidues(residues, line)
	}
	if scanner.Err() != nil {
		return nil, errors.Wrap(scanner.Err(), "couldn't read FASTA data")
	}
	if seen {
		records = append(records, Record{Name: name, Residues: residues})
	}
	return records, nil
}

// headerName returns the stretch of header bytes up to (not including)
// the first space.
func headerName(header []byte) string {
	for i, b := range header {
		if b == ' ' {
			return string(header[:i])
		}
	}
	return string(header)
}

// appendResidues translates one line of ASCII sequence letters into
// matrix.Residue indices and appends them to residues.
func appendResidues(residues []byte, line []byte) []byte {
	for _, c := range line {
		r := matrix.ResidueIndex(c)
		if r < 0 {
			r = matrix.ResidueIndex('X')
		}
		residues = append(residues, byte(r))
	}
	return residues
}
