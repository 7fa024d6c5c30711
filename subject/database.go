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

package subject

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/klauspost/compress/gzip"

	"github.com/boratyng/blastcore/encoding/fasta"
)

// Database is a Source backed by a (optionally gzip-compressed, local
// or remote via grailbio/base/file) FASTA subject database, loaded
// eagerly and then handed out one sequence at a time, mirroring
// bamprovider's "NewIterator handed to independent worker goroutines"
// thread-safety contract used throughout markduplicates.
type Database struct {
	mu      sync.Mutex
	records []fasta.Record
	cursor  int
}

// OpenDatabase opens the FASTA file at path (via grailbio/base/file, so
// s3:// and local paths are both accepted) and loads it eagerly. If
// path ends in ".gz" the stream is gunzipped first.
func OpenDatabase(ctx context.Context, path string) (*Database, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "subject: open database", ErrIO)
	}
	defer f.Close(ctx) // nolint: errcheck

	var r io.Reader = f.Reader(ctx)
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, errors.E(err, "subject: gunzip database", ErrIO)
		}
		defer gz.Close() // nolint: errcheck
		r = gz
	}

	records, err := fasta.Parse(r)
	if err != nil {
		return nil, errors.E(err, "subject: parse database", ErrIO)
	}
	return &Database{records: records}, nil
}

// Next implements Source. fasta.Parse has already translated residues
// from ASCII into matrix.Alphabet indices, so they compose directly
// with lookup.Table.Scan and extend.Extender with no further work here.
func (d *Database) Next() (*Token, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cursor >= len(d.records) {
		return nil, false, nil
	}
	rec := d.records[d.cursor]
	d.cursor++
	return &Token{ID: rec.Name, Residues: rec.Residues}, true, nil
}
