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
package main

/*
blastcore-search runs the preliminary (ungapped, seed-and-extend)
phase of a protein BLAST search: it builds a lookup table over one or
more query sequences, streams a subject FASTA database against it, and
reports the surviving high-scoring segment pairs per query.
*/

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"

	"github.com/boratyng/blastcore/collect"
	"github.com/boratyng/blastcore/encoding/fasta"
	"github.com/boratyng/blastcore/engine"
	"github.com/boratyng/blastcore/extend"
	"github.com/boratyng/blastcore/lookup"
	"github.com/boratyng/blastcore/matrix"
	"github.com/boratyng/blastcore/query"
	"github.com/boratyng/blastcore/subject"
)

var (
	matrixName     = flag.String("matrix", "BLOSUM62", fmt.Sprintf("Substitution matrix; one of %v", matrix.Registered()))
	wordLength     = flag.Int("word-size", 3, "Lookup table word length (2 or 3)")
	threshold      = flag.Int("threshold", 11, "Neighborhood score threshold; 0 disables neighborhood expansion")
	windowSize     = flag.Int("window-size", 40, "Two-hit window; 0 selects one-hit mode")
	xDrop          = flag.Int("xdrop-ungapped", 7, "X-drop for ungapped extension, in bits-equivalent raw score units")
	ungappedCutoff = flag.Int("ungapped-cutoff", 0, "Minimum raw score for an ungapped HSP to survive")
	hitlistSize    = flag.Int("hitlist-size", 500, "Maximum number of subjects retained per query")
	hspNumMax      = flag.Int("hsp-max", 0, "Maximum HSPs retained per (query, subject) pair; 0 = unbounded")
	totalHspLimit  = flag.Int("total-hsp-limit", 0, "Global per-query HSP budget enforced by a post-run trim; 0 disables trimming")
	parallelism    = flag.Int("parallelism", 0, "Number of search workers; 0 = runtime.NumCPU()")
)

func blastcoreSearchUsage() {
	fmt.Printf("Usage: %s [OPTIONS] querypath subjectpath\n", os.Args[0])
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = blastcoreSearchUsage
	shutdown := grail.Init()
	defer shutdown()

	allArgs := flag.Args()
	nPositionalArgs := flag.NArg()
	positionalArgs := allArgs[len(allArgs)-nPositionalArgs:]
	if nPositionalArgs != 2 {
		if nPositionalArgs < 2 {
			log.Fatalf("Missing positional arguments (querypath and subjectpath required); please check flag syntax: '%s'", strings.Join(positionalArgs, " "))
		} else {
			log.Fatalf("Too many positional arguments (only querypath and subjectpath expected); please check flag syntax: '%s'", strings.Join(positionalArgs, " "))
		}
	}
	queryPath, subjectPath := positionalArgs[0], positionalArgs[1]
	ctx := vcontext.Background()

	m, err := matrix.Load(*matrixName, 1)
	if err != nil {
		log.Fatalf("loading matrix %q: %v", *matrixName, err)
	}

	queries, err := loadQueries(ctx, queryPath)
	if err != nil {
		log.Fatalf("loading queries from %s: %v", queryPath, err)
	}
	info, err := query.NewInfo(queries)
	if err != nil {
		log.Fatalf("building query info: %v", err)
	}

	builder, err := lookup.NewBuilder(lookup.Options{
		WordLength:   *wordLength,
		AlphabetSize: m.Dim(),
		Threshold:    int32(*threshold),
	})
	if err != nil {
		log.Fatalf("building lookup table: %v", err)
	}
	for i, q := range queries {
		if err := builder.IndexQuery(q.Residues, []query.Range{{0, query.Pos(len(q.Residues))}}, info.QueryBias(i), m); err != nil {
			log.Fatalf("indexing query %s: %v", q.Name, err)
		}
	}
	table, err := builder.Finalize()
	if err != nil {
		log.Fatalf("finalizing lookup table: %v", err)
	}

	db, err := subject.OpenDatabase(ctx, subjectPath)
	if err != nil {
		log.Fatalf("opening subject database %s: %v", subjectPath, err)
	}

	numWorkers := *parallelism
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	coll := collect.New(info.NumQueries(), *hspNumMax, *hitlistSize)
	h := engine.Run(engine.Config{
		NumWorkers: numWorkers,
		Source:     db,
		Table:      table,
		Matrix:     m,
		QueryInfo:  info,
		Collector:  coll,
		ExtendOptions: extend.Options{
			WordLength:     *wordLength,
			WindowSize:     *windowSize,
			XDrop:          int32(*xDrop),
			UngappedCutoff: int32(*ungappedCutoff),
		},
		TotalHspLimit: *totalHspLimit,
	}, nil)

	if err := h.FindError(); err != nil {
		log.Fatalf("search failed: %v", err)
	}

	d := h.Diagnostics()
	log.Debug.Printf("subjects scanned: %d, seeds emitted: %d, extensions attempted: %d, hsps inserted: %d, hsps trimmed: %d",
		d.SubjectsScanned, d.SeedsEmitted, d.ExtensionsAttempted, d.HspsInserted, d.HspsTrimmed)

	printResults(h.Result(), queries)
}

func loadQueries(ctx context.Context, path string) ([]query.Sequence, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer f.Close(ctx) // nolint: errcheck

	records, err := fasta.Parse(f.Reader(ctx))
	if err != nil {
		return nil, err
	}
	seqs := make([]query.Sequence, len(records))
	for i, rec := range records {
		seqs[i] = query.Sequence{Name: rec.Name, Residues: rec.Residues}
	}
	return seqs, nil
}

func printResults(blob collect.BlobOfHsps, queries []query.Sequence) {
	for _, qr := range blob.Hitlists {
		name := "query"
		if qr.QueryIdx < len(queries) {
			name = queries[qr.QueryIdx].Name
		}
		for _, list := range qr.Lists {
			for _, hsp := range list.Hsps {
				fmt.Printf("%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
					name, list.SubjectID, hsp.RawScore,
					hsp.QueryRange.From, hsp.QueryRange.To,
					hsp.SubjectRange.From, hsp.SubjectRange.To)
			}
		}
	}
}
