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

package fasta

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boratyng/blastcore/matrix"
)

func toResidues(t *testing.T, s string) []byte {
	t.Helper()
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		r := matrix.ResidueIndex(s[i])
		require.GreaterOrEqual(t, r, int8(0))
		out[i] = byte(r)
	}
	return out
}

func TestParseMultiRecord(t *testing.T) {
	r := strings.NewReader(">sp|P01308|INS_HUMAN Insulin\nMALWMRLL\nPLLALLAL\n>sp|P69905|HBA_HUMAN\nMVLSPADK\n")
	records, err := Parse(r)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "sp|P01308|INS_HUMAN", records[0].Name)
	assert.Equal(t, toResidues(t, "MALWMRLLPLLALLAL"), records[0].Residues)
	assert.Equal(t, "sp|P69905|HBA_HUMAN", records[1].Name)
	assert.Equal(t, toResidues(t, "MVLSPADK"), records[1].Residues)
}

func TestParseDropsTextAfterFirstSpace(t *testing.T) {
	r := strings.NewReader(">chr1 A viral sequence\nMKT\n")
	records, err := Parse(r)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "chr1", records[0].Name)
}

func TestParseUnknownLetterBecomesX(t *testing.T) {
	r := strings.NewReader(">s\nM1T\n")
	records, err := Parse(r)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, toResidues(t, "MXT"), records[0].Residues)
}

func TestParseEmptyInput(t *testing.T) {
	records, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestParseRejectsSequenceBeforeHeader(t *testing.T) {
	_, err := Parse(strings.NewReader("MKT\n>s\nMKT\n"))
	assert.Error(t, err)
}
