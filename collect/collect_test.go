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

package collect

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHspListOrderedByScoreDescending(t *testing.T) {
	c := New(1, 0, 0)
	require.NoError(t, c.Insert(0, "s1", Hsp{RawScore: 5}))
	require.NoError(t, c.Insert(0, "s1", Hsp{RawScore: 9}))
	require.NoError(t, c.Insert(0, "s1", Hsp{RawScore: 7}))

	blob := c.Freeze()
	list := blob.Hitlists[0].Lists[0]
	require.Len(t, list.Hsps, 3)
	assert.Equal(t, []int32{9, 7, 5}, []int32{list.Hsps[0].RawScore, list.Hsps[1].RawScore, list.Hsps[2].RawScore})
}

func TestHspListTruncatesToHspNumMax(t *testing.T) {
	c := New(1, 2, 0)
	for _, s := range []int32{1, 5, 3} {
		require.NoError(t, c.Insert(0, "s1", Hsp{RawScore: s}))
	}
	blob := c.Freeze()
	assert.Len(t, blob.Hitlists[0].Lists[0].Hsps, 2)
	assert.Equal(t, int32(5), blob.Hitlists[0].Lists[0].Hsps[0].RawScore)
	assert.Equal(t, int32(3), blob.Hitlists[0].Lists[0].Hsps[1].RawScore)
}

// TestHitlistCap streams 100 subjects with monotonically decreasing
// score; expect exactly the 5 highest-scoring retained.
func TestHitlistCap(t *testing.T) {
	c := New(1, 0, 5)
	for i := 0; i < 100; i++ {
		score := int32(100 - i)
		require.NoError(t, c.Insert(0, fmt.Sprintf("subject-%03d", i), Hsp{RawScore: score}))
	}
	blob := c.Freeze()
	lists := blob.Hitlists[0].Lists
	require.Len(t, lists, 5)
	for i, l := range lists {
		assert.Equal(t, int32(100-i), l.Hsps[0].RawScore)
	}
}

// TestTrim covers totalHspLimit=10, 3 subjects with counts
// [3, 7, 20] before trim.
func TestTrim(t *testing.T) {
	c := New(1, 0, 0)
	counts := []int{3, 7, 20}
	ids := []string{"a", "b", "c"}
	for si, n := range counts {
		for i := 0; i < n; i++ {
			require.NoError(t, c.Insert(0, ids[si], Hsp{RawScore: int32(n - i)}))
		}
	}
	removed := c.Trim(10)
	assert.Greater(t, removed, 0)

	blob := c.Freeze()
	total := 0
	for _, l := range blob.Hitlists[0].Lists {
		assert.GreaterOrEqual(t, len(l.Hsps), 1)
		total += len(l.Hsps)
	}
	assert.LessOrEqual(t, total, 10)

	var biggest *HspList
	for _, l := range blob.Hitlists[0].Lists {
		if l.SubjectID == "c" {
			biggest = l
		}
	}
	require.NotNil(t, biggest)
	for _, l := range blob.Hitlists[0].Lists {
		assert.LessOrEqual(t, len(l.Hsps), len(biggest.Hsps))
	}
}

// TestTrimBelowSubjectCountCanEmptyALists checks that when
// totalHspLimit is smaller than the number of subjects, trim does not
// unconditionally floor every subject at 1 HSP: the post-trim total
// must still respect totalHspLimit, even if that means some subjects
// are trimmed to zero HSPs.
func TestTrimBelowSubjectCountCanEmptyALists(t *testing.T) {
	c := New(1, 0, 0)
	ids := []string{"a", "b", "c"}
	for _, id := range ids {
		for i := 0; i < 5; i++ {
			require.NoError(t, c.Insert(0, id, Hsp{RawScore: int32(5 - i)}))
		}
	}
	removed := c.Trim(2)
	assert.Equal(t, 13, removed)

	blob := c.Freeze()
	total := 0
	for _, l := range blob.Hitlists[0].Lists {
		total += len(l.Hsps)
	}
	assert.LessOrEqual(t, total, 2)
}

func TestTrimZeroLimitDoesNothing(t *testing.T) {
	c := New(1, 0, 0)
	for i := 0; i < 5; i++ {
		require.NoError(t, c.Insert(0, "s", Hsp{RawScore: int32(i)}))
	}
	removed := c.Trim(0)
	assert.Equal(t, 0, removed)
	assert.Len(t, c.Freeze().Hitlists[0].Lists[0].Hsps, 5)
}

func TestInsertAfterFreezeFails(t *testing.T) {
	c := New(1, 0, 0)
	c.Freeze()
	err := c.Insert(0, "s", Hsp{RawScore: 1})
	assert.ErrorIs(t, err, ErrFrozen)
}

func TestEvictWorstTieBreaksByHigherSubjectID(t *testing.T) {
	c := New(1, 0, 2)
	require.NoError(t, c.Insert(0, "a", Hsp{RawScore: 5}))
	require.NoError(t, c.Insert(0, "b", Hsp{RawScore: 5}))
	require.NoError(t, c.Insert(0, "z", Hsp{RawScore: 5}))

	blob := c.Freeze()
	var ids []string
	for _, l := range blob.Hitlists[0].Lists {
		ids = append(ids, l.SubjectID)
	}
	assert.NotContains(t, ids, "z")
	assert.Len(t, ids, 2)
}
