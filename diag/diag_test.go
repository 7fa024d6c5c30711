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

package diag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountersAddIsPointwiseSum(t *testing.T) {
	a := Counters{SeedsEmitted: 1, HspsInserted: 2, ElapsedNanos: 100}
	b := Counters{SeedsEmitted: 10, HspsTrimmed: 3, ElapsedNanos: 5}
	a.Add(b)
	assert.Equal(t, Counters{SeedsEmitted: 11, HspsInserted: 2, HspsTrimmed: 3, ElapsedNanos: 105}, a)
}

func TestRecorderAccumulates(t *testing.T) {
	var r Recorder
	r.AddSeedsEmitted(3)
	r.AddSeedsEmitted(4)
	r.AddExtensionsAttempted(1)
	assert.Equal(t, Counters{SeedsEmitted: 7, ExtensionsAttempted: 1}, r.Snapshot())
}

func TestAtomicErrorFlag(t *testing.T) {
	var f AtomicErrorFlag
	assert.False(t, f.IsSet())
	f.Set()
	assert.True(t, f.IsSet())
}
