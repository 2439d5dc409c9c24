/*
Copyright 2022-2026 The nagare media authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package trackrun

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize_IdempotentAcrossCalls(t *testing.T) {
	m := &Movie{Tracks: []*Track{fourChunkVideoTrack()}}

	it1, err1 := Initialize(m, nil)
	require.NoError(t, err1)
	it2, err2 := Initialize(m, nil)
	require.NoError(t, err2)

	require.Equal(t, len(it1.runs), len(it2.runs))
	for i := range it1.runs {
		assert.Equal(t, it1.runs[i].StartDTS, it2.runs[i].StartDTS)
		assert.Equal(t, it1.runs[i].SampleStartOffset, it2.runs[i].SampleStartOffset)
		assert.Equal(t, it1.runs[i].Samples, it2.runs[i].Samples)
	}
}

func TestInitialize_SumOfSampleSizesMatchesDeclaredPayload(t *testing.T) {
	track := fourChunkVideoTrack()
	m := &Movie{Tracks: []*Track{track}}

	it, err := Initialize(m, nil)
	require.NoError(t, err)

	var total uint32
	for it.IsRunValid() {
		for it.IsSampleValid() {
			size, err := it.SampleSize()
			require.NoError(t, err)
			total += size
			it.AdvanceSample()
		}
	}

	var want uint32
	for _, s := range track.SampleTable.SampleSize.Sizes {
		want += s
	}
	assert.Equal(t, want, total)
}

func TestIterator_DTSAndOffsetInvariantsAcrossTraversal(t *testing.T) {
	m := &Movie{Tracks: []*Track{fourChunkVideoTrack()}}
	it, err := Initialize(m, nil)
	require.NoError(t, err)

	var lastDTS int64 = -1
	for it.IsRunValid() {
		for it.IsSampleValid() {
			dts, err := it.SampleDTS()
			require.NoError(t, err)
			assert.GreaterOrEqual(t, dts, lastDTS)
			lastDTS = dts

			cts, err := it.SampleCTS()
			require.NoError(t, err)
			assert.Equal(t, dts, cts) // no ctts in this fixture, offset always 0

			it.AdvanceSample()
		}
		it.AdvanceRun()
	}
}

// TestIterator_SampleDTSMatchesIndependentRecompute cross-checks the
// iterator's incrementally-maintained DTS against RunInfo.dtsAt's
// from-scratch recompute (invariant 1) at every position, the same way
// TestInitialize_SumOfSampleSizesMatchesDeclaredPayload cross-checks
// sample sizes against the declared payload.
func TestIterator_SampleDTSMatchesIndependentRecompute(t *testing.T) {
	m := &Movie{Tracks: []*Track{fourChunkVideoTrack()}}
	it, err := Initialize(m, nil)
	require.NoError(t, err)

	for it.IsRunValid() {
		for it.IsSampleValid() {
			dts, err := it.SampleDTS()
			require.NoError(t, err)
			assert.Equal(t, it.runs[it.runIdx].dtsAt(it.sampleIdx), dts)
			it.AdvanceSample()
		}
		it.AdvanceRun()
	}
}

func TestIterator_QueriesOnExhaustedStateReturnStateError(t *testing.T) {
	m := &Movie{Tracks: []*Track{{TrackID: 1, Type: UnknownTrack}}} // builds zero runs
	it, err := Initialize(m, nil)
	require.NoError(t, err)
	require.False(t, it.IsRunValid())

	_, err = it.TrackID()
	require.Error(t, err)
	var trErr *Error
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, StateError, trErr.Kind)

	_, err = it.SampleDTS()
	require.Error(t, err)

	_, err = it.MaxClearOffset()
	require.Error(t, err)
}

func TestIterator_AdvanceRunSkipsRemainingSamplesOfCurrentRun(t *testing.T) {
	m := &Movie{Tracks: []*Track{fourChunkVideoTrack()}}
	it, err := Initialize(m, nil)
	require.NoError(t, err)

	require.True(t, it.AdvanceSample()) // move to sample 1 of run 0, still valid
	require.True(t, it.IsSampleValid())

	ok := it.AdvanceRun()
	require.True(t, ok)
	require.True(t, it.IsSampleValid())
	dts, err := it.SampleDTS()
	require.NoError(t, err)
	assert.EqualValues(t, 6000, dts) // run 1's start_dts
}

func TestIterator_ExhaustsAfterLastRun(t *testing.T) {
	m := &Movie{Tracks: []*Track{fourChunkVideoTrack()}}
	it, err := Initialize(m, nil)
	require.NoError(t, err)

	n := 0
	for it.IsRunValid() {
		for it.IsSampleValid() {
			n++
			it.AdvanceSample()
		}
		it.AdvanceRun()
	}
	assert.Equal(t, 8, n)
	assert.False(t, it.IsRunValid())
}

func TestInitializeFragment_ReplacesPriorState(t *testing.T) {
	m := movieWithVideoAndAudio()

	traf1 := &TrackFragment{TrackID: 1, Runs: []*TrackRun{trunOfUniformSamples(1000, 2, 3000, 500)}}
	it, err := InitializeFragment(m, &MovieFragment{TrackFragments: []*TrackFragment{traf1}}, nil)
	require.NoError(t, err)
	require.Len(t, it.runs, 1)

	traf2 := &TrackFragment{TrackID: 2, Runs: []*TrackRun{trunOfUniformSamples(9000, 1, 1024, 200)}}
	it, err = InitializeFragment(m, &MovieFragment{TrackFragments: []*TrackFragment{traf2}}, nil)
	require.NoError(t, err)
	require.Len(t, it.runs, 1)
	tid, err := it.TrackID()
	require.NoError(t, err)
	assert.EqualValues(t, 2, tid)
}
