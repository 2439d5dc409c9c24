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

func fourChunkVideoTrack() *Track {
	return &Track{
		TrackID:   1,
		Timescale: 90000,
		Type:      VideoTrack,
		SampleTable: &SampleTable{
			SampleDescriptions: []SampleDescription{{Index: 0, Video: &VideoSampleEntry{Width: 1920, Height: 1080, Codec: "avc1"}}},
			TimeToSample:       []SttsEntry{{SampleCount: 8, SampleDelta: 3000}},
			SampleToChunk:      []StscEntry{{FirstChunk: 1, SamplesPerChunk: 2, SampleDescriptionIndex: 1}},
			SampleSize:         SampleSizeTable{Sizes: []uint32{100, 200, 150, 250, 120, 220, 130, 230}, SampleCount: 8},
			ChunkOffsets:       []uint64{1000, 2000, 3000, 4000},
		},
	}
}

// Seed test 1: single-track video, non-fragmented, 4 chunks x 2 samples,
// uniform duration 3000.
func TestBuildRunsFromMovie_SingleTrackFourChunks(t *testing.T) {
	m := &Movie{Tracks: []*Track{fourChunkVideoTrack()}}

	runs, err := BuildRunsFromMovie(m, nil)
	require.NoError(t, err)
	require.Len(t, runs, 4)

	wantStartDTS := []int64{0, 6000, 12000, 18000}
	for i, r := range runs {
		assert.Equal(t, wantStartDTS[i], r.StartDTS, "run %d", i)
		assert.Len(t, r.Samples, 2)
		assert.Equal(t, uint64(1000+i*1000), r.SampleStartOffset)
	}

	// per-sample offsets within a run are spaced by the prior samples' sizes
	assert.EqualValues(t, 1000, runs[0].offsetAt(0))
	assert.EqualValues(t, 1100, runs[0].offsetAt(1))
	assert.EqualValues(t, 3000, runs[2].offsetAt(0))
	assert.EqualValues(t, 3120, runs[2].offsetAt(1))
}

// Seed test 6: stts advertises a different sample count than stsz.
func TestBuildRunsFromMovie_StructuralFailureOnCountMismatch(t *testing.T) {
	track := fourChunkVideoTrack()
	track.SampleTable.TimeToSample = []SttsEntry{{SampleCount: 10, SampleDelta: 3000}}
	track.SampleTable.SampleSize.SampleCount = 12

	m := &Movie{Tracks: []*Track{track}}
	runs, err := BuildRunsFromMovie(m, nil)
	require.Error(t, err)
	assert.Nil(t, runs)

	var trErr *Error
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, StructuralError, trErr.Kind)

	it := newIterator(runs, nil)
	assert.False(t, it.IsRunValid())
}

func TestBuildRunsFromMovie_ZeroSampleCountYieldsNoRuns(t *testing.T) {
	track := fourChunkVideoTrack()
	track.SampleTable.SampleSize.SampleCount = 0
	track.SampleTable.SampleSize.Sizes = nil

	m := &Movie{Tracks: []*Track{track}}
	runs, err := BuildRunsFromMovie(m, nil)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestBuildRunsFromMovie_SkipsNonAudioVideoTracks(t *testing.T) {
	m := &Movie{Tracks: []*Track{{TrackID: 9, Type: UnknownTrack}}}
	runs, err := BuildRunsFromMovie(m, nil)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestBuildRunsFromMovie_RejectsEncryptedDescription(t *testing.T) {
	track := fourChunkVideoTrack()
	track.SampleTable.SampleDescriptions[0].Encrypted = true

	m := &Movie{Tracks: []*Track{track}}
	_, err := BuildRunsFromMovie(m, nil)
	require.Error(t, err)
}

func TestBuildRunsFromMovie_DescriptionIndexFallsBackToZeroWhenOutOfRange(t *testing.T) {
	track := fourChunkVideoTrack()
	track.SampleTable.SampleToChunk = []StscEntry{{FirstChunk: 1, SamplesPerChunk: 2, SampleDescriptionIndex: 7}}

	m := &Movie{Tracks: []*Track{track}}
	runs, err := BuildRunsFromMovie(m, nil)
	require.NoError(t, err)
	require.NotEmpty(t, runs)
	assert.Same(t, &track.SampleTable.SampleDescriptions[0], runs[0].Description)
}

func TestBuildRunsFromMovie_MultiEntryEditListLogsButDoesNotShiftTimestamps(t *testing.T) {
	track := fourChunkVideoTrack()
	track.EditList = []ElstEntry{{SegmentDuration: 1000, MediaTime: 0}, {SegmentDuration: 2000, MediaTime: 1000}}

	m := &Movie{Tracks: []*Track{track}}
	runs, err := BuildRunsFromMovie(m, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 0, runs[0].StartDTS)
}
