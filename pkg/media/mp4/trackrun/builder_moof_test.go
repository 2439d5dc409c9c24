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

func movieWithVideoAndAudio() *Movie {
	m := &Movie{
		Tracks: []*Track{
			{TrackID: 1, Timescale: 90000, Type: VideoTrack, SampleTable: &SampleTable{
				SampleDescriptions: []SampleDescription{{Index: 0, Video: &VideoSampleEntry{}}},
			}},
			{TrackID: 2, Timescale: 48000, Type: AudioTrack, SampleTable: &SampleTable{
				SampleDescriptions: []SampleDescription{{Index: 0, Audio: &AudioSampleEntry{}}},
			}},
		},
		Extends: map[uint32]*TrackExtends{
			1: {TrackID: 1, DefaultSampleDescriptionIndex: 1, DefaultSampleDuration: 3000, DefaultSampleSize: 1000},
			2: {TrackID: 2, DefaultSampleDescriptionIndex: 1, DefaultSampleDuration: 1024, DefaultSampleSize: 200},
		},
	}
	return m
}

func trunOfUniformSamples(dataOffset int64, n int, duration, size uint32) *TrackRun {
	r := &TrackRun{DataOffset: dataOffset}
	for i := 0; i < n; i++ {
		r.Samples = append(r.Samples, TrunSampleEntry{
			DurationPresent: true, Duration: duration,
			SizePresent: true, Size: size,
		})
	}
	return r
}

// Seed test 2: two tracks, fragmented, interleaved offsets. After ordering,
// runs come back video, audio, video.
func TestBuildRunsFromFragment_InterleavedOffsetOrdering(t *testing.T) {
	m := movieWithVideoAndAudio()

	videoFrag1 := &TrackFragment{TrackID: 1, BaseMediaDecodeTime: 0,
		Runs: []*TrackRun{trunOfUniformSamples(1000, 2, 3000, 500)}}
	audioFrag := &TrackFragment{TrackID: 2, BaseMediaDecodeTime: 0,
		Runs: []*TrackRun{trunOfUniformSamples(2000, 2, 1024, 100)}}
	videoFrag2 := &TrackFragment{TrackID: 1, BaseMediaDecodeTime: 6000,
		Runs: []*TrackRun{trunOfUniformSamples(4000, 2, 3000, 500)}}

	frag := &MovieFragment{TrackFragments: []*TrackFragment{videoFrag1, audioFrag, videoFrag2}}

	runs, err := BuildRunsFromFragment(m, frag)
	require.NoError(t, err)
	require.Len(t, runs, 3)

	it := newIterator(runs, nil)
	require.True(t, it.IsRunValid())

	var trackIDs []uint32
	for it.IsRunValid() {
		tid, err := it.TrackID()
		require.NoError(t, err)
		trackIDs = append(trackIDs, tid)
		it.AdvanceRun()
	}
	assert.Equal(t, []uint32{1, 2, 1}, trackIDs)
}

// Seed test 3: encrypted fragmented run, default_iv_size=8, 3 samples,
// aux_info_default_size=16.
func TestBuildRunsFromFragment_EncryptedRunWithUniformAuxSize(t *testing.T) {
	m := movieWithVideoAndAudio()
	m.Tracks[0].SampleTable.SampleDescriptions[0].Encrypted = true
	m.Tracks[0].Encryption = &TrackEncryption{DefaultIsProtected: true, DefaultIVSize: 8}

	traf := &TrackFragment{
		TrackID:            1,
		Runs:               []*TrackRun{trunOfUniformSamples(5000, 3, 3000, 400)},
		AuxInfoOffsets:     []int64{4800},
		AuxInfoDefaultSize: 16,
		AuxInfoSampleCount: 3,
	}
	frag := &MovieFragment{TrackFragments: []*TrackFragment{traf}}

	runs, err := BuildRunsFromFragment(m, frag)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	r := runs[0]
	assert.True(t, r.IsEncrypted())
	assert.EqualValues(t, 4800, r.AuxInfoStartOffset)
	assert.EqualValues(t, 48, r.AuxInfoTotalSize) // 16 * 3 samples

	it := newIterator(runs, nil)
	needs, err := it.AuxInfoNeedsCaching()
	require.NoError(t, err)
	assert.True(t, needs)

	// each chunk: 8-byte IV + 2-byte subsample count + 1 six-byte subsample
	// record whose clear+cipher sum equals the sample size (400).
	buf := make([]byte, 0, 48)
	for i := 0; i < 3; i++ {
		iv := make([]byte, 8)
		iv[7] = byte(i + 1)
		buf = append(buf, iv...)
		buf = append(buf, 0x00, 0x01) // subsample count = 1
		buf = append(buf, 0x01, 0x90) // clear = 400
		buf = append(buf, 0x00, 0x00, 0x00, 0x00) // cipher = 0
	}
	require.Len(t, buf, 48)

	require.NoError(t, it.EnsureAuxInfoCached(buf))

	needs, err = it.AuxInfoNeedsCaching()
	require.NoError(t, err)
	assert.False(t, needs)

	cfg, err := it.DecryptConfig()
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 1}, cfg.IV)
	require.Len(t, cfg.Subsamples, 1)
	assert.EqualValues(t, 400, cfg.Subsamples[0].BytesClear)
	assert.EqualValues(t, 0, cfg.Subsamples[0].BytesCipher)
}

// Seed test 4: encrypted fragmented run with per-sample aux sizes [24, 16, 24].
func TestBuildRunsFromFragment_EncryptedRunWithPerSampleAuxSizes(t *testing.T) {
	m := movieWithVideoAndAudio()
	m.Tracks[0].SampleTable.SampleDescriptions[0].Encrypted = true
	// default_iv_size=16 here: a 24-byte chunk is exactly a 16-byte IV plus
	// one 8-byte subsample record (2-byte count + one 6-byte entry); a
	// 16-byte chunk is a bare IV with no subsample section.
	m.Tracks[0].Encryption = &TrackEncryption{DefaultIsProtected: true, DefaultIVSize: 16}

	traf := &TrackFragment{
		TrackID:            1,
		Runs:               []*TrackRun{trunOfUniformSamples(5000, 3, 3000, 1000)},
		AuxInfoOffsets:     []int64{4800},
		AuxInfoSizes:       []uint32{24, 16, 24},
		AuxInfoSampleCount: 3,
	}
	frag := &MovieFragment{TrackFragments: []*TrackFragment{traf}}

	runs, err := BuildRunsFromFragment(m, frag)
	require.NoError(t, err)
	r := runs[0]
	assert.EqualValues(t, 64, r.AuxInfoTotalSize)

	it := newIterator(runs, nil)

	buf := make([]byte, 0, 64)
	// sample 0: 16-byte IV + 2-byte count(1) + 6-byte subsample (clear=1000,cipher=0)
	buf = append(buf, make([]byte, 16)...)
	buf = append(buf, 0x00, 0x01, 0x03, 0xE8, 0x00, 0x00, 0x00, 0x00)
	// sample 1: bare 16-byte IV, no subsample section (chunk ends after IV)
	buf = append(buf, make([]byte, 16)...)
	// sample 2: 16-byte IV + 2-byte count(1) + 6-byte subsample (clear=1000,cipher=0)
	buf = append(buf, make([]byte, 16)...)
	buf = append(buf, 0x00, 0x01, 0x03, 0xE8, 0x00, 0x00, 0x00, 0x00)
	require.Len(t, buf, 64)

	require.NoError(t, it.EnsureAuxInfoCached(buf))

	cfg0, err := it.DecryptConfig()
	require.NoError(t, err)
	require.Len(t, cfg0.Subsamples, 1)

	require.True(t, it.AdvanceSample())
	cfg1, err := it.DecryptConfig()
	require.NoError(t, err)
	assert.Empty(t, cfg1.Subsamples)

	require.True(t, it.AdvanceSample())
	cfg2, err := it.DecryptConfig()
	require.NoError(t, err)
	require.Len(t, cfg2.Subsamples, 1)
}

// TestBuildRunsFromFragment_SaizCoverageShortWithNonzeroDefaultSize covers
// the saiz/saio coverage check with a nonzero AuxInfoDefaultSize — the
// check must fire here too, not just in the per-sample-sizes case.
func TestBuildRunsFromFragment_SaizCoverageShortWithNonzeroDefaultSize(t *testing.T) {
	m := movieWithVideoAndAudio()
	m.Tracks[0].SampleTable.SampleDescriptions[0].Encrypted = true
	m.Tracks[0].Encryption = &TrackEncryption{DefaultIsProtected: true, DefaultIVSize: 8}

	traf := &TrackFragment{
		TrackID:            1,
		Runs:               []*TrackRun{trunOfUniformSamples(5000, 3, 3000, 400)},
		AuxInfoOffsets:     []int64{4800},
		AuxInfoDefaultSize: 16,
		AuxInfoSampleCount: 2, // saiz only declares 2 samples' worth, run needs 3
	}
	frag := &MovieFragment{TrackFragments: []*TrackFragment{traf}}

	_, err := BuildRunsFromFragment(m, frag)
	require.Error(t, err)
}

func TestBuildRunsFromFragment_ZeroSampleCountRunStillAppears(t *testing.T) {
	m := movieWithVideoAndAudio()
	traf := &TrackFragment{TrackID: 1, Runs: []*TrackRun{{DataOffset: 1000}}}
	frag := &MovieFragment{TrackFragments: []*TrackFragment{traf}}

	runs, err := BuildRunsFromFragment(m, frag)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	it := newIterator(runs, nil)
	require.True(t, it.IsRunValid())
	assert.False(t, it.IsSampleValid())
}

func TestBuildRunsFromFragment_MissingTrackIsStructuralError(t *testing.T) {
	m := movieWithVideoAndAudio()
	traf := &TrackFragment{TrackID: 99, Runs: []*TrackRun{trunOfUniformSamples(0, 1, 1, 1)}}
	frag := &MovieFragment{TrackFragments: []*TrackFragment{traf}}

	_, err := BuildRunsFromFragment(m, frag)
	require.Error(t, err)
}

func TestBuildRunsFromFragment_DefaultResolutionFromTrex(t *testing.T) {
	m := movieWithVideoAndAudio()
	traf := &TrackFragment{
		TrackID: 1,
		Runs:    []*TrackRun{{DataOffset: 8000, Samples: []TrunSampleEntry{{}, {}}}},
	}
	frag := &MovieFragment{TrackFragments: []*TrackFragment{traf}}

	runs, err := BuildRunsFromFragment(m, frag)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	for _, s := range runs[0].Samples {
		assert.EqualValues(t, 3000, s.Duration) // trex default for track 1
		assert.EqualValues(t, 1000, s.Size)
	}
}
