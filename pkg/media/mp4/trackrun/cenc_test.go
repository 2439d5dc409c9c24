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

func TestParseFrameCencInfo_BareIVNoSubsampleSection(t *testing.T) {
	chunk := make([]byte, 8)
	chunk[7] = 0x42

	info, err := parseFrameCencInfo(chunk, 8)
	require.NoError(t, err)
	assert.Equal(t, chunk, info.IV)
	assert.Empty(t, info.Subsamples)
}

func TestParseFrameCencInfo_IVPlusSubsampleRecords(t *testing.T) {
	chunk := append(make([]byte, 8),
		0x00, 0x02, // count = 2
		0x00, 0x64, 0x00, 0x00, 0x00, 0x0A, // clear=100, cipher=10
		0x00, 0x32, 0x00, 0x00, 0x00, 0x05, // clear=50, cipher=5
	)

	info, err := parseFrameCencInfo(chunk, 8)
	require.NoError(t, err)
	require.Len(t, info.Subsamples, 2)
	assert.EqualValues(t, 100, info.Subsamples[0].BytesClear)
	assert.EqualValues(t, 10, info.Subsamples[0].BytesCipher)
	assert.EqualValues(t, 50, info.Subsamples[1].BytesClear)
	assert.EqualValues(t, 5, info.Subsamples[1].BytesCipher)
}

func TestParseFrameCencInfo_TruncatedIVIsParseError(t *testing.T) {
	chunk := make([]byte, 4) // shorter than the declared 8-byte IV

	_, err := parseFrameCencInfo(chunk, 8)
	require.Error(t, err)
	var trErr *Error
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, AuxInfoParseError, trErr.Kind)
}

func TestParseFrameCencInfo_TruncatedSubsampleCountIsParseError(t *testing.T) {
	chunk := append(make([]byte, 8), 0x00) // only one byte of the 2-byte count

	_, err := parseFrameCencInfo(chunk, 8)
	require.Error(t, err)
	var trErr *Error
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, AuxInfoParseError, trErr.Kind)
}

func TestParseFrameCencInfo_TruncatedSubsampleEntryIsParseError(t *testing.T) {
	chunk := append(make([]byte, 8),
		0x00, 0x01, // count = 1
		0x00, 0x64, 0x00, 0x00, // only 4 of the 6 bytes of the one entry
	)

	_, err := parseFrameCencInfo(chunk, 8)
	require.Error(t, err)
	var trErr *Error
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, AuxInfoParseError, trErr.Kind)
}

func TestParseFrameCencInfo_TrailingBytesIsParseError(t *testing.T) {
	chunk := append(make([]byte, 8),
		0x00, 0x01,
		0x00, 0x64, 0x00, 0x00, 0x00, 0x0A,
		0xFF, // one extra byte past the declared subsample records
	)

	_, err := parseFrameCencInfo(chunk, 8)
	require.Error(t, err)
	var trErr *Error
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, AuxInfoParseError, trErr.Kind)
}

func TestParseFrameCencInfo_ZeroIVSizeConsumesOnlySubsampleSection(t *testing.T) {
	chunk := []byte{0x00, 0x01, 0x00, 0x64, 0x00, 0x00, 0x00, 0x0A}

	info, err := parseFrameCencInfo(chunk, 0)
	require.NoError(t, err)
	assert.Empty(t, info.IV)
	require.Len(t, info.Subsamples, 1)
}

func TestCencCache_CacheRejectsBufferShorterThanDeclaredSizes(t *testing.T) {
	r := &RunInfo{
		AuxInfoStartOffset: 100,
		Samples:            []SampleInfo{{Size: 10}, {Size: 10}},
		AuxInfoDefaultSize: 24,
	}
	// the first 24-byte chunk is well-formed (16-byte IV plus one
	// subsample record); the second sample's chunk is missing entirely
	buf := append(make([]byte, 16), 0x00, 0x01, 0x00, 0x0A, 0x00, 0x00, 0x00, 0x00)
	var c cencCache
	err := c.cache(r, buf, 16) // declares 2*24=48 bytes, buf only has 24
	require.Error(t, err)
	var trErr *Error
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, AuxInfoParseError, trErr.Kind)
}

func TestCencCache_NeedsCachingTracksRunIdentityByAuxOffset(t *testing.T) {
	var c cencCache
	r1 := &RunInfo{AuxInfoStartOffset: 100, Samples: []SampleInfo{{Size: 8}}, AuxInfoDefaultSize: 8}
	assert.True(t, c.needsCaching(r1))

	require.NoError(t, c.cache(r1, make([]byte, 8), 8))
	assert.False(t, c.needsCaching(r1))

	r2 := &RunInfo{AuxInfoStartOffset: 200, Samples: []SampleInfo{{Size: 8}}, AuxInfoDefaultSize: 8}
	assert.True(t, c.needsCaching(r2))
}

func TestDecryptConfig_RecoversNilOnSubsampleSumMismatch(t *testing.T) {
	r := &RunInfo{
		AuxInfoStartOffset: 100,
		TrackEncryption:    &TrackEncryption{DefaultIsProtected: true, DefaultIVSize: 8},
		Samples:            []SampleInfo{{Size: 999}}, // does not match the subsample sum below
		AuxInfoDefaultSize: 16,
	}
	buf := append(make([]byte, 8),
		0x00, 0x01,
		0x00, 0x64, 0x00, 0x00, 0x00, 0x0A, // clear=100, cipher=10, sum=110 != 999
	)

	var c cencCache
	require.NoError(t, c.cache(r, buf, 8))

	cfg, err := c.decryptConfig(r, 0)
	require.NoError(t, err) // recoverable: no error, just no config
	assert.Nil(t, cfg)
}

func TestDecryptConfig_SucceedsWhenSubsampleSumMatchesSize(t *testing.T) {
	r := &RunInfo{
		AuxInfoStartOffset: 100,
		TrackEncryption:    &TrackEncryption{DefaultIsProtected: true, DefaultIVSize: 8, DefaultKID: [16]byte{1}},
		Samples:            []SampleInfo{{Size: 110}},
		AuxInfoDefaultSize: 16,
	}
	buf := append(make([]byte, 8),
		0x00, 0x01,
		0x00, 0x64, 0x00, 0x00, 0x00, 0x0A, // clear=100, cipher=10, sum=110 == size
	)

	var c cencCache
	require.NoError(t, c.cache(r, buf, 8))

	cfg, err := c.decryptConfig(r, 0)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, r.TrackEncryption.DefaultKID, cfg.KID)
	require.Len(t, cfg.Subsamples, 1)
}

func TestDecryptConfig_ErrorsWhenRunHasNoTrackEncryption(t *testing.T) {
	r := &RunInfo{
		AuxInfoStartOffset: 100,
		Samples:            []SampleInfo{{Size: 8}},
		AuxInfoDefaultSize: 8,
	}
	var c cencCache
	require.NoError(t, c.cache(r, make([]byte, 8), 8))

	_, err := c.decryptConfig(r, 0)
	require.Error(t, err)
	var trErr *Error
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, StructuralError, trErr.Kind)
}

func TestDecryptConfig_StateErrorWhenNotYetCached(t *testing.T) {
	var c cencCache
	_, err := c.decryptConfig(&RunInfo{Samples: []SampleInfo{{Size: 8}}}, 0)
	require.Error(t, err)
	var trErr *Error
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, StateError, trErr.Kind)
}
