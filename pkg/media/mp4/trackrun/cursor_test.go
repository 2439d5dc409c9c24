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

func TestDecodingTimeCursor(t *testing.T) {
	c, err := newDecodingTimeCursor([]SttsEntry{
		{SampleCount: 2, SampleDelta: 1000},
		{SampleCount: 1, SampleDelta: 500},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, c.numSamples())

	var deltas []uint32
	for c.isValid() {
		deltas = append(deltas, c.current())
		c.advance()
	}
	assert.Equal(t, []uint32{1000, 1000, 500}, deltas)
	assert.False(t, c.isValid())
}

func TestDecodingTimeCursorRejectsZeroCount(t *testing.T) {
	_, err := newDecodingTimeCursor([]SttsEntry{{SampleCount: 0, SampleDelta: 1}})
	require.Error(t, err)
	var trErr *Error
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, StructuralError, trErr.Kind)
}

func TestCompositionOffsetCursorAbsent(t *testing.T) {
	c, err := newCompositionOffsetCursor(nil)
	require.NoError(t, err)
	assert.False(t, c.isValid())
	assert.False(t, c.present)
}

func TestCompositionOffsetCursorWalks(t *testing.T) {
	c, err := newCompositionOffsetCursor([]CttsEntry{
		{SampleCount: 2, SampleOffset: -512},
		{SampleCount: 1, SampleOffset: 0},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, c.numSamples())

	var offsets []int32
	for c.isValid() {
		offsets = append(offsets, c.current())
		c.advance()
	}
	assert.Equal(t, []int32{-512, -512, 0}, offsets)
	assert.False(t, c.isValid())
}

func TestChunkInfoCursor(t *testing.T) {
	entries := []StscEntry{
		{FirstChunk: 1, SamplesPerChunk: 2, SampleDescriptionIndex: 1},
		{FirstChunk: 3, SamplesPerChunk: 3, SampleDescriptionIndex: 1},
	}
	c, err := newChunkInfoCursor(entries, 4)
	require.NoError(t, err)

	assert.EqualValues(t, 1, c.currentChunk())
	assert.EqualValues(t, 2, c.samplesPerChunk())

	assert.True(t, c.advanceSample()) // sample 1 of chunk 1
	assert.EqualValues(t, 1, c.currentChunk())
	assert.True(t, c.advanceSample()) // rolls into chunk 2
	assert.EqualValues(t, 2, c.currentChunk())

	assert.True(t, c.advanceChunk()) // -> chunk 3
	assert.EqualValues(t, 3, c.currentChunk())
	assert.EqualValues(t, 3, c.samplesPerChunk())

	assert.True(t, c.advanceChunk()) // -> chunk 4
	assert.False(t, c.advanceChunk())
	assert.False(t, c.isValid())
}

func TestChunkInfoCursorRejectsNonIncreasingEntries(t *testing.T) {
	_, err := newChunkInfoCursor([]StscEntry{
		{FirstChunk: 2, SamplesPerChunk: 1},
		{FirstChunk: 1, SamplesPerChunk: 1},
	}, 3)
	require.Error(t, err)
}

func TestChunkInfoCursorEmptyWithNoChunks(t *testing.T) {
	c, err := newChunkInfoCursor(nil, 0)
	require.NoError(t, err)
	assert.False(t, c.isValid())
}

func TestSyncSampleCursorAbsentTableMeansAllKeyframes(t *testing.T) {
	c := newSyncSampleCursor(nil, false)
	for i := 0; i < 5; i++ {
		assert.True(t, c.isSyncSample())
		c.advanceSample()
	}
}

func TestSyncSampleCursorWalksList(t *testing.T) {
	c := newSyncSampleCursor([]uint32{1, 3}, true)

	var keyframes []bool
	for i := 0; i < 4; i++ {
		keyframes = append(keyframes, c.isSyncSample())
		c.advanceSample()
	}
	assert.Equal(t, []bool{true, false, true, false}, keyframes)
}
