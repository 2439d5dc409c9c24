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
)

func TestResolveSizeFallbackChain(t *testing.T) {
	trex := &TrackExtends{DefaultSampleSize: 42}

	// explicit entry wins
	traf := &TrackFragment{DefaultSampleSizePresent: true, DefaultSampleSize: 7}
	assert.EqualValues(t, 99, resolveSize(TrunSampleEntry{SizePresent: true, Size: 99}, traf, trex))

	// tfhd default wins over trex
	assert.EqualValues(t, 7, resolveSize(TrunSampleEntry{}, traf, trex))

	// trex default is last resort
	assert.EqualValues(t, 42, resolveSize(TrunSampleEntry{}, &TrackFragment{}, trex))

	// nothing present at all resolves to zero
	assert.EqualValues(t, 0, resolveSize(TrunSampleEntry{}, &TrackFragment{}, nil))
}

// TestResolveSizeFallsThroughOnLiteralZeroTfhdDefault covers the
// size/duration asymmetry with resolveFlags: a tfhd default of exactly
// zero falls through to trex, rather than being honored just because a
// present bit was observed.
func TestResolveSizeFallsThroughOnLiteralZeroTfhdDefault(t *testing.T) {
	trex := &TrackExtends{DefaultSampleSize: 42}
	traf := &TrackFragment{DefaultSampleSizePresent: true, DefaultSampleSize: 0}

	assert.EqualValues(t, 42, resolveSize(TrunSampleEntry{}, traf, trex))
}

func TestResolveDurationFallbackChain(t *testing.T) {
	trex := &TrackExtends{DefaultSampleDuration: 1000}
	traf := &TrackFragment{DefaultSampleDurationPresent: true, DefaultSampleDuration: 500}

	assert.EqualValues(t, 250, resolveDuration(TrunSampleEntry{DurationPresent: true, Duration: 250}, traf, trex))
	assert.EqualValues(t, 500, resolveDuration(TrunSampleEntry{}, traf, trex))
	assert.EqualValues(t, 1000, resolveDuration(TrunSampleEntry{}, &TrackFragment{}, trex))
}

// TestResolveDurationFallsThroughOnLiteralZeroTfhdDefault mirrors
// TestResolveSizeFallsThroughOnLiteralZeroTfhdDefault for duration.
func TestResolveDurationFallsThroughOnLiteralZeroTfhdDefault(t *testing.T) {
	trex := &TrackExtends{DefaultSampleDuration: 1000}
	traf := &TrackFragment{DefaultSampleDurationPresent: true, DefaultSampleDuration: 0}

	assert.EqualValues(t, 1000, resolveDuration(TrunSampleEntry{}, traf, trex))
}

func TestResolveFlagsHonorsDefaultPresentBit(t *testing.T) {
	trex := &TrackExtends{DefaultSampleFlags: NonKeySampleMask}

	// tfhd default-sample-flags-present bit was not observed: trex wins
	traf := &TrackFragment{DefaultSampleFlagsPresent: false, DefaultSampleFlags: 0}
	assert.EqualValues(t, NonKeySampleMask, resolveFlags(TrunSampleEntry{}, traf, trex))

	// once the bit is set, the tfhd default takes precedence even if zero
	traf.DefaultSampleFlagsPresent = true
	traf.DefaultSampleFlags = 0
	assert.EqualValues(t, 0, resolveFlags(TrunSampleEntry{}, traf, trex))

	// explicit per-sample flags always win
	assert.EqualValues(t, NonKeySampleMask, resolveFlags(TrunSampleEntry{FlagsPresent: true, Flags: NonKeySampleMask}, traf, trex))
}

func TestResolveCtsOffsetDefaultsToZero(t *testing.T) {
	assert.EqualValues(t, 0, resolveCtsOffset(TrunSampleEntry{}))
	assert.EqualValues(t, -10, resolveCtsOffset(TrunSampleEntry{CtsOffsetPresent: true, CtsOffset: -10}))
}

func TestIsKeyframe(t *testing.T) {
	assert.True(t, isKeyframe(0))
	assert.False(t, isKeyframe(NonKeySampleMask))
	assert.True(t, isKeyframe(0x1000000)) // other bits set, non-key bit clear
}
