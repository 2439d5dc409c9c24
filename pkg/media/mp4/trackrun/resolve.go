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

// NonKeySampleMask is the sample_is_non_sync_sample bit (bit 16, counting
// from 0) of a trun/tfhd sample_flags field; a sample is a keyframe iff
// this bit is clear.
const NonKeySampleMask = 1 << 16

// resolveSize resolves a sample's size per the three-level fallback
// chain: explicit per-sample trun entry, else the tfhd default, else the
// trex default. Unlike resolveFlags, the tfhd default here is gated on
// the value itself being nonzero rather than on a presence bit — a tfhd
// default of 0 falls through to trex, matching PopulateSampleInfo in the
// original track_run_iterator.cc.
func resolveSize(entry TrunSampleEntry, traf *TrackFragment, trex *TrackExtends) uint32 {
	if entry.SizePresent {
		return entry.Size
	}
	if traf.DefaultSampleSize > 0 {
		return traf.DefaultSampleSize
	}
	if trex != nil {
		return trex.DefaultSampleSize
	}
	return 0
}

// resolveDuration resolves a sample's duration through the same chain,
// gated on the tfhd default value being nonzero rather than a presence
// bit (see resolveSize).
func resolveDuration(entry TrunSampleEntry, traf *TrackFragment, trex *TrackExtends) uint32 {
	if entry.DurationPresent {
		return entry.Duration
	}
	if traf.DefaultSampleDuration > 0 {
		return traf.DefaultSampleDuration
	}
	if trex != nil {
		return trex.DefaultSampleDuration
	}
	return 0
}

// resolveFlags resolves a sample's flags through the chain. Per §4.2, the
// tfhd default is only honored when its "default-present" flag bit was
// set — DefaultSampleFlagsPresent already captures that, since the
// caller (the moof-to-TrackFragment conversion) only sets it when tfhd's
// default-sample-flags-present bit was observed.
func resolveFlags(entry TrunSampleEntry, traf *TrackFragment, trex *TrackExtends) uint32 {
	if entry.FlagsPresent {
		return entry.Flags
	}
	if traf.DefaultSampleFlagsPresent {
		return traf.DefaultSampleFlags
	}
	if trex != nil {
		return trex.DefaultSampleFlags
	}
	return 0
}

// resolveCtsOffset resolves a sample's composition offset; it defaults
// to zero when no per-sample entry exists, per §4.2.
func resolveCtsOffset(entry TrunSampleEntry) int32 {
	if entry.CtsOffsetPresent {
		return entry.CtsOffset
	}
	return 0
}

// isKeyframe derives the keyframe boolean from resolved sample flags.
func isKeyframe(flags uint32) bool {
	return flags&NonKeySampleMask == 0
}
