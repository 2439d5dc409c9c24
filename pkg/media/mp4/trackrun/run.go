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
	"math"
	"sort"
)

// SampleInfo is a single sample's timing and framing metadata within a
// RunInfo.
type SampleInfo struct {
	Size       uint32
	Duration   uint32
	CtsOffset  int32
	IsKeyframe bool
}

// RunInfo is a contiguous group of samples sharing a chunk (non-fragmented
// mode) or trun (fragmented mode) origin.
type RunInfo struct {
	TrackID   uint32
	TrackType TrackType
	Timescale uint32

	Samples []SampleInfo

	StartDTS          int64
	SampleStartOffset uint64

	Description *SampleDescription

	// CENC auxiliary block. AuxInfoTotalSize == 0 means "no aux info for
	// this run"; AuxInfoStartOffset is meaningless in that case.
	AuxInfoStartOffset  uint64
	AuxInfoDefaultSize  uint32
	AuxInfoSizes        []uint32 // per-sample, used when AuxInfoDefaultSize == 0
	AuxInfoTotalSize    uint64

	TrackEncryption *TrackEncryption
}

// IsEncrypted reports whether this run's selected description was marked
// as encrypted.
func (r *RunInfo) IsEncrypted() bool {
	return r.Description != nil && r.Description.Encrypted
}

// AuxInfoSize returns the packed aux-info size for the 0-based sample i.
func (r *RunInfo) AuxInfoSize(i int) uint32 {
	if r.AuxInfoDefaultSize != 0 {
		return r.AuxInfoDefaultSize
	}
	if i < 0 || i >= len(r.AuxInfoSizes) {
		return 0
	}
	return r.AuxInfoSizes[i]
}

// offsetKey is the §4.4 sort key: (min(aux, sampleStart), max(aux, sampleStart)).
func (r *RunInfo) offsetKey() (lo, hi uint64) {
	aux := uint64(math.MaxUint64)
	if r.AuxInfoTotalSize > 0 {
		aux = r.AuxInfoStartOffset
	}
	if aux < r.SampleStartOffset {
		return aux, r.SampleStartOffset
	}
	return r.SampleStartOffset, aux
}

// sortRuns stable-sorts runs by their offset key, ascending, breaking ties
// by the secondary (greater) offset. Stability preserves original
// within-track run order for runs that share a key, since timestamps
// depend on source order (see DESIGN.md).
func sortRuns(runs []*RunInfo) {
	sort.SliceStable(runs, func(i, j int) bool {
		loI, hiI := runs[i].offsetKey()
		loJ, hiJ := runs[j].offsetKey()
		if loI != loJ {
			return loI < loJ
		}
		return hiI < hiJ
	})
}

// dtsAt returns the decode timestamp of the 0-based sample k within the
// run, per invariant 1: dts(k) = start_dts + Σ_{j<k} duration(j).
func (r *RunInfo) dtsAt(k int) int64 {
	dts := r.StartDTS
	for j := 0; j < k; j++ {
		dts += int64(r.Samples[j].Duration)
	}
	return dts
}

// offsetAt returns the byte offset of the 0-based sample k within the
// run, per invariant 2: offset(k) = sample_start_offset + Σ_{j<k} size(j).
func (r *RunInfo) offsetAt(k int) uint64 {
	off := r.SampleStartOffset
	for j := 0; j < k; j++ {
		off += uint64(r.Samples[j].Size)
	}
	return off
}
