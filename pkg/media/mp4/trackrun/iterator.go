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

import "go.uber.org/zap"

// Iterator is the public read-only traversal surface over a run-built
// presentation. Once Initialize or InitializeFragment succeeds, it is
// positioned at the first sample of the first run in offset order; callers
// drive it forward with AdvanceSample and AdvanceRun and read the current
// position through its query methods.
//
// Zero-value Iterators are not usable; always obtain one via Initialize or
// InitializeFragment.
type Iterator struct {
	runs       []*RunInfo
	runIdx     int
	sampleIdx  int
	sampleDTS  int64
	sampleOff  uint64
	cenc       cencCache
	log        *zap.SugaredLogger
}

// Initialize builds and positions an Iterator over a non-fragmented
// Movie. log may be nil.
func Initialize(m *Movie, log *zap.SugaredLogger) (*Iterator, error) {
	runs, err := BuildRunsFromMovie(m, log)
	if err != nil {
		return nil, err
	}
	return newIterator(runs, log), nil
}

// InitializeFragment builds and positions an Iterator over a single
// MovieFragment, resolving fragmented defaults against m. log may be nil.
func InitializeFragment(m *Movie, frag *MovieFragment, log *zap.SugaredLogger) (*Iterator, error) {
	runs, err := BuildRunsFromFragment(m, frag)
	if err != nil {
		return nil, err
	}
	return newIterator(runs, log), nil
}

func newIterator(runs []*RunInfo, log *zap.SugaredLogger) *Iterator {
	sortRuns(runs)
	it := &Iterator{runs: runs, log: log}
	if len(runs) > 0 {
		it.sampleDTS = runs[0].StartDTS
		it.sampleOff = runs[0].SampleStartOffset
	}
	return it
}

// IsRunValid reports whether the iterator is positioned at a run. It is
// false once AdvanceRun has stepped past the last run.
func (it *Iterator) IsRunValid() bool {
	return it.runIdx >= 0 && it.runIdx < len(it.runs)
}

// IsSampleValid reports whether the iterator is positioned at a sample of
// a valid run.
func (it *Iterator) IsSampleValid() bool {
	return it.IsRunValid() && it.sampleIdx >= 0 && it.sampleIdx < len(it.runs[it.runIdx].Samples)
}

// AdvanceSample moves to the next sample, crossing into the next run when
// the current run is exhausted. It returns false once there is no further
// sample, leaving the iterator in the exhausted (IsRunValid() == false)
// state.
func (it *Iterator) AdvanceSample() bool {
	if !it.IsSampleValid() {
		return false
	}
	run := it.runs[it.runIdx]
	s := run.Samples[it.sampleIdx]
	it.sampleDTS += int64(s.Duration)
	it.sampleOff += uint64(s.Size)
	it.sampleIdx++
	if it.sampleIdx < len(run.Samples) {
		return true
	}
	return it.AdvanceRun()
}

// AdvanceRun skips to the first sample of the next run, regardless of how
// far the current run had been consumed. It returns false once there is
// no further run.
func (it *Iterator) AdvanceRun() bool {
	it.runIdx++
	it.sampleIdx = 0
	it.cenc = cencCache{}
	if !it.IsRunValid() {
		return false
	}
	run := it.runs[it.runIdx]
	it.sampleDTS = run.StartDTS
	it.sampleOff = run.SampleStartOffset
	return true
}

func (it *Iterator) currentRun() (*RunInfo, error) {
	if !it.IsRunValid() {
		return nil, newStateError("query against exhausted iterator")
	}
	return it.runs[it.runIdx], nil
}

func (it *Iterator) currentSample() (*RunInfo, SampleInfo, error) {
	run, err := it.currentRun()
	if err != nil {
		return nil, SampleInfo{}, err
	}
	if !it.IsSampleValid() {
		return nil, SampleInfo{}, newStateError("query against run with no current sample")
	}
	return run, run.Samples[it.sampleIdx], nil
}

// TrackID returns the track ID of the current run.
func (it *Iterator) TrackID() (uint32, error) {
	r, err := it.currentRun()
	if err != nil {
		return 0, err
	}
	return r.TrackID, nil
}

// TrackType returns the media type of the current run.
func (it *Iterator) TrackType() (TrackType, error) {
	r, err := it.currentRun()
	if err != nil {
		return UnknownTrack, err
	}
	return r.TrackType, nil
}

// SampleDescription returns the sample description selected for the
// current run.
func (it *Iterator) SampleDescription() (*SampleDescription, error) {
	r, err := it.currentRun()
	if err != nil {
		return nil, err
	}
	return r.Description, nil
}

// SampleSize returns the size in bytes of the current sample.
func (it *Iterator) SampleSize() (uint32, error) {
	_, s, err := it.currentSample()
	if err != nil {
		return 0, err
	}
	return s.Size, nil
}

// SampleDuration returns the duration, in the track's timescale, of the
// current sample.
func (it *Iterator) SampleDuration() (uint32, error) {
	_, s, err := it.currentSample()
	if err != nil {
		return 0, err
	}
	return s.Duration, nil
}

// SampleIsKeyframe reports whether the current sample is a sync sample.
func (it *Iterator) SampleIsKeyframe() (bool, error) {
	_, s, err := it.currentSample()
	if err != nil {
		return false, err
	}
	return s.IsKeyframe, nil
}

// SampleDTS returns the decode timestamp, in the track's timescale, of the
// current sample.
func (it *Iterator) SampleDTS() (int64, error) {
	if _, _, err := it.currentSample(); err != nil {
		return 0, err
	}
	return it.sampleDTS, nil
}

// SampleCTS returns the composition timestamp of the current sample:
// its DTS plus its resolved composition offset.
func (it *Iterator) SampleCTS() (int64, error) {
	_, s, err := it.currentSample()
	if err != nil {
		return 0, err
	}
	return it.sampleDTS + int64(s.CtsOffset), nil
}

// SampleOffset returns the absolute byte offset of the current sample's
// data within its source file.
func (it *Iterator) SampleOffset() (uint64, error) {
	if _, _, err := it.currentSample(); err != nil {
		return 0, err
	}
	return it.sampleOff, nil
}

// MaxClearOffset returns the smallest byte offset the iterator may still
// need, so bytes before it can be discarded: the minimum of the current
// sample's offset, this run's auxiliary-info offset while that info is
// uncached, and the next run's sample and auxiliary-info offsets.
func (it *Iterator) MaxClearOffset() (uint64, error) {
	if !it.IsSampleValid() {
		return 0, newStateError("query against run with no current sample")
	}
	r := it.runs[it.runIdx]
	needsCaching := r.IsEncrypted() && r.AuxInfoTotalSize > 0 && it.cenc.needsCaching(r)
	return maxClearOffset(it.runs, it.runIdx, it.sampleIdx, needsCaching), nil
}

// AuxInfoNeedsCaching reports whether the current run is encrypted, carries
// auxiliary info, and has not yet had that info cached — i.e. whether the
// caller must read AuxInfoTotalSize bytes at AuxInfoStartOffset and pass
// them to EnsureAuxInfoCached before DecryptConfig becomes available.
func (it *Iterator) AuxInfoNeedsCaching() (bool, error) {
	r, err := it.currentRun()
	if err != nil {
		return false, err
	}
	return r.IsEncrypted() && r.AuxInfoTotalSize > 0 && it.cenc.needsCaching(r), nil
}

// EnsureAuxInfoCached parses buf (the bytes read from the current run's
// AuxInfoStartOffset through AuxInfoStartOffset+AuxInfoTotalSize) into the
// per-sample CENC cache, if it has not already been cached for this run.
// Callers must call this before DecryptConfig on an encrypted run.
func (it *Iterator) EnsureAuxInfoCached(buf []byte) error {
	r, err := it.currentRun()
	if err != nil {
		return err
	}
	if !r.IsEncrypted() || r.AuxInfoTotalSize == 0 {
		return nil
	}
	if !it.cenc.needsCaching(r) {
		return nil
	}
	ivSize := 0
	if r.TrackEncryption != nil {
		ivSize = r.TrackEncryption.DefaultIVSize
	}
	return it.cenc.cache(r, buf, ivSize)
}

// DecryptConfig returns the current sample's decrypt configuration. It
// requires EnsureAuxInfoCached to have been called for the current run.
func (it *Iterator) DecryptConfig() (*DecryptConfig, error) {
	r, _, err := it.currentSample()
	if err != nil {
		return nil, err
	}
	if !r.IsEncrypted() {
		return nil, newStateError("current sample's description is not encrypted")
	}
	return it.cenc.decryptConfig(r, it.sampleIdx)
}
