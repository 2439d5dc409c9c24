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
	"go.uber.org/zap"
)

// BuildRunsFromMovie walks every audio/video track of a non-fragmented
// Movie and returns the unordered sequence of RunInfo records described
// by §4.3. log may be nil; when present it receives the edit-list
// diagnostics called for by §4.3 step 1.
func BuildRunsFromMovie(m *Movie, log *zap.SugaredLogger) ([]*RunInfo, error) {
	var runs []*RunInfo
	for _, t := range m.Tracks {
		if t.Type != AudioTrack && t.Type != VideoTrack {
			continue
		}
		logEditList(t, log)

		trackRuns, err := buildRunsForTrack(t)
		if err != nil {
			return nil, err
		}
		runs = append(runs, trackRuns...)
	}
	return runs, nil
}

// logEditList implements §4.3 step 1: multi-entry edits get a warning
// diagnostic, single edits log the media time. Edit-list semantics
// (actually shifting timestamps) remain out of scope.
func logEditList(t *Track, log *zap.SugaredLogger) {
	if log == nil || len(t.EditList) == 0 {
		return
	}
	if len(t.EditList) > 1 {
		log.Warnw("ignoring multi-entry edit list", "trackID", t.TrackID, "entries", len(t.EditList))
		return
	}
	log.Infow("ignoring single-entry edit list", "trackID", t.TrackID, "mediaTime", t.EditList[0].MediaTime)
}

func buildRunsForTrack(t *Track) ([]*RunInfo, error) {
	st := t.SampleTable
	if st == nil {
		return nil, newStructuralError("track has no sample table")
	}

	declaredCount := st.SampleSize.SampleCount
	if declaredCount == 0 {
		return nil, nil
	}

	dtCursor, err := newDecodingTimeCursor(st.TimeToSample)
	if err != nil {
		return nil, err
	}
	ctsCursor, err := newCompositionOffsetCursor(st.CompositionOffset)
	if err != nil {
		return nil, err
	}

	numChunks := uint32(len(st.ChunkOffsets))
	chunkCursor, err := newChunkInfoCursor(st.SampleToChunk, numChunks)
	if err != nil {
		return nil, err
	}
	syncCursor := newSyncSampleCursor(st.SyncSamples, st.HasSyncSampleBox)

	if dtCursor.numSamples() != declaredCount {
		return nil, newStructuralErrorf("stts sample count %d disagrees with stsz count %d", dtCursor.numSamples(), declaredCount)
	}
	if st.CompositionOffset != nil && ctsCursor.numSamples() != declaredCount {
		return nil, newStructuralErrorf("ctts sample count %d disagrees with stsz count %d", ctsCursor.numSamples(), declaredCount)
	}
	if numChunks > 0 && uint32(len(st.ChunkOffsets)) < chunkCursor.lastFirstChunk() {
		return nil, newStructuralError("chunk offset table shorter than stsc's last first_chunk")
	}

	runs := make([]*RunInfo, 0, numChunks)
	var runningDTS int64
	var sampleIdx uint32

	for c := uint32(0); c < numChunks; c++ {
		if !chunkCursor.isValid() || chunkCursor.currentChunk() != c+1 {
			return nil, newStructuralErrorf("chunk cursor out of sync at chunk %d", c+1)
		}

		descIdx := int(chunkCursor.sampleDescriptionIndex()) - 1 // file is one-indexed
		if descIdx < 0 || descIdx >= len(st.SampleDescriptions) {
			descIdx = 0
		}
		if len(st.SampleDescriptions) == 0 {
			return nil, newStructuralError("track has no sample descriptions")
		}
		desc := &st.SampleDescriptions[descIdx]
		if desc.Encrypted {
			return nil, newStructuralError("non-fragmented track references an encrypted sample description")
		}

		run := &RunInfo{
			TrackID:           t.TrackID,
			TrackType:         t.Type,
			Timescale:         t.Timescale,
			StartDTS:          runningDTS,
			SampleStartOffset: st.ChunkOffsets[c],
			Description:       desc,
		}

		n := chunkCursor.samplesPerChunk()
		run.Samples = make([]SampleInfo, 0, n)
		for s := uint32(0); s < n; s++ {
			last := sampleIdx == declaredCount-1

			size := st.SampleSize.Size(sampleIdx)
			duration := dtCursor.current()
			var cts int32
			if st.CompositionOffset != nil {
				cts = ctsCursor.current()
			}
			keyframe := syncCursor.isSyncSample()

			run.Samples = append(run.Samples, SampleInfo{
				Size:       size,
				Duration:   duration,
				CtsOffset:  cts,
				IsKeyframe: keyframe,
			})

			dtOK := dtCursor.advance()
			var ctsOK bool
			if st.CompositionOffset != nil {
				ctsOK = ctsCursor.advance()
			} else {
				ctsOK = true
			}
			syncCursor.advanceSample()

			if last {
				if dtOK {
					return nil, newStructuralError("decoding-time cursor did not exhaust at final sample")
				}
				if st.CompositionOffset != nil && ctsOK {
					return nil, newStructuralError("composition-offset cursor did not exhaust at final sample")
				}
			}

			sampleIdx++
			runningDTS += int64(duration)
		}

		runs = append(runs, run)
		chunkCursor.advanceChunk()
	}

	return runs, nil
}
