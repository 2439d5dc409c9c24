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

// BuildRunsFromFragment walks every track-fragment of a MovieFragment and
// returns the unordered sequence of RunInfo records described by §4.4.
func BuildRunsFromFragment(m *Movie, frag *MovieFragment) ([]*RunInfo, error) {
	var runs []*RunInfo
	for _, traf := range frag.TrackFragments {
		trafRuns, err := buildRunsForFragment(m, traf)
		if err != nil {
			return nil, err
		}
		runs = append(runs, trafRuns...)
	}
	return runs, nil
}

func buildRunsForFragment(m *Movie, traf *TrackFragment) ([]*RunInfo, error) {
	track := m.TrackByID(traf.TrackID)
	if track == nil {
		return nil, newStructuralErrorf("no track for track fragment trackID=%d", traf.TrackID)
	}
	trex, ok := m.Extends[traf.TrackID]
	if !ok || trex == nil {
		return nil, newStructuralErrorf("no track-extends default for trackID=%d", traf.TrackID)
	}

	descIdx := int(traf.SampleDescriptionIndex) - 1 // one-indexed in the box
	if traf.SampleDescriptionIndex == 0 {
		descIdx = int(trex.DefaultSampleDescriptionIndex) - 1
	}
	st := track.SampleTable
	if st == nil || len(st.SampleDescriptions) == 0 {
		return nil, newStructuralError("track has no sample descriptions")
	}
	if descIdx < 0 || descIdx >= len(st.SampleDescriptions) {
		descIdx = 0
	}
	desc := &st.SampleDescriptions[descIdx]

	runs := make([]*RunInfo, 0, len(traf.Runs))
	runStartDTS := traf.BaseMediaDecodeTime
	var sampleCountSum uint32

	for j, trun := range traf.Runs {
		run := &RunInfo{
			TrackID:           traf.TrackID,
			TrackType:         track.Type,
			Timescale:         track.Timescale,
			StartDTS:          runStartDTS,
			SampleStartOffset: uint64(trun.DataOffset),
			Description:       desc,
			TrackEncryption:   track.Encryption,
		}

		sc := trun.SampleCount()
		if j < len(traf.AuxInfoOffsets) {
			covered := sampleCountSum + sc
			if traf.AuxInfoSampleCount < covered {
				return nil, newStructuralError("saiz coverage short of saio entry")
			}
			run.AuxInfoStartOffset = uint64(traf.AuxInfoOffsets[j])
			run.AuxInfoDefaultSize = traf.AuxInfoDefaultSize
			if traf.AuxInfoDefaultSize == 0 {
				if covered <= uint32(len(traf.AuxInfoSizes)) {
					run.AuxInfoSizes = traf.AuxInfoSizes[sampleCountSum:covered]
				}
				var total uint64
				for _, s := range run.AuxInfoSizes {
					total += uint64(s)
				}
				run.AuxInfoTotalSize = total
			} else {
				run.AuxInfoTotalSize = uint64(traf.AuxInfoDefaultSize) * uint64(sc)
			}
		}

		run.Samples = make([]SampleInfo, 0, sc)
		for _, e := range trun.Samples {
			duration := resolveDuration(e, traf, trex)
			size := resolveSize(e, traf, trex)
			flags := resolveFlags(e, traf, trex)
			cts := resolveCtsOffset(e)

			run.Samples = append(run.Samples, SampleInfo{
				Size:       size,
				Duration:   duration,
				CtsOffset:  cts,
				IsKeyframe: isKeyframe(flags),
			})
			runStartDTS += int64(duration)
		}

		runs = append(runs, run)
		sampleCountSum += sc
	}

	return runs, nil
}
