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

// maxClearOffset computes, per §4.6, the furthest byte offset a caller may
// safely discard data before without losing something still needed — the
// smallest of:
//
//   - the start of the current sample
//   - the start of this run's auxiliary info, if the run is encrypted,
//     carries aux info, and that aux info has not yet been cached
//   - the start of the next run in traversal order
//   - the start of the next run's auxiliary info, if it has any
//
// There is no ordering guard between the current sample's offset and its
// run's auxiliary-info offset: in well-structured encrypted media the aux
// block precedes the mdat payload, so it is routinely the smaller of the
// two, and omitting it whenever it happens to sit before the sample would
// signal it is safe to discard bytes that have not been read yet.
//
// runs must already be in the order produced by sortRuns. runIdx/sampleIdx
// identify the current position. curRunAuxNeedsCaching reports whether the
// current run's auxiliary info is still required (i.e. not yet read and
// cached); when sampleIdx is the last sample of the last run and that run
// needs no caching, the current sample's own start is returned.
func maxClearOffset(runs []*RunInfo, runIdx, sampleIdx int, curRunAuxNeedsCaching bool) uint64 {
	r := runs[runIdx]
	cur := r.offsetAt(sampleIdx)

	limits := []uint64{cur}

	if r.IsEncrypted() && r.AuxInfoTotalSize > 0 && curRunAuxNeedsCaching {
		limits = append(limits, r.AuxInfoStartOffset)
	}

	if runIdx+1 < len(runs) {
		next := runs[runIdx+1]
		limits = append(limits, next.SampleStartOffset)
		if next.AuxInfoTotalSize > 0 {
			limits = append(limits, next.AuxInfoStartOffset)
		}
	}

	min := limits[0]
	for _, l := range limits[1:] {
		if l < min {
			min = l
		}
	}
	return min
}
