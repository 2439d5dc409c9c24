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

func encryptedRunDescription() *SampleDescription {
	return &SampleDescription{Encrypted: true}
}

// Seed test 5: max_clear_offset with current sample at offset 5000 and next
// run starting at 4500 returns 4500 — the inter-run minimum is admitted even
// though it precedes the current run's own offset.
func TestMaxClearOffset_InterRunMinimum(t *testing.T) {
	runs := []*RunInfo{
		{SampleStartOffset: 5000, Samples: []SampleInfo{{Size: 200}, {Size: 200}}},
		{SampleStartOffset: 4500, Samples: []SampleInfo{{Size: 100}}},
	}
	got := maxClearOffset(runs, 0, 0, false)
	assert.EqualValues(t, 4500, got)
}

func TestMaxClearOffset_NoNextRunUsesCurrentSampleStart(t *testing.T) {
	runs := []*RunInfo{
		{SampleStartOffset: 1000, Samples: []SampleInfo{{Size: 100}, {Size: 50}}},
	}
	// at sample 0, the current sample's own start is the tighter bound —
	// its data has not been read yet, so nothing up to offset 1000 is
	// still needed
	assert.EqualValues(t, 1000, maxClearOffset(runs, 0, 0, false))
	// at the final sample, the same holds: its start bounds the result
	assert.EqualValues(t, 1100, maxClearOffset(runs, 0, 1, false))
}

func TestMaxClearOffset_AuxInfoOfNextRunIsAdmitted(t *testing.T) {
	runs := []*RunInfo{
		{SampleStartOffset: 1000, Samples: []SampleInfo{{Size: 100}}},
		{SampleStartOffset: 5000, AuxInfoStartOffset: 900, AuxInfoTotalSize: 48, Samples: []SampleInfo{{Size: 100}}},
	}
	// the next run's aux block at 900 precedes both the current sample
	// (1000) and the next run's samples (5000), so it is the bound
	assert.EqualValues(t, 900, maxClearOffset(runs, 0, 0, false))
}

// TestMaxClearOffset_UncachedAuxInfoPrecedingSampleStillPins covers the
// realistic CMAF ordering §4.4 calls out: the auxiliary-info block sits
// before the mdat payload it describes. With the aux info still uncached,
// its start — not the sample's — must be the bound: those bytes have not
// been read yet and discarding up to the sample offset would lose them.
func TestMaxClearOffset_UncachedAuxInfoPrecedingSampleStillPins(t *testing.T) {
	runs := []*RunInfo{
		{SampleStartOffset: 5000, AuxInfoStartOffset: 4000, AuxInfoTotalSize: 48,
			Description: encryptedRunDescription(), Samples: []SampleInfo{{Size: 100}}},
	}
	assert.EqualValues(t, 4000, maxClearOffset(runs, 0, 0, true))
}

// TestMaxClearOffset_CachedAuxInfoPrecedingSampleNoLongerPins mirrors the
// previous case once the aux info has already been cached: those bytes are
// no longer needed, so the bound relaxes back to the sample's own start.
func TestMaxClearOffset_CachedAuxInfoPrecedingSampleNoLongerPins(t *testing.T) {
	runs := []*RunInfo{
		{SampleStartOffset: 5000, AuxInfoStartOffset: 4000, AuxInfoTotalSize: 48,
			Description: encryptedRunDescription(), Samples: []SampleInfo{{Size: 100}}},
	}
	assert.EqualValues(t, 5000, maxClearOffset(runs, 0, 0, false))
}

func TestMaxClearOffset_TrailingCurrentRunAuxInfoDoesNotBoundResult(t *testing.T) {
	runs := []*RunInfo{
		{SampleStartOffset: 1000, AuxInfoStartOffset: 1200, AuxInfoTotalSize: 48,
			Description: encryptedRunDescription(), Samples: []SampleInfo{{Size: 100}}},
	}
	// the current sample's own start (1000) is the tighter bound — the
	// run's aux block at 1200 trails it and there is no next run to pull
	// the bound down further.
	assert.EqualValues(t, 1000, maxClearOffset(runs, 0, 0, true))
}
