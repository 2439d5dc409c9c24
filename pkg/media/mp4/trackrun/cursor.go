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

// This file implements the four compressed-table cursors: forward-only
// walkers over the run-length-encoded stts/ctts/stsc/stss tables. Each
// cursor decrements the residual count of its current entry on advance,
// stepping to the next entry once that count is exhausted. They are not
// safe for concurrent use and are consumed linearly, matching the tables
// they walk: read-only, decoded once per run build.

// decodingTimeCursor walks an stts table, yielding each sample's delta.
type decodingTimeCursor struct {
	entries []SttsEntry
	idx     int
	left    uint32 // samples remaining in entries[idx]
	total   uint32 // samples already emitted
	valid   bool
}

func newDecodingTimeCursor(entries []SttsEntry) (*decodingTimeCursor, error) {
	for _, e := range entries {
		if e.SampleCount == 0 {
			return nil, newStructuralError("stts entry with zero sample count")
		}
	}
	c := &decodingTimeCursor{entries: entries}
	if len(entries) > 0 {
		c.left = entries[0].SampleCount
		c.valid = true
	}
	return c, nil
}

func (c *decodingTimeCursor) isValid() bool { return c.valid }

// current returns the delta for the current sample.
func (c *decodingTimeCursor) current() uint32 {
	if !c.valid {
		return 0
	}
	return c.entries[c.idx].SampleDelta
}

// advance moves to the next sample. It returns false once the table is
// exhausted.
func (c *decodingTimeCursor) advance() bool {
	if !c.valid {
		return false
	}
	c.total++
	c.left--
	if c.left == 0 {
		c.idx++
		if c.idx >= len(c.entries) {
			c.valid = false
			return false
		}
		c.left = c.entries[c.idx].SampleCount
	}
	return true
}

func (c *decodingTimeCursor) numSamples() uint32 {
	var n uint32
	for _, e := range c.entries {
		n += e.SampleCount
	}
	return n
}

// compositionOffsetCursor walks an (optional) ctts table.
type compositionOffsetCursor struct {
	entries []CttsEntry
	idx     int
	left    uint32
	valid   bool
	present bool
}

func newCompositionOffsetCursor(entries []CttsEntry) (*compositionOffsetCursor, error) {
	for _, e := range entries {
		if e.SampleCount == 0 {
			return nil, newStructuralError("ctts entry with zero sample count")
		}
	}
	c := &compositionOffsetCursor{entries: entries, present: entries != nil}
	if len(entries) > 0 {
		c.left = entries[0].SampleCount
		c.valid = true
	}
	return c, nil
}

func (c *compositionOffsetCursor) isValid() bool { return c.valid }

func (c *compositionOffsetCursor) current() int32 {
	if !c.valid {
		return 0
	}
	return c.entries[c.idx].SampleOffset
}

func (c *compositionOffsetCursor) advance() bool {
	if !c.valid {
		return false
	}
	c.left--
	if c.left == 0 {
		c.idx++
		if c.idx >= len(c.entries) {
			c.valid = false
			return false
		}
		c.left = c.entries[c.idx].SampleCount
	}
	return true
}

func (c *compositionOffsetCursor) numSamples() uint32 {
	var n uint32
	for _, e := range c.entries {
		n += e.SampleCount
	}
	return n
}

// chunkInfoCursor walks an stsc table, tracking both the current chunk
// (1-based) and the current sample within that chunk.
type chunkInfoCursor struct {
	entries      []StscEntry
	entryIdx     int // index into entries of the entry covering chunk
	chunk        uint32
	sampleInChunk uint32 // 0-based position of current sample within chunk
	numChunks    uint32
	valid        bool
}

func newChunkInfoCursor(entries []StscEntry, numChunks uint32) (*chunkInfoCursor, error) {
	if len(entries) == 0 {
		if numChunks == 0 {
			return &chunkInfoCursor{}, nil
		}
		return nil, newStructuralError("stsc table empty but chunks declared")
	}
	for i, e := range entries {
		if i > 0 && entries[i-1].FirstChunk >= e.FirstChunk {
			return nil, newStructuralError("stsc entries not strictly increasing by first_chunk")
		}
	}
	c := &chunkInfoCursor{entries: entries, chunk: 1, numChunks: numChunks, valid: numChunks > 0}
	return c, nil
}

func (c *chunkInfoCursor) isValid() bool { return c.valid }

// currentChunk returns the current 1-based chunk index.
func (c *chunkInfoCursor) currentChunk() uint32 { return c.chunk }

// entryFor returns the stsc entry governing chunk n, by scanning for the
// last entry whose FirstChunk <= n.
func (c *chunkInfoCursor) entryFor(n uint32) StscEntry {
	e := c.entries[0]
	for _, cand := range c.entries {
		if cand.FirstChunk > n {
			break
		}
		e = cand
	}
	return e
}

func (c *chunkInfoCursor) samplesPerChunk() uint32 {
	return c.entryFor(c.chunk).SamplesPerChunk
}

func (c *chunkInfoCursor) sampleDescriptionIndex() uint32 {
	return c.entryFor(c.chunk).SampleDescriptionIndex
}

// advanceChunk moves to the next chunk, resetting the in-chunk sample
// position. Returns false once all declared chunks have been visited.
func (c *chunkInfoCursor) advanceChunk() bool {
	if !c.valid {
		return false
	}
	c.chunk++
	c.sampleInChunk = 0
	if c.chunk > c.numChunks {
		c.valid = false
		return false
	}
	return true
}

// advanceSample moves to the next sample, transparently stepping to the
// next chunk when the current chunk's sample count is exhausted.
func (c *chunkInfoCursor) advanceSample() bool {
	if !c.valid {
		return false
	}
	c.sampleInChunk++
	if c.sampleInChunk >= c.samplesPerChunk() {
		return c.advanceChunk()
	}
	return true
}

// numSamples computes the inclusive total number of samples across
// chunks [first, last] (1-based, inclusive), for cross-validation.
func (c *chunkInfoCursor) numSamples(first, last uint32) uint32 {
	var total uint32
	for n := first; n <= last; n++ {
		total += c.entryFor(n).SamplesPerChunk
	}
	return total
}

func (c *chunkInfoCursor) lastFirstChunk() uint32 {
	if len(c.entries) == 0 {
		return 0
	}
	return c.entries[len(c.entries)-1].FirstChunk
}

// syncSampleCursor walks an (optional) stss table. When the table is
// absent, every sample is reported as a sync sample.
type syncSampleCursor struct {
	syncList   []uint32 // 1-based, ascending
	listIdx    int
	sampleNr   uint32 // 1-based current sample index
	hasTable   bool
}

func newSyncSampleCursor(syncList []uint32, hasTable bool) *syncSampleCursor {
	return &syncSampleCursor{syncList: syncList, hasTable: hasTable, sampleNr: 1}
}

func (c *syncSampleCursor) isSyncSample() bool {
	if !c.hasTable {
		return true
	}
	return c.listIdx < len(c.syncList) && c.syncList[c.listIdx] == c.sampleNr
}

// advanceSample increments the current sample index and, when the
// current sample was a sync sample, advances past it in the sync list.
func (c *syncSampleCursor) advanceSample() bool {
	if c.hasTable && c.listIdx < len(c.syncList) && c.syncList[c.listIdx] == c.sampleNr {
		c.listIdx++
	}
	c.sampleNr++
	return true
}
