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

import "encoding/binary"

// Subsample is one (clear, cipher) byte-range pair of a CENC subsample map.
type Subsample struct {
	BytesClear  uint16
	BytesCipher uint32
}

// FrameCencInfo is the decoded senc/saiz/saio payload for a single sample:
// its per-sample IV and, when subsample encryption is in effect, the
// ordered list of clear/cipher byte ranges that make up the sample.
type FrameCencInfo struct {
	IV         []byte
	Subsamples []Subsample
}

// DecryptConfig is the information a caller needs to decrypt one sample:
// the key id it was encrypted under, its IV, and its subsample map (nil
// for fully-encrypted samples with no subsample structure).
type DecryptConfig struct {
	KID        [16]byte
	IV         []byte
	Subsamples []Subsample
}

// cencCache memoizes the per-sample FrameCencInfo for the run currently
// under iteration, since the packed aux-info buffer must be parsed
// sequentially and does not support random access.
type cencCache struct {
	runStartOffset uint64
	entries        []FrameCencInfo
	parsed         bool
}

// needsCaching reports whether r's auxiliary info has not yet been parsed
// into this cache.
func (c *cencCache) needsCaching(r *RunInfo) bool {
	return !c.parsed || c.runStartOffset != r.AuxInfoStartOffset
}

// cache parses buf — the raw bytes read from AuxInfoStartOffset for
// AuxInfoTotalSize bytes — into one FrameCencInfo per sample of r, per the
// §4.5 parsing discipline: the buffer is split into |samples| chunks, one
// per run.AuxInfoSize(i), and each chunk is parsed independently. ivSize is
// the track's default per-sample IV size (0, 8, or 16).
func (c *cencCache) cache(r *RunInfo, buf []byte, ivSize int) error {
	entries := make([]FrameCencInfo, len(r.Samples))
	var off int

	for i := range r.Samples {
		chunkLen := int(r.AuxInfoSize(i))
		if off+chunkLen > len(buf) {
			return newAuxInfoParseError("auxiliary info buffer shorter than declared sample sizes")
		}
		chunk := buf[off : off+chunkLen]
		off += chunkLen

		info, err := parseFrameCencInfo(chunk, ivSize)
		if err != nil {
			return err
		}
		entries[i] = info
	}

	c.entries = entries
	c.runStartOffset = r.AuxInfoStartOffset
	c.parsed = true
	return nil
}

// parseFrameCencInfo parses a single sample's aux-info chunk: the first
// ivSize bytes are the IV; any remaining bytes are a big-endian subsample
// count followed by that many six-byte (2-byte clear, 4-byte cipher)
// records. Trailing or truncated bytes are a parse error.
func parseFrameCencInfo(chunk []byte, ivSize int) (FrameCencInfo, error) {
	var info FrameCencInfo
	var off int

	if ivSize > 0 {
		if off+ivSize > len(chunk) {
			return info, newAuxInfoParseError("truncated IV in auxiliary info chunk")
		}
		info.IV = chunk[off : off+ivSize]
		off += ivSize
	}

	if off == len(chunk) {
		return info, nil
	}

	if off+2 > len(chunk) {
		return info, newAuxInfoParseError("truncated subsample count in auxiliary info chunk")
	}
	count := int(binary.BigEndian.Uint16(chunk[off : off+2]))
	off += 2

	subs := make([]Subsample, 0, count)
	for s := 0; s < count; s++ {
		if off+6 > len(chunk) {
			return info, newAuxInfoParseError("truncated subsample entry in auxiliary info chunk")
		}
		clear := binary.BigEndian.Uint16(chunk[off : off+2])
		cipher := binary.BigEndian.Uint32(chunk[off+2 : off+6])
		off += 6
		subs = append(subs, Subsample{BytesClear: clear, BytesCipher: cipher})
	}
	if off != len(chunk) {
		return info, newAuxInfoParseError("trailing bytes in auxiliary info chunk")
	}
	info.Subsamples = subs
	return info, nil
}

// decryptConfig composes the DecryptConfig for the 0-based sample i of the
// currently-cached run. Per §4.5, a subsample map whose clear+cipher sum
// disagrees with the sample size is a recoverable error: it yields a nil
// config rather than failing the call.
func (c *cencCache) decryptConfig(r *RunInfo, i int) (*DecryptConfig, error) {
	if !c.parsed || i < 0 || i >= len(c.entries) {
		return nil, newStateError("auxiliary info not cached for this sample")
	}
	if r.TrackEncryption == nil {
		return nil, newStructuralError("encrypted run has no track encryption default")
	}
	entry := c.entries[i]

	if len(entry.Subsamples) > 0 {
		var sum uint64
		for _, s := range entry.Subsamples {
			sum += uint64(s.BytesClear) + uint64(s.BytesCipher)
		}
		if sum != uint64(r.Samples[i].Size) {
			return nil, nil
		}
	}

	return &DecryptConfig{
		KID:        r.TrackEncryption.DefaultKID,
		IV:         entry.IV,
		Subsamples: entry.Subsamples,
	}, nil
}
