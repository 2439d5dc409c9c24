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

// Package trackrun walks the parsed box hierarchy of an ISO-BMFF
// presentation and produces a flat, offset-ordered stream of sample
// descriptors suitable for packaging into encrypted adaptive-streaming
// segments.
//
// The package never parses box bytes itself: a Movie (non-fragmented) or
// a sequence of MovieFragment values (fragmented) is handed in already
// decoded by a collaborator such as pkg/media/mp4.Convert*. Everything
// downstream of that boundary — reconciling the sparsely encoded sample
// tables, resolving fragmented default values, ordering runs by offset,
// and caching CENC auxiliary info — is this package's job.
package trackrun

// TrackType identifies the media kind of a track. Tracks of any other
// kind are skipped by the run builders without error.
type TrackType uint8

const (
	UnknownTrack TrackType = iota
	AudioTrack
	VideoTrack
)

// SampleDescription is a borrowed reference to a track's sample entry
// (e.g. avc1/hvc1 for video, mp4a for audio) selected by a chunk or
// track-fragment's sample-description index. Exactly one of Audio or
// Video is meaningful, matching the owning RunInfo's TrackType.
type SampleDescription struct {
	Index      int // zero-based position in Track.SampleDescriptions
	Encrypted  bool
	Audio      *AudioSampleEntry
	Video      *VideoSampleEntry
}

// AudioSampleEntry carries the fields a muxer needs to describe an audio
// track; it is a borrowed, read-only view into the Movie tree.
type AudioSampleEntry struct {
	ChannelCount uint16
	SampleSize   uint16
	SampleRate   uint32
	Codec        string
}

// VideoSampleEntry carries the fields a muxer needs to describe a video
// track; it is a borrowed, read-only view into the Movie tree.
type VideoSampleEntry struct {
	Width  uint16
	Height uint16
	Codec  string
}

// TrackEncryption holds a track's default Common Encryption parameters,
// sourced from a tenc box.
type TrackEncryption struct {
	DefaultIsProtected bool
	DefaultIVSize      int // 0, 8, or 16
	DefaultKID         [16]byte
}

// SttsEntry is a decoding-time-to-sample table entry: SampleCount
// consecutive samples each have duration SampleDelta.
type SttsEntry struct {
	SampleCount uint32
	SampleDelta uint32
}

// CttsEntry is a composition-offset-to-sample table entry: SampleCount
// consecutive samples each have composition offset SampleOffset.
type CttsEntry struct {
	SampleCount  uint32
	SampleOffset int32
}

// StscEntry is a sample-to-chunk table entry: starting at chunk
// FirstChunk (1-based), every chunk up to the next entry's FirstChunk
// holds SamplesPerChunk samples described by sample description
// SampleDescriptionIndex (1-based).
type StscEntry struct {
	FirstChunk              uint32
	SamplesPerChunk         uint32
	SampleDescriptionIndex  uint32
}

// SampleSizeTable models an stsz/stz2 box: either every sample shares
// DefaultSize (when non-zero), or Sizes holds one entry per sample.
type SampleSizeTable struct {
	DefaultSize uint32
	Sizes       []uint32 // used when DefaultSize == 0
	SampleCount uint32
}

// Size returns the size of the 0-based sample index i.
func (t *SampleSizeTable) Size(i uint32) uint32 {
	if t.DefaultSize != 0 {
		return t.DefaultSize
	}
	if int(i) >= len(t.Sizes) {
		return 0
	}
	return t.Sizes[i]
}

// ElstEntry is a single edit-list entry (moov/trak/edts/elst).
type ElstEntry struct {
	SegmentDuration uint64
	MediaTime       int64
}

// SampleTable is a track's stbl: the five sparsely-encoded tables the
// Run Builder reconciles, plus the sample-description list they index
// into.
type SampleTable struct {
	SampleDescriptions []SampleDescription
	TimeToSample       []SttsEntry
	CompositionOffset   []CttsEntry // nil when ctts is absent
	SampleToChunk       []StscEntry
	SampleSize          SampleSizeTable
	ChunkOffsets        []uint64
	SyncSamples         []uint32 // 1-based, ascending; read only when HasSyncSampleBox is set (without an stss box every sample is sync)
	HasSyncSampleBox    bool
}

// Track is a moov/trak, reduced to what the Run Builder needs.
type Track struct {
	TrackID     uint32
	Timescale   uint32
	Type        TrackType
	SampleTable *SampleTable
	EditList    []ElstEntry

	// Encryption holds the track's default CENC parameters, sourced from
	// the tenc box nested under its encrypted sample entry (if any). nil
	// for an unencrypted track.
	Encryption *TrackEncryption
}

// TrackExtends is a moov/mvex/trex: the fragmented-mode default values
// for a track that has none of its own at the tfhd/trun level.
type TrackExtends struct {
	TrackID                       uint32
	DefaultSampleDescriptionIndex uint32
	DefaultSampleDuration         uint32
	DefaultSampleSize             uint32
	DefaultSampleFlags            uint32
}

// Movie is a non-fragmented or fragmented presentation's moov, reduced to
// what the Run Builder needs: its tracks and, for fragmented mode, the
// movie-extends defaults keyed by track ID.
type Movie struct {
	Tracks  []*Track
	Extends map[uint32]*TrackExtends
}

// TrackByID returns the track with the given ID, or nil.
func (m *Movie) TrackByID(id uint32) *Track {
	for _, t := range m.Tracks {
		if t.TrackID == id {
			return t
		}
	}
	return nil
}

// TrunSampleEntry is one sample's explicit per-sample fields in a
// track-fragment run. A zero Present* flag means the field was absent
// from the trun and must fall back through the Sample Default Resolver.
type TrunSampleEntry struct {
	Duration         uint32
	DurationPresent  bool
	Size             uint32
	SizePresent      bool
	Flags            uint32
	FlagsPresent     bool
	CtsOffset        int32
	CtsOffsetPresent bool
}

// TrackRun is one trun box.
type TrackRun struct {
	DataOffset int64
	Samples    []TrunSampleEntry
}

// SampleCount returns the number of samples this run declares.
func (r *TrackRun) SampleCount() uint32 { return uint32(len(r.Samples)) }

// TrackFragment is one moof/traf.
type TrackFragment struct {
	TrackID uint32

	SampleDescriptionIndex        uint32 // 0 means "not present in tfhd"
	DefaultSampleDuration         uint32
	DefaultSampleDurationPresent  bool
	DefaultSampleSize             uint32
	DefaultSampleSizePresent      bool
	DefaultSampleFlags            uint32
	DefaultSampleFlagsPresent     bool

	BaseMediaDecodeTime int64

	Runs []*TrackRun

	// Auxiliary info (CENC), as recorded by saio/saiz for this traf.
	// AuxInfoOffsets holds one absolute byte offset per run that has an
	// saio entry; a run index with no corresponding entry carries no
	// aux info. AuxInfoDefaultSize mirrors saiz's default_sample_info_size;
	// when zero, AuxInfoSizes holds the explicit per-sample sizes in
	// traf-wide sample order. AuxInfoSampleCount mirrors saiz's own
	// sample_count field and is populated regardless of
	// AuxInfoDefaultSize — it is the authority for saiz/saio coverage
	// checks, since AuxInfoSizes is only ever populated in the
	// default-size-zero case.
	AuxInfoOffsets     []int64
	AuxInfoDefaultSize uint32
	AuxInfoSizes       []uint32
	AuxInfoSampleCount uint32
}

// MovieFragment is one moof, reduced to what the Run Builder needs.
type MovieFragment struct {
	TrackFragments []*TrackFragment
}
