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

package mp4

import (
	mp4ff "github.com/Eyevinn/mp4ff/mp4"

	"github.com/nagare-media/packager/pkg/media/mp4/trackrun"
)

// ConvertMoovToMovie adapts an already-decoded moov box tree into the
// trackrun package's own Movie representation. trackrun never imports
// mp4ff directly; this is the single seam where the two meet.
func ConvertMoovToMovie(moov *mp4ff.MoovBox) (*trackrun.Movie, error) {
	m := &trackrun.Movie{
		Extends: map[uint32]*trackrun.TrackExtends{},
	}

	if moov.Mvex != nil {
		for _, trex := range moov.Mvex.Trexs {
			m.Extends[trex.TrackID] = &trackrun.TrackExtends{
				TrackID:                       trex.TrackID,
				DefaultSampleDescriptionIndex: trex.DefaultSampleDescriptionIndex,
				DefaultSampleDuration:         trex.DefaultSampleDuration,
				DefaultSampleSize:             trex.DefaultSampleSize,
				DefaultSampleFlags:            trex.DefaultSampleFlags,
			}
		}
	}

	for _, trak := range moov.Traks {
		t, err := convertTrak(trak)
		if err != nil {
			return nil, err
		}
		if t != nil {
			m.Tracks = append(m.Tracks, t)
		}
	}

	return m, nil
}

func convertTrak(trak *mp4ff.TrakBox) (*trackrun.Track, error) {
	if trak.Tkhd == nil || trak.Mdia == nil || trak.Mdia.Mdhd == nil {
		return nil, nil
	}

	t := &trackrun.Track{
		TrackID:   trak.Tkhd.TrackID,
		Timescale: trak.Mdia.Mdhd.Timescale,
		Type:      trackTypeOf(trak),
	}

	if trak.Edts != nil && trak.Edts.Elst != nil {
		for _, e := range trak.Edts.Elst.Entries {
			t.EditList = append(t.EditList, trackrun.ElstEntry{
				SegmentDuration: e.SegmentDuration,
				MediaTime:       e.MediaTime,
			})
		}
	}

	if t.Type != trackrun.AudioTrack && t.Type != trackrun.VideoTrack {
		return t, nil
	}

	stbl := trak.Mdia.Minf.Stbl
	if stbl == nil {
		return nil, ErrNotACMAFHeader
	}

	st, err := convertStbl(stbl)
	if err != nil {
		return nil, err
	}
	t.SampleTable = st
	t.Encryption = trackEncryptionOf(stbl)

	return t, nil
}

// trackEncryptionOf locates the tenc box nested under this track's
// encrypted sample entry (stsd/sinf/schi/tenc), if any, per CENC's
// encv/enca convention.
func trackEncryptionOf(stbl *mp4ff.StblBox) *trackrun.TrackEncryption {
	if stbl.Stsd == nil {
		return nil
	}
	for _, child := range stbl.Stsd.Children {
		var sinf *mp4ff.SinfBox
		switch box := child.(type) {
		case *mp4ff.VisualSampleEntryBox:
			sinf = box.Sinf
		case *mp4ff.AudioSampleEntryBox:
			sinf = box.Sinf
		}
		if sinf == nil || sinf.Schi == nil || sinf.Schi.Tenc == nil {
			continue
		}
		return ConvertTencToEncryption(sinf.Schi.Tenc)
	}
	return nil
}

// trackTypeOf derives a TrackType from the media handler box, the only
// place ISO-BMFF records a track's media kind.
func trackTypeOf(trak *mp4ff.TrakBox) trackrun.TrackType {
	if trak.Mdia == nil || trak.Mdia.Hdlr == nil {
		return trackrun.UnknownTrack
	}
	switch trak.Mdia.Hdlr.HandlerType {
	case "vide":
		return trackrun.VideoTrack
	case "soun":
		return trackrun.AudioTrack
	default:
		return trackrun.UnknownTrack
	}
}

func convertStbl(stbl *mp4ff.StblBox) (*trackrun.SampleTable, error) {
	st := &trackrun.SampleTable{}

	if stbl.Stsd != nil {
		for i, child := range stbl.Stsd.Children {
			desc := trackrun.SampleDescription{
				Index:     i,
				Encrypted: child.Type() == EncvBoxStr || child.Type() == EncaBoxStr,
			}
			st.SampleDescriptions = append(st.SampleDescriptions, desc)
		}
	}

	if stbl.Stts != nil {
		for _, e := range stbl.Stts.Entries {
			st.TimeToSample = append(st.TimeToSample, trackrun.SttsEntry{
				SampleCount: e.SampleCount,
				SampleDelta: e.SampleDelta,
			})
		}
	}

	if stbl.Ctts != nil {
		for _, e := range stbl.Ctts.Entries {
			st.CompositionOffset = append(st.CompositionOffset, trackrun.CttsEntry{
				SampleCount:  e.SampleCount,
				SampleOffset: e.SampleOffset,
			})
		}
	}

	if stbl.Stsc != nil {
		for _, e := range stbl.Stsc.Entries {
			st.SampleToChunk = append(st.SampleToChunk, trackrun.StscEntry{
				FirstChunk:             e.FirstChunk,
				SamplesPerChunk:        e.SamplesPerChunk,
				SampleDescriptionIndex: e.SampleDescriptionID,
			})
		}
	}

	if stbl.Stsz != nil {
		st.SampleSize = trackrun.SampleSizeTable{
			DefaultSize: stbl.Stsz.SampleSize,
			Sizes:       stbl.Stsz.EntrySize,
			SampleCount: stbl.Stsz.SampleNumber,
		}
	}

	if stbl.Stco != nil {
		for _, o := range stbl.Stco.ChunkOffset {
			st.ChunkOffsets = append(st.ChunkOffsets, uint64(o))
		}
	} else if stbl.Co64 != nil {
		st.ChunkOffsets = append(st.ChunkOffsets, stbl.Co64.ChunkOffset...)
	}

	if stbl.Stss != nil {
		st.HasSyncSampleBox = true
		st.SyncSamples = stbl.Stss.SampleNumber
	}

	return st, nil
}

// ConvertMoofToFragment adapts an already-decoded moof box tree into the
// trackrun package's own MovieFragment representation. Track-extends
// defaults are not applied here; they live on the Movie and are resolved
// by the run builder.
func ConvertMoofToFragment(moof *mp4ff.MoofBox) (*trackrun.MovieFragment, error) {
	frag := &trackrun.MovieFragment{}

	for _, traf := range moof.Trafs {
		tf, err := convertTraf(traf)
		if err != nil {
			return nil, err
		}
		frag.TrackFragments = append(frag.TrackFragments, tf)
	}

	return frag, nil
}

func convertTraf(traf *mp4ff.TrafBox) (*trackrun.TrackFragment, error) {
	if traf.Tfhd == nil {
		return nil, ErrNotACMAFChunk
	}

	tf := &trackrun.TrackFragment{
		TrackID:                traf.Tfhd.TrackID,
		SampleDescriptionIndex: traf.Tfhd.SampleDescriptionID,
	}

	if traf.Tfhd.HasDefaultSampleDuration() {
		tf.DefaultSampleDuration = traf.Tfhd.DefaultSampleDuration
		tf.DefaultSampleDurationPresent = true
	}
	if traf.Tfhd.HasDefaultSampleSize() {
		tf.DefaultSampleSize = traf.Tfhd.DefaultSampleSize
		tf.DefaultSampleSizePresent = true
	}
	if traf.Tfhd.HasDefaultSampleFlags() {
		tf.DefaultSampleFlags = traf.Tfhd.DefaultSampleFlags
		tf.DefaultSampleFlagsPresent = true
	}

	if traf.Tfdt != nil {
		tf.BaseMediaDecodeTime = int64(traf.Tfdt.BaseMediaDecodeTime())
	}

	if traf.Trun != nil {
		tf.Runs = append(tf.Runs, convertTrun(traf.Trun))
	}

	if traf.Saio != nil {
		for _, o := range traf.Saio.Offset {
			tf.AuxInfoOffsets = append(tf.AuxInfoOffsets, o)
		}
	}
	if traf.Saiz != nil {
		tf.AuxInfoDefaultSize = uint32(traf.Saiz.DefaultSampleInfoSize)
		tf.AuxInfoSampleCount = traf.Saiz.SampleCount
		if tf.AuxInfoDefaultSize == 0 {
			for _, s := range traf.Saiz.SampleInfoSize {
				tf.AuxInfoSizes = append(tf.AuxInfoSizes, uint32(s))
			}
		}
	}

	return tf, nil
}

func convertTrun(trun *mp4ff.TrunBox) *trackrun.TrackRun {
	r := &trackrun.TrackRun{
		DataOffset: int64(trun.DataOffset),
	}
	for _, s := range trun.Samples {
		e := trackrun.TrunSampleEntry{}
		if trun.HasSampleDuration() {
			e.Duration = s.Dur
			e.DurationPresent = true
		}
		if trun.HasSampleSize() {
			e.Size = s.Size
			e.SizePresent = true
		}
		if trun.HasSampleFlags() {
			e.Flags = s.Flags
			e.FlagsPresent = true
		}
		if trun.HasSampleCompositionTimeOffset() {
			e.CtsOffset = s.CompositionTimeOffset
			e.CtsOffsetPresent = true
		}
		r.Samples = append(r.Samples, e)
	}
	return r
}

// ConvertTencToEncryption adapts a track's default tenc box, when present,
// into the trackrun package's TrackEncryption default.
func ConvertTencToEncryption(tenc *mp4ff.TencBox) *trackrun.TrackEncryption {
	if tenc == nil {
		return nil
	}
	enc := &trackrun.TrackEncryption{
		DefaultIsProtected: tenc.DefaultIsProtected != 0,
		DefaultIVSize:      int(tenc.DefaultPerSampleIVSize),
	}
	copy(enc.DefaultKID[:], tenc.DefaultKID[:])
	return enc
}
