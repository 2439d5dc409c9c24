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

package event

import (
	"github.com/nagare-media/packager/pkg/media"
	"github.com/nagare-media/packager/pkg/media/mp4"
	"github.com/nagare-media/packager/pkg/volume"
)

// Type identifies the lifecycle stage an Event reports.
type Type string

const (
	StreamStartEvent Type = "StreamStart"
	StreamStopEvent  Type = "StreamStop"

	SwitchingSetStartEvent Type = "SwitchingSetStart"
	SwitchingSetStopEvent  Type = "SwitchingSetStop"

	TrackStartEvent Type = "TrackStart"
	TrackStopEvent  Type = "TrackStop"

	InitSegmentStartEvent     Type = "InitSegmentStart"
	InitSegmentCommittedEvent Type = "InitSegmentCommitted"
	InitSegmentAbortedEvent   Type = "InitSegmentAborted"

	FragmentStartEvent     Type = "FragmentStart"
	FragmentCommittedEvent Type = "FragmentCommitted"
	FragmentAbortedEvent   Type = "FragmentAborted"

	FileStartEvent     Type = "FileStart"
	FileCommittedEvent Type = "FileCommitted"
	FileAbortedEvent   Type = "FileAborted"
	FileDeletedEvent   Type = "FileDeleted"
)

// Event is anything publishable on a Stream. Concrete event types carry
// their own Type field; this method exists so a consumer can branch on
// kind without a type switch when it only needs the lifecycle stage.
type Event interface {
	EventType() Type
}

// StreamEvent reports a presentation's lifecycle.
type StreamEvent struct {
	Type   Type
	Stream *media.Presentation
}

func NewStreamEvent(t Type, s *media.Presentation) *StreamEvent {
	return &StreamEvent{Type: t, Stream: s}
}

func (e *StreamEvent) EventType() Type { return e.Type }

// SwitchingSetEvent reports a switching set's lifecycle.
type SwitchingSetEvent struct {
	Type         Type
	SwitchingSet *media.SwitchingSet
}

func NewSwitchingSetEvent(t Type, set *media.SwitchingSet) *SwitchingSetEvent {
	return &SwitchingSetEvent{Type: t, SwitchingSet: set}
}

func (e *SwitchingSetEvent) EventType() Type { return e.Type }

// TrackEvent reports a track's lifecycle.
type TrackEvent struct {
	Type  Type
	Track *media.Track
}

func NewTrackEvent(t Type, track *media.Track) *TrackEvent {
	return &TrackEvent{Type: t, Track: track}
}

func (e *TrackEvent) EventType() Type { return e.Type }

// InitSegmentEvent reports the ingest of a track's CMAF header.
type InitSegmentEvent struct {
	Type  Type
	File  volume.File
	Track *media.Track
}

func NewInitSegmentEvent(t Type, file volume.File, track *media.Track) *InitSegmentEvent {
	return &InitSegmentEvent{Type: t, File: file, Track: track}
}

func (e *InitSegmentEvent) EventType() Type { return e.Type }

// FragmentEvent reports the ingest of one CMAF fragment.
type FragmentEvent struct {
	Type     Type
	File     volume.File
	Track    *media.Track
	Fragment *mp4.Fragment
}

func NewFragmentEvent(t Type, file volume.File, track *media.Track, frag *mp4.Fragment) *FragmentEvent {
	return &FragmentEvent{Type: t, File: file, Track: track, Fragment: frag}
}

func (e *FragmentEvent) EventType() Type { return e.Type }

// FileEvent reports the upload lifecycle of a plain (non-CMAF) manifest or
// segment file, as ingested by the DASH/HLS push-based ingest app.
type FileEvent struct {
	Type Type
	File volume.File
}

func NewFileEvent(t Type, file volume.File) *FileEvent {
	return &FileEvent{Type: t, File: file}
}

func (e *FileEvent) EventType() Type { return e.Type }
