package media

import (
	"github.com/google/uuid"
)

// Stream groups tracks handed out by a single capture request. Streams only
// reference tracks; several streams may wrap the same track.
type Stream struct {
	id     string
	tracks []Track
}

// NewStream wraps the given tracks in a new stream with a fresh identifier.
func NewStream(tracks ...Track) *Stream {
	return &Stream{
		id:     uuid.NewString(),
		tracks: append([]Track(nil), tracks...),
	}
}

func (s *Stream) ID() string { return s.id }

// Tracks returns all tracks in insertion order.
func (s *Stream) Tracks() []Track {
	return append([]Track(nil), s.tracks...)
}

func (s *Stream) AudioTracks() []Track {
	return s.byKind(TrackAudio)
}

func (s *Stream) VideoTracks() []Track {
	return s.byKind(TrackVideo)
}

// Active reports whether any track is still live.
func (s *Stream) Active() bool {
	for _, t := range s.tracks {
		if t.ReadyState() == StateLive {
			return true
		}
	}
	return false
}

// Stop ends every track in the stream.
func (s *Stream) Stop() {
	for _, t := range s.tracks {
		t.Stop()
	}
}

func (s *Stream) byKind(kind TrackKind) []Track {
	var out []Track
	for _, t := range s.tracks {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}
