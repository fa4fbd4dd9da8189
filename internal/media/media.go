// Package media holds the platform-facing capture model: device descriptors,
// capture constraints, tracks and streams.
package media

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no device satisfies a request.
	ErrNotFound = errors.New("media: requested device not found")
	// ErrNotSupported is returned for track kinds the platform cannot capture.
	ErrNotSupported = errors.New("media: capture kind not supported")
	// ErrOverconstrained is returned when an exact constraint cannot be met.
	ErrOverconstrained = errors.New("media: constraints cannot be satisfied")
	// ErrNotAllowed is returned when the user or system denied capture.
	ErrNotAllowed = errors.New("media: capture not allowed")
)

// Devices is the capture capability application code is wired to. The real
// platform and the virtual microphone both implement it.
type Devices interface {
	EnumerateDevices(ctx context.Context) ([]DeviceInfo, error)
	GetUserMedia(ctx context.Context, c Constraints) (*Stream, error)
}

type DeviceKind string

const (
	KindAudioInput  DeviceKind = "audioinput"
	KindAudioOutput DeviceKind = "audiooutput"
	KindVideoInput  DeviceKind = "videoinput"
)

// DeviceInfo describes one enumerable capture or playback device.
type DeviceInfo struct {
	DeviceID string     `json:"deviceId"`
	Kind     DeviceKind `json:"kind"`
	Label    string     `json:"label"`
	GroupID  string     `json:"groupId"`
}

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

type ReadyState string

const (
	StateLive  ReadyState = "live"
	StateEnded ReadyState = "ended"
)

// Track is a single live media source handed to consumers.
type Track interface {
	ID() string
	Kind() TrackKind
	Label() string
	ReadyState() ReadyState
	Stop()
}

// AudioTrack is a Track whose rendered audio can be observed.
type AudioTrack interface {
	Track
	Subscribe(buffer int) *Subscription
}

// AudioChunk is one block of planar float32 samples.
type AudioChunk struct {
	SampleRate int
	Data       [][]float32
}

// Frames returns the number of sample frames in the chunk.
func (c AudioChunk) Frames() int {
	if len(c.Data) == 0 {
		return 0
	}
	return len(c.Data[0])
}
