package media

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Constraints is a capture request. Each kind is either a bare boolean or a
// constraint set, as in `{audio: true}` versus `{audio: {deviceId: ...}}`.
type Constraints struct {
	Audio TrackRequest `json:"audio"`
	Video TrackRequest `json:"video"`
}

// TrackRequest is the per-kind part of a capture request. When Set is nil the
// request is the literal boolean Flag.
type TrackRequest struct {
	Flag bool
	Set  *ConstraintSet
}

// Requested reports whether this kind was asked for at all.
func (r TrackRequest) Requested() bool {
	return r.Set != nil || r.Flag
}

// IsBareTrue reports whether the request is exactly the boolean true.
func (r TrackRequest) IsBareTrue() bool {
	return r.Set == nil && r.Flag
}

// DeviceID returns the device selection constraint, if any.
func (r TrackRequest) DeviceID() *ConstrainString {
	if r.Set == nil {
		return nil
	}
	return r.Set.DeviceID
}

func (r TrackRequest) MarshalJSON() ([]byte, error) {
	if r.Set != nil {
		return json.Marshal(r.Set)
	}
	return json.Marshal(r.Flag)
}

func (r *TrackRequest) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*r = TrackRequest{}
		return nil
	case len(data) > 0 && data[0] == '{':
		var set ConstraintSet
		if err := json.Unmarshal(data, &set); err != nil {
			return err
		}
		*r = TrackRequest{Set: &set}
		return nil
	default:
		var flag bool
		if err := json.Unmarshal(data, &flag); err != nil {
			return fmt.Errorf("track request must be a boolean or an object: %w", err)
		}
		*r = TrackRequest{Flag: flag}
		return nil
	}
}

// ConstraintSet is the subset of track constraints the platforms understand.
type ConstraintSet struct {
	DeviceID         *ConstrainString `json:"deviceId,omitempty"`
	GroupID          *ConstrainString `json:"groupId,omitempty"`
	ChannelCount     *int             `json:"channelCount,omitempty"`
	SampleRate       *int             `json:"sampleRate,omitempty"`
	EchoCancellation *bool            `json:"echoCancellation,omitempty"`
	NoiseSuppression *bool            `json:"noiseSuppression,omitempty"`
	AutoGainControl  *bool            `json:"autoGainControl,omitempty"`
	Width            *int             `json:"width,omitempty"`
	Height           *int             `json:"height,omitempty"`
	FrameRate        *float64         `json:"frameRate,omitempty"`
}

// ConstrainString is a string constraint. A bare value or list decodes as
// Ideal; the object form may carry exact and ideal values.
type ConstrainString struct {
	Exact []string `json:"exact,omitempty"`
	Ideal []string `json:"ideal,omitempty"`
}

// Exact builds an exact-match constraint.
func Exact(values ...string) *ConstrainString {
	return &ConstrainString{Exact: values}
}

// Ideal builds a preference constraint.
func Ideal(values ...string) *ConstrainString {
	return &ConstrainString{Ideal: values}
}

// Names reports whether id is named by the exact or ideal candidates.
func (c *ConstrainString) Names(id string) bool {
	if c == nil {
		return false
	}
	for _, v := range c.Exact {
		if v == id {
			return true
		}
	}
	for _, v := range c.Ideal {
		if v == id {
			return true
		}
	}
	return false
}

func (c *ConstrainString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var raw struct {
			Exact json.RawMessage `json:"exact"`
			Ideal json.RawMessage `json:"ideal"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		exact, err := stringOrList(raw.Exact)
		if err != nil {
			return fmt.Errorf("exact: %w", err)
		}
		ideal, err := stringOrList(raw.Ideal)
		if err != nil {
			return fmt.Errorf("ideal: %w", err)
		}
		*c = ConstrainString{Exact: exact, Ideal: ideal}
		return nil
	}

	ideal, err := stringOrList(data)
	if err != nil {
		return err
	}
	*c = ConstrainString{Ideal: ideal}
	return nil
}

func stringOrList(data json.RawMessage) ([]string, error) {
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	if data[0] == '[' {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return []string{s}, nil
}
