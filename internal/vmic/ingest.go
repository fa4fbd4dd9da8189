package vmic

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/vmic/internal/graph"
	"github.com/petems/vmic/internal/messaging"
)

// DefaultFrameType is the message type carrying audio frames.
const DefaultFrameType = "AUDIO_FRAME"

var ErrMalformedFrame = errors.New("malformed audio frame")

// Frame is one audio frame posted by the translation engine. Duration is in
// seconds and advisory; the channel arrays are authoritative.
type Frame struct {
	NumberOfChannels int         `json:"numberOfChannels"`
	SampleRate       int         `json:"sampleRate"`
	Duration         *float64    `json:"duration,omitempty"`
	ChannelData      [][]float32 `json:"channelData"`
}

// Length is the number of sample frames per channel.
func (f Frame) Length() int {
	if len(f.ChannelData) == 0 {
		return 0
	}
	return len(f.ChannelData[0])
}

// Validate checks the frame's declared layout against its sample arrays.
func (f Frame) Validate() error {
	if f.NumberOfChannels < 1 {
		return fmt.Errorf("%w: numberOfChannels %d", ErrMalformedFrame, f.NumberOfChannels)
	}
	if f.NumberOfChannels != len(f.ChannelData) {
		return fmt.Errorf("%w: declared %d channels, got %d channel arrays",
			ErrMalformedFrame, f.NumberOfChannels, len(f.ChannelData))
	}
	if f.SampleRate < graph.MinSampleRate || f.SampleRate > graph.MaxSampleRate {
		return fmt.Errorf("%w: sample rate %d", ErrMalformedFrame, f.SampleRate)
	}
	length := f.Length()
	if length == 0 {
		return fmt.Errorf("%w: empty channel data", ErrMalformedFrame)
	}
	for ch, data := range f.ChannelData {
		if len(data) != length {
			return fmt.Errorf("%w: channel %d has %d samples, channel 0 has %d",
				ErrMalformedFrame, ch, len(data), length)
		}
	}
	return nil
}

// durationMismatch reports whether the declared duration disagrees with the
// sample arrays by more than one sample period.
func (f Frame) durationMismatch() bool {
	if f.Duration == nil || *f.Duration <= 0 {
		return false
	}
	declared := *f.Duration * float64(f.SampleRate)
	return math.Abs(declared-float64(f.Length())) > 1
}

// ReconstructBuffer copies a validated frame into a new AudioBuffer, channel
// by channel, keeping rate and layout as sent.
func ReconstructBuffer(f Frame) (*graph.AudioBuffer, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	buf, err := graph.NewAudioBuffer(f.NumberOfChannels, f.Length(), f.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("allocate buffer: %w", err)
	}
	for ch, data := range f.ChannelData {
		if err := buf.CopyToChannel(data, ch); err != nil {
			return nil, fmt.Errorf("copy channel %d: %w", ch, err)
		}
	}
	return buf, nil
}

// ingester turns posted frame messages into one-shot sources on the sink.
type ingester struct {
	frameType string
	allowed   map[string]struct{}
	log       zerolog.Logger

	played    atomic.Uint64
	rejected  atomic.Uint64
	lastFrame atomic.Int64
}

func newIngester(frameType string, allowedOrigins []string, log zerolog.Logger) *ingester {
	if frameType == "" {
		frameType = DefaultFrameType
	}
	in := &ingester{frameType: frameType, log: log}
	if len(allowedOrigins) > 0 {
		in.allowed = make(map[string]struct{}, len(allowedOrigins))
		for _, o := range allowedOrigins {
			in.allowed[o] = struct{}{}
		}
	}
	return in
}

// listener returns the message handler bound to g. It never panics and never
// blocks on playback.
func (in *ingester) listener(g *Graph) messaging.Listener {
	return func(msg messaging.Message) {
		if msg.Type != in.frameType {
			return
		}
		if in.allowed != nil {
			if _, ok := in.allowed[msg.Origin]; !ok {
				in.reject(fmt.Errorf("sender origin %q not allowed", msg.Origin))
				return
			}
		}

		var f Frame
		if err := json.Unmarshal(msg.Data, &f); err != nil {
			in.reject(fmt.Errorf("%w: %v", ErrMalformedFrame, err))
			return
		}
		if err := in.play(g, f); err != nil {
			in.reject(err)
		}
	}
}

// play schedules f on the sink immediately. Frames arriving faster than real
// time overlap; there is no jitter buffer.
func (in *ingester) play(g *Graph, f Frame) error {
	buf, err := ReconstructBuffer(f)
	if err != nil {
		return err
	}
	if f.durationMismatch() {
		in.log.Debug().
			Float64("declared_duration", *f.Duration).
			Dur("sample_duration", buf.Duration()).
			Msg("Frame duration disagrees with sample count, using samples")
	}

	src, err := g.Context.CreateBufferSource()
	if err != nil {
		return fmt.Errorf("create source: %w", err)
	}
	if err := src.SetBuffer(buf); err != nil {
		return fmt.Errorf("set buffer: %w", err)
	}
	if err := src.Connect(g.Sink); err != nil {
		return fmt.Errorf("connect source: %w", err)
	}
	if err := src.Start(); err != nil {
		return fmt.Errorf("start source: %w", err)
	}

	in.played.Add(1)
	in.lastFrame.Store(time.Now().UnixNano())
	return nil
}

func (in *ingester) reject(err error) {
	in.rejected.Add(1)
	in.log.Warn().Err(err).Msg("Dropped audio frame")
}

func (in *ingester) lastFrameAt() time.Time {
	ns := in.lastFrame.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
