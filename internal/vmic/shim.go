// Package vmic presents a virtual microphone to capture clients. It wraps a
// real media.Devices implementation, advertises a synthetic audio input and
// serves it from a rendering graph fed with audio frames posted by a
// translation engine.
package vmic

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/vmic/internal/graph"
	"github.com/petems/vmic/internal/media"
	"github.com/petems/vmic/internal/messaging"
)

// VideoPolicy decides what a combined audio and video request returns when
// the real video capture fails.
type VideoPolicy string

const (
	// VideoDegrade returns the virtual audio alone and logs the video error.
	VideoDegrade VideoPolicy = "degrade"
	// VideoStrict fails the whole request with the video error.
	VideoStrict VideoPolicy = "strict"
)

// DefaultGraphOptions is the rendering format used when none is configured.
var DefaultGraphOptions = graph.Options{SampleRate: 48000, Channels: 1, Quantum: graph.DefaultQuantum}

type Config struct {
	// Devices is the real platform every other request is delegated to.
	Devices media.Devices
	// Target receives frame messages. A private target is created when nil.
	Target         *messaging.Target
	Graph          graph.Options
	NewContext     ContextFactory
	Realtime       bool
	FrameType      string
	AllowedOrigins []string
	VideoPolicy    VideoPolicy
	Logger         zerolog.Logger
}

// Status is the read-only diagnostic view of a shim.
type Status struct {
	State           string    `json:"state"`
	Capturing       bool      `json:"capturing"`
	GraphExists     bool      `json:"graphExists"`
	StreamAvailable bool      `json:"streamAvailable"`
	FramesPlayed    uint64    `json:"framesPlayed"`
	FramesRejected  uint64    `json:"framesRejected"`
	LastFrameAt     time.Time `json:"lastFrameAt"`
}

// Shim is a media.Devices that adds the virtual microphone to the wrapped
// platform.
type Shim struct {
	real   media.Devices
	target *messaging.Target
	policy VideoPolicy
	log    zerolog.Logger

	graphs *GraphManager
	in     *ingester

	mu             sync.Mutex
	removeListener func()
}

var _ media.Devices = (*Shim)(nil)

func New(cfg Config) *Shim {
	opts := cfg.Graph
	if opts.SampleRate == 0 {
		opts = DefaultGraphOptions
	}
	target := cfg.Target
	if target == nil {
		target = messaging.NewTarget(cfg.Logger)
	}
	policy := cfg.VideoPolicy
	if policy == "" {
		policy = VideoDegrade
	}

	s := &Shim{
		real:   cfg.Devices,
		target: target,
		policy: policy,
		log:    cfg.Logger,
		in:     newIngester(cfg.FrameType, cfg.AllowedOrigins, cfg.Logger),
	}
	s.graphs = NewGraphManager(GraphConfig{
		Options:    opts,
		NewContext: cfg.NewContext,
		Realtime:   cfg.Realtime,
		OnCapture:  s.attachListener,
		Logger:     cfg.Logger,
	})
	return s
}

// Target is where frame producers post their messages.
func (s *Shim) Target() *messaging.Target {
	return s.target
}

// Graphs exposes the graph manager.
func (s *Shim) Graphs() *GraphManager {
	return s.graphs
}

// EnumerateDevices lists the real devices followed by the virtual
// microphone. Platform errors are returned unchanged.
func (s *Shim) EnumerateDevices(ctx context.Context) ([]media.DeviceInfo, error) {
	devices, err := s.real.EnumerateDevices(ctx)
	if err != nil {
		return nil, err
	}
	return WithVirtualDevice(devices), nil
}

// GetUserMedia serves requests for the virtual microphone from the sink and
// passes every other request to the real platform untouched.
func (s *Shim) GetUserMedia(ctx context.Context, c media.Constraints) (*media.Stream, error) {
	if !TargetsVirtualDevice(c) {
		return s.real.GetUserMedia(ctx, c)
	}

	g, err := s.graphs.EnsureGraph()
	if err != nil {
		return nil, err
	}
	audio := g.Sink.Stream()
	if !c.Video.Requested() {
		return audio, nil
	}

	video, err := s.real.GetUserMedia(ctx, media.Constraints{Video: c.Video})
	if err != nil {
		if s.policy == VideoStrict {
			return nil, fmt.Errorf("video capture: %w", err)
		}
		s.log.Warn().Err(err).Msg("Video capture failed, returning virtual audio only")
		return audio, nil
	}

	tracks := append(video.VideoTracks(), audio.AudioTracks()...)
	return media.NewStream(tracks...), nil
}

// TargetsVirtualDevice reports whether c asks for the virtual microphone:
// audio requested as plain true, or a deviceId naming it exactly or among
// the ideal candidates.
func TargetsVirtualDevice(c media.Constraints) bool {
	if c.Audio.IsBareTrue() {
		return true
	}
	return c.Audio.DeviceID().Names(VirtualDeviceID)
}

func (s *Shim) Status() Status {
	st := Status{
		FramesPlayed:   s.in.played.Load(),
		FramesRejected: s.in.rejected.Load(),
		LastFrameAt:    s.in.lastFrameAt(),
	}
	state := s.graphs.State()
	st.State = state.String()
	st.Capturing = state == Capturing
	if g := s.graphs.Graph(); g != nil {
		st.GraphExists = true
		st.StreamAvailable = g.Sink.Stream().Active()
	}
	return st
}

// Close detaches the frame listener and releases the rendering graph.
func (s *Shim) Close() {
	s.mu.Lock()
	if s.removeListener != nil {
		s.removeListener()
		s.removeListener = nil
	}
	s.mu.Unlock()
	s.graphs.Close()
}

func (s *Shim) attachListener(g *Graph) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removeListener != nil {
		return nil
	}
	s.removeListener = s.target.AddListener(s.in.listener(g))
	return nil
}
