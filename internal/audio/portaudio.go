package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/petems/vmic/internal/config"
	"github.com/petems/vmic/internal/media"
	"github.com/petems/vmic/internal/permissions"
)

// Platform captures from physical input devices.
type Platform struct {
	cfg config.AudioConfig
	log zerolog.Logger

	mu     sync.Mutex
	tracks map[*captureTrack]struct{}
}

var _ media.Devices = (*Platform)(nil)

// New initializes PortAudio. Close must be called to release it.
func New(cfg config.AudioConfig, log zerolog.Logger) (*Platform, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &Platform{
		cfg:    cfg,
		log:    log,
		tracks: make(map[*captureTrack]struct{}),
	}, nil
}

func (p *Platform) EnumerateDevices(ctx context.Context) ([]media.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return deviceInfos(devices), nil
}

// GetUserMedia opens a capture stream. Only audio can be captured.
func (p *Platform) GetUserMedia(ctx context.Context, c media.Constraints) (*media.Stream, error) {
	if c.Video.Requested() {
		return nil, fmt.Errorf("%w: video capture", media.ErrNotSupported)
	}
	if !c.Audio.Requested() {
		return nil, fmt.Errorf("%w: no track kind requested", media.ErrNotSupported)
	}
	if err := permissions.CheckMicrophone(); err != nil {
		return nil, err
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	def, _ := portaudio.DefaultInputDevice()
	device, err := selectInput(devices, def, c.Audio, p.cfg.DeviceID)
	if err != nil {
		return nil, err
	}

	track, err := p.open(device, c.Audio)
	if err != nil {
		return nil, err
	}
	return media.NewStream(track), nil
}

func (p *Platform) open(device *portaudio.DeviceInfo, req media.TrackRequest) (*captureTrack, error) {
	channels, rate := streamFormat(device, req, p.cfg.SampleRate)
	frames := p.cfg.FramesPerBuffer
	if frames <= 0 {
		frames = 512
	}

	// Non-interleaved buffer: one slice per channel.
	buffer := make([][]float32, channels)
	for ch := range buffer {
		buffer[ch] = make([]float32, frames)
	}
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      rate,
		FramesPerBuffer: frames,
	}, buffer)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start audio stream: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &captureTrack{
		id:     uuid.NewString(),
		label:  device.Name,
		bcast:  media.NewBroadcaster(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	p.mu.Lock()
	p.tracks[t] = struct{}{}
	p.mu.Unlock()

	go func() {
		defer func() {
			p.mu.Lock()
			delete(p.tracks, t)
			p.mu.Unlock()
		}()
		t.readLoop(ctx, stream, buffer, int(rate), p.log)
	}()

	p.log.Info().Str("device", device.Name).Int("channels", channels).Float64("sample_rate", rate).Msg("Opened capture stream")
	return t, nil
}

// Close stops every open capture track and terminates PortAudio.
func (p *Platform) Close() error {
	p.mu.Lock()
	tracks := make([]*captureTrack, 0, len(p.tracks))
	for t := range p.tracks {
		tracks = append(tracks, t)
	}
	p.mu.Unlock()

	for _, t := range tracks {
		t.Stop()
		<-t.done
	}
	return portaudio.Terminate()
}

// captureTrack is a live PortAudio input stream.
type captureTrack struct {
	id     string
	label  string
	bcast  *media.Broadcaster
	cancel context.CancelFunc
	done   chan struct{}
}

func (t *captureTrack) ID() string            { return t.id }
func (t *captureTrack) Kind() media.TrackKind { return media.TrackAudio }
func (t *captureTrack) Label() string         { return t.label }

func (t *captureTrack) ReadyState() media.ReadyState {
	select {
	case <-t.done:
		return media.StateEnded
	default:
		return media.StateLive
	}
}

// Stop ends capture. The stream is closed by the read loop.
func (t *captureTrack) Stop() {
	t.cancel()
}

func (t *captureTrack) Subscribe(buffer int) *media.Subscription {
	return t.bcast.Subscribe(buffer)
}

func (t *captureTrack) readLoop(ctx context.Context, stream *portaudio.Stream, buffer [][]float32, rate int, log zerolog.Logger) {
	defer close(t.done)
	defer t.bcast.Close()
	defer stream.Close()
	defer stream.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := stream.Read(); err != nil {
				log.Warn().Err(err).Str("device", t.label).Msg("Capture read failed")
				return
			}
			chunk := media.AudioChunk{SampleRate: rate, Data: make([][]float32, len(buffer))}
			for ch := range buffer {
				chunk.Data[ch] = append([]float32(nil), buffer[ch]...)
			}
			// Slow subscribers miss chunks instead of stalling capture.
			t.bcast.Publish(chunk)
		}
	}
}
