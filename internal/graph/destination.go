package graph

import (
	"sync"

	"github.com/google/uuid"

	"github.com/petems/vmic/internal/media"
)

// StreamDestination sums its connected sources and publishes the result on
// one live audio track. Connections are append-only; finished sources are
// released after the quantum in which they end.
type StreamDestination struct {
	ctx *Context

	mu       sync.Mutex
	sources  []source
	scratch  [][]float32
	closed   bool
	rendered int64

	track  *destinationTrack
	stream *media.Stream
}

func newStreamDestination(c *Context) *StreamDestination {
	d := &StreamDestination{ctx: c}
	d.track = &destinationTrack{
		id:    uuid.NewString(),
		dest:  d,
		bcast: media.NewBroadcaster(),
	}
	d.stream = media.NewStream(d.track)
	return d
}

// Stream returns the destination's stream. Every call returns the same value.
func (d *StreamDestination) Stream() *media.Stream {
	return d.stream
}

// Track returns the single audio track carried by Stream.
func (d *StreamDestination) Track() media.AudioTrack {
	return d.track
}

// ActiveSources counts connected sources that are started and not finished.
func (d *StreamDestination) ActiveSources() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.sources {
		if s.active() {
			n++
		}
	}
	return n
}

// ConnectedSources counts every connected source still held by the sink.
func (d *StreamDestination) ConnectedSources() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sources)
}

// RenderedQuanta is how many quanta the destination has produced.
func (d *StreamDestination) RenderedQuanta() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rendered
}

func (d *StreamDestination) connect(s source) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.sources = append(d.sources, s)
	return nil
}

func (d *StreamDestination) render(frames int) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}

	channels := d.ctx.channels
	if len(d.scratch) != channels || len(d.scratch[0]) != frames {
		d.scratch = make([][]float32, channels)
		for ch := range d.scratch {
			d.scratch[ch] = make([]float32, frames)
		}
	} else {
		for ch := range d.scratch {
			clear(d.scratch[ch])
		}
	}

	var finished []source
	kept := d.sources[:0]
	for _, s := range d.sources {
		if s.process(d.scratch) {
			kept = append(kept, s)
		} else {
			finished = append(finished, s)
		}
	}
	for i := len(kept); i < len(d.sources); i++ {
		d.sources[i] = nil
	}
	d.sources = kept
	d.rendered++

	var chunk media.AudioChunk
	publish := d.track.bcast.Len() > 0 && !d.track.isStopped()
	if publish {
		chunk = media.AudioChunk{SampleRate: d.ctx.sampleRate, Data: make([][]float32, channels)}
		for ch := range d.scratch {
			chunk.Data[ch] = append([]float32(nil), d.scratch[ch]...)
		}
	}
	d.mu.Unlock()

	for _, s := range finished {
		s.release()
	}
	if publish {
		d.track.bcast.Publish(chunk)
	}
}

func (d *StreamDestination) shutdown() {
	d.mu.Lock()
	d.closed = true
	d.sources = nil
	d.mu.Unlock()
	d.track.bcast.Close()
}

func (d *StreamDestination) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// destinationTrack is the audio track exposed by a StreamDestination.
type destinationTrack struct {
	id    string
	dest  *StreamDestination
	bcast *media.Broadcaster

	mu      sync.Mutex
	stopped bool
}

func (t *destinationTrack) ID() string            { return t.id }
func (t *destinationTrack) Kind() media.TrackKind { return media.TrackAudio }
func (t *destinationTrack) Label() string         { return "MediaStreamAudioDestinationNode" }

// ReadyState is live while the destination has at least one active source.
func (t *destinationTrack) ReadyState() media.ReadyState {
	if t.isStopped() || t.dest.isClosed() || t.dest.ActiveSources() == 0 {
		return media.StateEnded
	}
	return media.StateLive
}

// Stop ends the track for every holder of the stream.
func (t *destinationTrack) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.mu.Unlock()
	t.bcast.Close()
}

func (t *destinationTrack) Subscribe(buffer int) *media.Subscription {
	return t.bcast.Subscribe(buffer)
}

func (t *destinationTrack) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}
