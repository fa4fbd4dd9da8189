package graph

import (
	"math"
	"sync"
)

// source is anything a destination can pull audio from.
type source interface {
	// process adds len(out[0]) frames into out. It returns false once the
	// source has finished and can be released.
	process(out [][]float32) bool
	active() bool
	release()
}

// Oscillator is a periodic sine generator. It runs until its context closes.
type Oscillator struct {
	ctx *Context

	mu        sync.Mutex
	frequency float64
	phase     float64
	started   bool
}

func (o *Oscillator) Frequency() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.frequency
}

func (o *Oscillator) SetFrequency(hz float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.frequency = hz
}

// Connect routes the oscillator output into d.
func (o *Oscillator) Connect(d *StreamDestination) error {
	return d.connect(o)
}

// Start begins generation. An oscillator can only be started once.
func (o *Oscillator) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return ErrInvalidState
	}
	o.started = true
	return nil
}

func (o *Oscillator) Started() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.started
}

func (o *Oscillator) active() bool { return o.Started() }

func (o *Oscillator) release() {}

func (o *Oscillator) process(out [][]float32) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.started {
		return true
	}
	step := 2 * math.Pi * o.frequency / float64(o.ctx.sampleRate)
	for i := range out[0] {
		v := float32(math.Sin(o.phase))
		for ch := range out {
			out[ch][i] += v
		}
		o.phase += step
	}
	o.phase = math.Mod(o.phase, 2*math.Pi)
	return true
}

// BufferSource plays an AudioBuffer once, from the start, as soon as it is
// started. Buffers at a different rate than the context are played back at
// their own rate with linear interpolation.
type BufferSource struct {
	ctx *Context

	mu      sync.Mutex
	buffer  *AudioBuffer
	started bool
	done    bool
	pos     float64
	onEnded func()
}

// SetBuffer assigns the buffer to play. It can be assigned only once.
func (s *BufferSource) SetBuffer(b *AudioBuffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buffer != nil {
		return ErrInvalidState
	}
	s.buffer = b
	return nil
}

// OnEnded registers fn to run once playback has finished.
func (s *BufferSource) OnEnded(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnded = fn
}

func (s *BufferSource) Connect(d *StreamDestination) error {
	return d.connect(s)
}

// Start schedules playback immediately. A source without a buffer, or one
// already started, cannot be started.
func (s *BufferSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.buffer == nil {
		return ErrInvalidState
	}
	s.started = true
	return nil
}

// Ended reports whether playback has run to completion.
func (s *BufferSource) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *BufferSource) active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.done
}

func (s *BufferSource) release() {
	s.mu.Lock()
	fn := s.onEnded
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *BufferSource) process(out [][]float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false
	}
	if !s.started {
		return true
	}

	b := s.buffer
	length := b.Length()
	step := float64(b.sampleRate) / float64(s.ctx.sampleRate)

	for i := range out[0] {
		if s.pos >= float64(length) {
			s.done = true
			break
		}
		idx := int(s.pos)
		frac := float32(s.pos - float64(idx))
		if len(b.channels) == 1 {
			v := sampleAt(b.channels[0], idx, frac)
			for ch := range out {
				out[ch][i] += v
			}
		} else {
			for ch := 0; ch < len(out) && ch < len(b.channels); ch++ {
				out[ch][i] += sampleAt(b.channels[ch], idx, frac)
			}
		}
		s.pos += step
	}
	if s.pos >= float64(length) {
		s.done = true
	}
	return !s.done
}

func sampleAt(data []float32, idx int, frac float32) float32 {
	v := data[idx]
	if frac == 0 || idx+1 >= len(data) {
		return v
	}
	return v + frac*(data[idx+1]-v)
}
