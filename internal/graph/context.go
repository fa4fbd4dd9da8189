// Package graph renders a small audio node graph in fixed-size quanta:
// periodic and buffer sources summed into stream destinations whose output
// is exposed as a live media track.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultQuantum = 128
	MinSampleRate  = 3000
	MaxSampleRate  = 768000
	MaxChannels    = 32

	// Upper bound on quanta rendered in one tick when the loop falls behind.
	maxCatchUp = 8
)

var (
	ErrInvalidState = errors.New("graph: invalid state")
	ErrNotSupported = errors.New("graph: not supported")
	ErrIndexSize    = errors.New("graph: index out of range")
	ErrClosed       = errors.New("graph: context closed")
)

// Options configures a rendering context.
type Options struct {
	SampleRate int
	Channels   int
	Quantum    int
}

// NodeCounts reports how many nodes a context has created.
type NodeCounts struct {
	Oscillators   int64
	BufferSources int64
	Destinations  int64
}

// Context owns the clock and the set of destinations it renders.
type Context struct {
	sampleRate int
	channels   int
	quantum    int

	mu           sync.Mutex
	frame        int64
	destinations []*StreamDestination
	closed       bool

	oscillators   atomic.Int64
	bufferSources atomic.Int64
	destCount     atomic.Int64
}

// NewContext validates opts and returns an idle context. Nothing renders
// until RenderQuantum or Run is called.
func NewContext(opts Options) (*Context, error) {
	if err := checkSampleRate(opts.SampleRate); err != nil {
		return nil, err
	}
	if opts.Channels < 1 || opts.Channels > MaxChannels {
		return nil, fmt.Errorf("%w: %d output channels", ErrNotSupported, opts.Channels)
	}
	if opts.Quantum == 0 {
		opts.Quantum = DefaultQuantum
	}
	if opts.Quantum < 1 {
		return nil, fmt.Errorf("%w: quantum %d", ErrNotSupported, opts.Quantum)
	}

	return &Context{
		sampleRate: opts.SampleRate,
		channels:   opts.Channels,
		quantum:    opts.Quantum,
	}, nil
}

func (c *Context) SampleRate() int  { return c.sampleRate }
func (c *Context) Channels() int    { return c.channels }
func (c *Context) QuantumSize() int { return c.quantum }

// CurrentFrame is the index of the next frame to be rendered.
func (c *Context) CurrentFrame() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame
}

func (c *Context) CurrentTime() time.Duration {
	return time.Duration(c.CurrentFrame()) * time.Second / time.Duration(c.sampleRate)
}

func (c *Context) NodeCounts() NodeCounts {
	return NodeCounts{
		Oscillators:   c.oscillators.Load(),
		BufferSources: c.bufferSources.Load(),
		Destinations:  c.destCount.Load(),
	}
}

func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// CreateOscillator returns a sine oscillator at 440 Hz.
func (c *Context) CreateOscillator() (*Oscillator, error) {
	if c.Closed() {
		return nil, ErrClosed
	}
	c.oscillators.Add(1)
	return &Oscillator{ctx: c, frequency: 440}, nil
}

func (c *Context) CreateBufferSource() (*BufferSource, error) {
	if c.Closed() {
		return nil, ErrClosed
	}
	c.bufferSources.Add(1)
	return &BufferSource{ctx: c}, nil
}

// CreateMediaStreamDestination returns a sink whose output is exposed as a
// single live audio track.
func (c *Context) CreateMediaStreamDestination() (*StreamDestination, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	d := newStreamDestination(c)
	c.destinations = append(c.destinations, d)
	c.destCount.Add(1)
	return d, nil
}

// RenderQuantum renders one quantum into every destination and advances the
// clock.
func (c *Context) RenderQuantum() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	dests := append([]*StreamDestination(nil), c.destinations...)
	c.frame += int64(c.quantum)
	c.mu.Unlock()

	for _, d := range dests {
		d.render(c.quantum)
	}
}

// Run renders in real time until ctx is cancelled or the context is closed.
func (c *Context) Run(ctx context.Context) error {
	period := time.Duration(c.quantum) * time.Second / time.Duration(c.sampleRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	start := time.Now()
	var rendered int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if c.Closed() {
				return ErrClosed
			}
			due := int64(now.Sub(start) / period)
			for n := 0; rendered < due && n < maxCatchUp; n++ {
				c.RenderQuantum()
				rendered++
			}
			// Drop the backlog rather than bursting after a long stall.
			if rendered < due {
				rendered = due
			}
		}
	}
}

// Close stops rendering and ends every destination track.
func (c *Context) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	dests := c.destinations
	c.destinations = nil
	c.mu.Unlock()

	for _, d := range dests {
		d.shutdown()
	}
}

func checkSampleRate(rate int) error {
	if rate < MinSampleRate || rate > MaxSampleRate {
		return fmt.Errorf("%w: sample rate %d", ErrNotSupported, rate)
	}
	return nil
}
