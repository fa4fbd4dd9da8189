package vmic

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/petems/vmic/internal/graph"
)

var ErrClosed = errors.New("vmic: shim closed")

// State is the capture session state. A session leaves Dormant at most once.
type State int

const (
	Dormant State = iota
	Capturing
)

func (s State) String() string {
	switch s {
	case Dormant:
		return "dormant"
	case Capturing:
		return "capturing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ContextFactory creates the rendering context. Tests replace it to count or
// fail construction.
type ContextFactory func(graph.Options) (*graph.Context, error)

// Graph is the rendering graph backing the virtual microphone.
type Graph struct {
	Context *graph.Context
	Sink    *graph.StreamDestination
	Carrier *graph.Oscillator
}

// GraphConfig configures a GraphManager.
type GraphConfig struct {
	Options    graph.Options
	NewContext ContextFactory
	// Realtime starts a render loop once the graph exists. When false the
	// owner drives Context.RenderQuantum itself.
	Realtime bool
	// OnCapture runs once, while the graph is being activated. An error
	// aborts activation and the session stays Dormant.
	OnCapture func(*Graph) error
	Logger    zerolog.Logger
}

// GraphManager owns the singleton rendering graph and the session state.
type GraphManager struct {
	opts       graph.Options
	newContext ContextFactory
	realtime   bool
	onCapture  func(*Graph) error
	log        zerolog.Logger

	mu         sync.Mutex
	state      State
	graph      *Graph
	closed     bool
	failures   int
	stopRender context.CancelFunc
}

func NewGraphManager(cfg GraphConfig) *GraphManager {
	newContext := cfg.NewContext
	if newContext == nil {
		newContext = graph.NewContext
	}
	return &GraphManager{
		opts:       cfg.Options,
		newContext: newContext,
		realtime:   cfg.Realtime,
		onCapture:  cfg.OnCapture,
		log:        cfg.Logger,
	}
}

// EnsureGraph returns the rendering graph, building it on first use. A failed
// build leaves the session Dormant so a later call can retry.
func (m *GraphManager) EnsureGraph() (*Graph, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if m.state == Capturing {
		return m.graph, nil
	}

	g, err := m.build()
	if err != nil {
		m.failures++
		m.log.Error().Err(err).Int("failures", m.failures).Msg("Failed to build rendering graph")
		return nil, fmt.Errorf("build rendering graph: %w", err)
	}

	if m.onCapture != nil {
		if err := m.onCapture(g); err != nil {
			g.Context.Close()
			m.failures++
			m.log.Error().Err(err).Msg("Failed to activate capture session")
			return nil, fmt.Errorf("activate capture session: %w", err)
		}
	}

	if m.realtime {
		ctx, cancel := context.WithCancel(context.Background())
		m.stopRender = cancel
		go func() {
			if err := g.Context.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.log.Debug().Err(err).Msg("Render loop stopped")
			}
		}()
	}

	m.graph = g
	m.state = Capturing
	m.log.Info().
		Int("sample_rate", g.Context.SampleRate()).
		Int("channels", g.Context.Channels()).
		Msg("Virtual microphone capturing")
	return g, nil
}

// build creates context, sink and carrier in that order and starts the
// carrier. On any error the partial graph is torn down.
func (m *GraphManager) build() (*Graph, error) {
	ctx, err := m.newContext(m.opts)
	if err != nil {
		return nil, fmt.Errorf("create context: %w", err)
	}

	g, err := assemble(ctx)
	if err != nil {
		ctx.Close()
		return nil, err
	}
	return g, nil
}

func assemble(ctx *graph.Context) (*Graph, error) {
	sink, err := ctx.CreateMediaStreamDestination()
	if err != nil {
		return nil, fmt.Errorf("create sink: %w", err)
	}
	carrier, err := ctx.CreateOscillator()
	if err != nil {
		return nil, fmt.Errorf("create carrier: %w", err)
	}
	carrier.SetFrequency(0)
	if err := carrier.Connect(sink); err != nil {
		return nil, fmt.Errorf("connect carrier: %w", err)
	}
	if err := carrier.Start(); err != nil {
		return nil, fmt.Errorf("start carrier: %w", err)
	}
	return &Graph{Context: ctx, Sink: sink, Carrier: carrier}, nil
}

func (m *GraphManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Graph returns the current graph, or nil while Dormant.
func (m *GraphManager) Graph() *Graph {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.graph
}

// Close releases the graph. The manager cannot be reused afterwards.
func (m *GraphManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	if m.stopRender != nil {
		m.stopRender()
	}
	if m.graph != nil {
		m.graph.Context.Close()
	}
}
