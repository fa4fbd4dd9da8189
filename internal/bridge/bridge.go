// Package bridge connects frame producers to a shim over websockets and
// serves the shim's diagnostic status.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/petems/vmic/internal/messaging"
	"github.com/petems/vmic/internal/vmic"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	defaultMaxMessageSize = 2 << 20
)

// StatusFunc reports the shim status served on the status path.
type StatusFunc func() vmic.Status

type Config struct {
	Addr       string
	FramesPath string
	StatusPath string
	// MaxMessageSize bounds one inbound websocket message in bytes.
	MaxMessageSize int64
	Target         *messaging.Target
	Status         StatusFunc
	Logger         zerolog.Logger
}

// Server accepts producer connections and posts their messages to Target.
type Server struct {
	cfg      Config
	log      zerolog.Logger
	upgrader websocket.Upgrader
	http     *http.Server

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
	wg    sync.WaitGroup
}

// envelope is the part of every message the bridge inspects.
type envelope struct {
	Type string `json:"type"`
}

func New(cfg Config) *Server {
	if cfg.FramesPath == "" {
		cfg.FramesPath = "/frames"
	}
	if cfg.StatusPath == "" {
		cfg.StatusPath = "/debug/status"
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}

	s := &Server{
		cfg:   cfg,
		log:   cfg.Logger,
		conns: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 4 * 1024,
			// Sender origin is recorded on every message; whether it is
			// trusted is decided by the shim's allowlist.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.FramesPath, s.handleFrames)
	mux.HandleFunc(cfg.StatusPath, s.handleStatus)
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler, for mounting or testing.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.log.Info().Str("addr", l.Addr().String()).Str("frames", s.cfg.FramesPath).Msg("Bridge listening")
	if err := s.http.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Shutdown stops accepting, closes producer connections and waits for their
// read loops to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)

	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn().Msg("Timed out waiting for producer connections to close")
	}
	return err
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.cfg.Status == nil {
		http.Error(w, "status unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.cfg.Status()); err != nil {
		s.log.Debug().Err(err).Msg("Failed to write status")
	}
}

func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	origin := r.Header.Get("Origin")

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		s.readLoop(conn, origin)
	}()
}

// readLoop posts each text message in arrival order. One loop per producer
// keeps that producer's frames FIFO.
func (s *Server) readLoop(conn *websocket.Conn, origin string) {
	log := s.log.With().Str("remote", conn.RemoteAddr().String()).Str("origin", origin).Logger()
	log.Info().Msg("Producer connected")

	conn.SetReadLimit(s.cfg.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stop := make(chan struct{})
	defer close(stop)
	go s.pingLoop(conn, stop)

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("Producer connection lost")
			} else {
				log.Info().Msg("Producer disconnected")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		if kind != websocket.TextMessage {
			log.Debug().Int("kind", kind).Msg("Ignoring non-text message")
			continue
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			log.Warn().Err(err).Msg("Ignoring message without a type")
			continue
		}
		s.cfg.Target.Post(messaging.Message{Type: env.Type, Origin: origin, Data: data})
	}
}

func (s *Server) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
