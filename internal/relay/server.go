package relay

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vrlink/vrlink-core/internal/infrastructure/config"
	"github.com/vrlink/vrlink-core/internal/link"
)

// Server is the device-facing WebSocket listener. Devices connect to the
// root path and hold the connection open; each accepted socket gets its
// own session goroutine.
type Server struct {
	cfg      config.RelayConfig
	links    link.Repository
	registry *Registry
	pending  *PendingTable

	logger  Logger
	events  Events
	metrics Metrics

	upgrader websocket.Upgrader
	baseCtx  context.Context

	mu         sync.Mutex
	sessions   map[*session]struct{}
	httpServer *http.Server
}

// NewServer creates a relay server. Optional collaborators are attached
// with SetLogger, SetEvents, and SetMetrics before Start.
func NewServer(cfg config.RelayConfig, links link.Repository, registry *Registry, pending *PendingTable) *Server {
	return &Server{
		cfg:      cfg,
		links:    links,
		registry: registry,
		pending:  pending,
		logger:   noopLogger{},
		events:   noopEvents{},
		metrics:  noopMetrics{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Devices connect natively, not from browsers, so origin
			// checks do not apply.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		baseCtx:  context.Background(),
		sessions: make(map[*session]struct{}),
	}
}

// SetLogger sets the logger for the server and its sessions.
func (s *Server) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetEvents sets the lifecycle event sink.
func (s *Server) SetEvents(events Events) {
	if events != nil {
		s.events = events
	}
}

// SetMetrics sets the metrics sink.
func (s *Server) SetMetrics(metrics Metrics) {
	if metrics != nil {
		s.metrics = metrics
	}
}

// Handler returns the WebSocket endpoint as an http.Handler. Exposed so
// tests can mount the relay on an httptest server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleDevice)
	return mux
}

// Start binds the relay listener and serves in the background until
// Close is called. The bind is retried once after a short delay:
// restarts commonly race the previous process releasing the port.
func (s *Server) Start(ctx context.Context) error {
	s.baseCtx = ctx

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.logger.Warn("relay bind failed, retrying once",
			"addr", addr, "delay", s.cfg.GetBindRetryDelay().String(), "error", err)
		select {
		case <-time.After(s.cfg.GetBindRetryDelay()):
		case <-ctx.Done():
			return ctx.Err()
		}
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("binding relay listener: %w", err)
		}
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("relay server error", "error", err)
		}
	}()

	s.logger.Info("relay listening", "addr", addr)
	return nil
}

// Close stops accepting connections and closes every live device
// socket. Shutdown alone is not enough: upgraded connections are
// hijacked from the HTTP server, so they are closed directly and their
// sessions unwind through their own cleanup.
func (s *Server) Close() error {
	var err error
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = s.httpServer.Shutdown(ctx)
	}

	s.mu.Lock()
	for sess := range s.sessions {
		sess.ws.Close()
	}
	s.mu.Unlock()

	return err
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade rejected", "remote", r.RemoteAddr, "error", err)
		return
	}

	sess := newSession(s, ws)
	s.trackSession(sess)
	s.logger.Debug("connection opened", "conn_id", sess.id, "remote", r.RemoteAddr)
	sess.run()
}

func (s *Server) trackSession(sess *session) {
	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) dropSession(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}
