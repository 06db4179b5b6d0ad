// Package server constructs and starts the chat hub HTTP service with helpers
// that apply sensible production defaults.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Tyrowin/chathub/internal/metrics"
)

// Server wires the hub, the liveness monitor and the HTTP surface together.
type Server struct {
	cfg      *Config
	log      *zap.Logger
	hub      *Hub
	monitor  *Monitor
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader
	logLevel http.Handler

	mu          sync.Mutex
	stopMonitor context.CancelFunc
	monitorDone chan struct{}
}

// New builds a Server. Collectors are registered on reg, which also backs
// the /metrics endpoint; a nil reg gets a private registry.
func New(cfg *Config, log *zap.Logger, reg *prometheus.Registry) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	cfg.sanitize()
	if log == nil {
		log = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	hub := NewHub(cfg, log.Named("hub"), metrics.New(reg))
	origins := newOriginPolicy(cfg.AllowedOrigins, log)

	return &Server{
		cfg:      cfg,
		log:      log,
		hub:      hub,
		monitor:  NewMonitor(hub),
		gatherer: reg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
	}
}

// Hub returns the server's hub for inspection and shutdown coordination.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Config returns the sanitized configuration in use.
func (s *Server) Config() *Config {
	return s.cfg
}

// ServeLogLevel exposes level on /loglevel. GET reports the current level and
// PUT with {"level":"debug"} changes it. Call it before Routes.
func (s *Server) ServeLogLevel(level zap.AtomicLevel) {
	s.logLevel = level
}

// Start launches the liveness monitor. It should be called before serving.
func (s *Server) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopMonitor != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stopMonitor = cancel
	s.monitorDone = make(chan struct{})
	go func() {
		defer close(s.monitorDone)
		s.monitor.Run(ctx)
	}()
	s.log.Info("hub started and ready to manage WebSocket connections")
}

// Shutdown stops the monitor and closes every connection, waiting up to
// timeout for connection goroutines to finish.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	if s.stopMonitor != nil {
		s.stopMonitor()
		<-s.monitorDone
		s.stopMonitor = nil
	}
	s.mu.Unlock()

	return s.hub.Shutdown(timeout)
}

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// ListenAndServe starts the HTTP server and blocks until it exits.
// http.ErrServerClosed after a graceful shutdown is not reported as an error.
func (s *Server) ListenAndServe(server *http.Server) error {
	s.log.Info("server listening", zap.String("addr", server.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ShutdownHTTP gracefully shuts down the HTTP server without interrupting active connections.
// It waits for active requests to finish or until the timeout is reached.
func (s *Server) ShutdownHTTP(server *http.Server, timeout time.Duration) error {
	s.log.Info("shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		s.log.Error("HTTP server shutdown error", zap.Error(err))
		return err
	}

	s.log.Info("HTTP server shutdown completed")
	return nil
}
