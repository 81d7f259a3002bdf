package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/configdesk/configdesk/pkg/completion"
	"github.com/configdesk/configdesk/pkg/session"
	"github.com/configdesk/configdesk/pkg/telemetry"
)

// Config configures the API server.
type Config struct {
	Addr         string
	Session      *session.Session
	Telemetry    *telemetry.Telemetry // nil records nothing
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	session    *session.Session
	completer  *completion.Service
	tel        *telemetry.Telemetry
	logger     *telemetry.Logger
	startTime  time.Time

	// done is closed when shutdown begins so open event streams end.
	done      chan struct{}
	closeDone sync.Once
}

// NewServer creates a new API server around sess.
func NewServer(cfg Config) *Server {
	tel := cfg.Telemetry
	if tel == nil {
		tel = telemetry.NewNop()
	}

	s := &Server{
		session:   cfg.Session,
		completer: completion.NewService(cfg.Session.Schema(), tel),
		tel:       tel,
		logger:    tel.Logger.NewComponentLogger("api"),
		startTime: time.Now(),
		done:      make(chan struct{}),
	}

	mux := http.NewServeMux()

	// Health + metrics
	mux.HandleFunc("GET /healthz", s.healthHandler)
	mux.Handle("GET /metrics", tel.Metrics.Handler())

	// Document
	mux.HandleFunc("GET /api/config", s.getConfigHandler)
	mux.HandleFunc("POST /api/config", s.updateConfigHandler)
	mux.HandleFunc("PUT /api/config/structured", s.updateStructuredHandler)
	mux.HandleFunc("POST /api/config/flush", s.flushHandler)

	// Editor support
	mux.HandleFunc("POST /api/completions", s.completionsHandler)
	mux.HandleFunc("GET /api/schema", s.schemaHandler)
	mux.HandleFunc("GET /api/events", s.eventStreamHandler)

	var handler http.Handler = mux
	handler = s.instrument(handler)
	handler = corsMiddleware(handler)
	handler = requestIDMiddleware(handler)
	handler = recoverMiddleware(s.logger, handler)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.httpServer.RegisterOnShutdown(s.stopStreams)
	return s
}

func (s *Server) stopStreams() {
	s.closeDone.Do(func() { close(s.done) })
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// ListenAndServe serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Zerolog().Info().
		Str("addr", ln.Addr().String()).
		Str("session_id", s.session.ID()).
		Msg("API server listening")

	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests, waits for in-flight ones, then flushes
// any pending save.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopStreams()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	if err := s.session.Flush(ctx); err != nil && !errors.Is(err, session.ErrClosed) {
		return err
	}
	return nil
}
