// Package http serves the monitor surface of the daemon: health, Prometheus
// metrics, recent window metrics and alerts per video, and a websocket
// stream of live alert reports. The server is read-only and optional; the
// polling pipeline never depends on it.
package http

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/flockwatch/flockwatch/internal/alert"
	"github.com/flockwatch/flockwatch/internal/persistence"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// Config holds monitor server configuration.
type Config struct {
	Listen       string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns the monitor server defaults.
func DefaultConfig() Config {
	return Config{
		Listen:       ":8087",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Deps are the read-only views the monitor exposes. Any nil dependency
// degrades its endpoint rather than failing server construction.
type Deps struct {
	Health  persistence.RepositoryHealth
	Windows persistence.WindowsRepo
	History *alert.History
	Metrics http.Handler
}

// Server is the monitor HTTP server.
type Server struct {
	router  *mux.Router
	server  *http.Server
	deps    Deps
	hub     *Hub
	started time.Time
}

// NewServer creates the monitor server. It does not listen until Start.
func NewServer(config Config, deps Deps) *Server {
	if config.Listen == "" {
		config.Listen = DefaultConfig().Listen
	}

	s := &Server{
		router:  mux.NewRouter(),
		deps:    deps,
		hub:     NewHub(),
		started: time.Now().UTC(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         config.Listen,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	// The websocket route stays outside the JSON subrouter and its request
	// timeout: stream connections are long-lived by design.
	s.router.HandleFunc("/ws/alerts", s.hub.handleAlertStream).Methods("GET")

	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics).Methods("GET")
	}

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(s.timeoutMiddleware)
	api.Use(jsonContentTypeMiddleware)
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/api/v1/videos/{id}/windows", s.handleWindows).Methods("GET")
	api.HandleFunc("/api/v1/videos/{id}/alerts", s.handleAlerts).Methods("GET")

	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
}

// AlertSink returns the sink feeding the websocket stream; the caller wires
// it into the alert reporter.
func (s *Server) AlertSink() alert.Sink {
	return s.hub
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens and serves until Shutdown or a listener error.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("Monitor server listening")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests and closes stream clients.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down monitor server")
	s.hub.Close()
	return s.server.Shutdown(ctx)
}

// requestIDMiddleware tags each request with a short id echoed in the
// X-Request-ID header.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs every request with its status and duration.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		log.Debug().
			Str("request_id", requestID(r)).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("Monitor request")
	})
}

// timeoutMiddleware bounds API request handling.
func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func requestID(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey).(string); ok {
		return id
	}
	return "unknown"
}

// responseWrapper captures the status code for request logging.
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade reach the underlying connection through
// the logging wrapper.
func (rw *responseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}
