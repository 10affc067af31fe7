// Package api exposes the token service over HTTP with JSON bodies.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/hossein1376/walletauth"
)

const (
	Name    = "walletauth"
	Version = "1.0.0"

	maxBodySize       = 10 << 20
	readHeaderTimeout = 10 * time.Second
)

type Server struct {
	Addr    string
	service *walletauth.Service
	logger  *slog.Logger
	metrics *Metrics
	origins []string
	started time.Time
	http    *http.Server
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithAllowedOrigins sets the CORS allow list. "*" admits any origin, without
// credentials.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

func NewServer(addr string, service *walletauth.Service, opts ...Option) *Server {
	s := &Server{
		Addr:    addr,
		service: service,
		logger:  slog.Default(),
		origins: []string{"*"},
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /getUserId", s.handleGetUserID)
	mux.HandleFunc("POST /getUserToken", s.handleGetUserToken)
	mux.HandleFunc("POST /getUserTokenByMemo", s.handleGetUserTokenByMemo)
	mux.HandleFunc("POST /checkUserToken", s.handleCheckUserToken)
	mux.HandleFunc("GET /checkUserToken", s.handleCheckUserToken)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	mux.HandleFunc("/", s.handleNotFound)

	var h http.Handler = mux
	h = s.cors(h)
	h = securityHeaders(h)
	h = s.recoverPanic(h)
	h = s.logRequests(h)
	return h
}

func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.Addr, err)
	}
	return s.Serve(l)
}

// Serve blocks until the server is shut down. A graceful shutdown is not an
// error.
func (s *Server) Serve(l net.Listener) error {
	s.log(slog.LevelInfo, "listening", slog.String("addr", l.Addr().String()))
	err := s.http.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) log(lvl slog.Level, msg string, args ...any) {
	s.logger.Log(context.Background(), lvl, msg, args...)
}
