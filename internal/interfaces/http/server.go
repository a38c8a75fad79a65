package http

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/turtacn/ache-predictor/internal/config"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/pkg/errors"
)

const (
	defaultReadTimeout     = 30 * time.Second
	defaultWriteTimeout    = 5 * time.Minute
	defaultShutdownTimeout = 30 * time.Second
	idleTimeout            = 2 * time.Minute
)

// Server owns the HTTP listener.
type Server struct {
	srv             *http.Server
	shutdownTimeout time.Duration
	logger          logging.Logger

	mu       sync.Mutex
	listener net.Listener
}

// NewServer wraps handler with the timeouts from cfg. Zero timeouts fall
// back to defaults; the write timeout is generous because a prediction
// request blocks on the descriptor calculator.
func NewServer(cfg config.ServerConfig, handler http.Handler, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	read := orDefault(cfg.ReadTimeout, defaultReadTimeout)
	write := orDefault(cfg.WriteTimeout, defaultWriteTimeout)

	return &Server{
		srv: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:           handler,
			ReadTimeout:       read,
			ReadHeaderTimeout: read,
			WriteTimeout:      write,
			IdleTimeout:       idleTimeout,
		},
		shutdownTimeout: orDefault(cfg.ShutdownTimeout, defaultShutdownTimeout),
		logger:          logger.Named("http_server"),
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Addr is the configured address, or the bound one once Start has listened.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.srv.Addr
}

// Start listens and serves until Stop. It returns nil after a graceful stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to listen").WithDetail(s.srv.Addr)
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("HTTP server listening", logging.String("addr", ln.Addr().String()))
	if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, errors.ErrCodeInternal, "http server failed")
	}
	return nil
}

// Stop drains in-flight requests within the shutdown timeout.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, errors.ErrCodeTimeout, "http server shutdown failed")
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

//Personal.AI order the ending
