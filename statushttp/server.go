/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package statushttp exposes the registration progress over HTTP: a health-check with per-unit components
// and Prometheus metrics. Server implements service.Unit, so it can be hosted next to the coordinator.
package statushttp

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/atomic"

	"github.com/acronis/go-regkit/log"
	"github.com/acronis/go-regkit/service"
)

// Opts represents options for creating Server.
type Opts struct {
	RouterOpts
	// Listener is a pre-configured network listener to use instead of creating a new one.
	Listener net.Listener
}

// Server represents a wrapper around http.Server serving the status router.
type Server struct {
	HTTPServer      *http.Server
	HTTPRouter      chi.Router
	Logger          log.FieldLogger
	ShutdownTimeout time.Duration

	listener       net.Listener
	addr           atomic.String
	httpServerDone chan struct{}
}

var _ service.Unit = (*Server)(nil)

// New creates a new Server.
func New(cfg *Config, coordinator CoordinatorStatus, logger log.FieldLogger, opts Opts) *Server {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	if opts.ExcludedEndpoints == nil {
		opts.ExcludedEndpoints = cfg.Log.ExcludedEndpoints
	}
	router := NewRouter(coordinator, logger, opts.RouterOpts)
	return &Server{
		HTTPServer: &http.Server{
			Addr:              cfg.Address,
			WriteTimeout:      time.Duration(cfg.Timeouts.Write),
			ReadTimeout:       time.Duration(cfg.Timeouts.Read),
			ReadHeaderTimeout: time.Duration(cfg.Timeouts.ReadHeader),
			IdleTimeout:       time.Duration(cfg.Timeouts.Idle),
			Handler:           router,
		},
		HTTPRouter:      router,
		Logger:          logger,
		ShutdownTimeout: time.Duration(cfg.Timeouts.Shutdown),
		listener:        opts.Listener,
		httpServerDone:  make(chan struct{}),
	}
}

// Addr returns the address the server listens on. It is empty until the server has started listening.
func (s *Server) Addr() string {
	return s.addr.Load()
}

// Start starts the status HTTP server in a blocking way.
// It's supposed that this method will be called in a separate goroutine.
// If a fatal error occurs, it will be sent to the fatalError channel.
func (s *Server) Start(fatalError chan<- error) {
	defer close(s.httpServerDone)

	logger := s.Logger.With(
		log.String("address", s.HTTPServer.Addr),
		log.Duration("write_timeout", s.HTTPServer.WriteTimeout),
		log.Duration("read_timeout", s.HTTPServer.ReadTimeout),
		log.Duration("shutdown_timeout", s.ShutdownTimeout),
	)
	logger.Info("starting status HTTP server...")

	if s.listener == nil {
		listener, err := net.Listen("tcp", s.HTTPServer.Addr)
		if err != nil {
			logger.Error("status HTTP server error", log.Error(err))
			fatalError <- err
			return
		}
		s.listener = listener
	}
	s.addr.Store(s.listener.Addr().String())

	if err := s.HTTPServer.Serve(s.listener); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("status HTTP server closed")
			return
		}
		logger.Error("status HTTP server error", log.Error(err))
		fatalError <- err
	}
}

// Stop stops the status HTTP server (gracefully or not).
func (s *Server) Stop(gracefully bool) error {
	if !gracefully {
		s.Logger.Info("closing status HTTP server...")
		if err := s.HTTPServer.Close(); err != nil {
			s.Logger.Error("status HTTP server closing error", log.Error(err))
			return err
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()

	s.Logger.Info("shutting down status HTTP server...", log.Duration("timeout", s.ShutdownTimeout))
	if err := s.HTTPServer.Shutdown(ctx); err != nil {
		s.Logger.Error("status HTTP server shutting down error", log.Error(err))
		return err
	}
	s.Logger.Info("status HTTP server shut down")
	return nil
}

// Done returns a channel that is closed when Start has returned.
func (s *Server) Done() <-chan struct{} {
	return s.httpServerDone
}
