/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/acronis/go-regkit/log"
)

// ErrGracefulStopTimeout is returned when the unit didn't stop gracefully in time and was stopped forcefully.
var ErrGracefulStopTimeout = errors.New("graceful stop timed out")

// Opts represents an options for Service.
type Opts struct {
	// ShutdownSignals stop the service. SIGINT and SIGTERM are used by New.
	ShutdownSignals []os.Signal

	// GracefulStopTimeout limits the time the unit may spend in Stop(true).
	// When it's exceeded, the unit is stopped forcefully. Zero means no limit.
	GracefulStopTimeout time.Duration
}

// Service runs a unit: it registers the unit's metrics, starts it
// and stops it on an OS signal or context cancellation.
type Service struct {
	Unit    Unit
	Signals chan os.Signal
	Logger  log.FieldLogger
	Opts    Opts
}

// New creates a Service stopping the unit on SIGINT or SIGTERM.
func New(logger log.FieldLogger, unit Unit) *Service {
	return NewWithOpts(logger, unit, Opts{ShutdownSignals: []os.Signal{syscall.SIGINT, syscall.SIGTERM}})
}

// NewWithOpts is a more configurable version of New.
func NewWithOpts(logger log.FieldLogger, unit Unit, opts Opts) *Service {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	return &Service{Unit: unit, Signals: make(chan os.Signal, 1), Logger: logger, Opts: opts}
}

// Start is StartContext with the background context.
func (s *Service) Start() error {
	return s.StartContext(context.Background())
}

// StartContext starts the unit in a separate goroutine and blocks until
// a fatal error occurs, ctx is done or a shutdown signal is received.
// Only a fatal error or a failed stop is returned.
func (s *Service) StartContext(ctx context.Context) error {
	if mr, ok := s.Unit.(MetricsRegisterer); ok {
		mr.MustRegisterMetrics()
		defer mr.UnregisterMetrics()
	}

	signal.Notify(s.Signals, s.Opts.ShutdownSignals...)
	defer signal.Stop(s.Signals)

	fatalError := make(chan error, 1)
	go s.Unit.Start(fatalError)

	select {
	case err := <-fatalError:
		s.Logger.Error("service fatal error", log.Error(err))
		return fmt.Errorf("fatal error: %w", err)
	case <-ctx.Done():
		s.Logger.Info("context is canceled, service will be stopped")
	case sig := <-s.Signals:
		s.Logger.Info("service got signal", log.String("signal", sig.String()))
	}
	return s.stop()
}

func (s *Service) stop() error {
	if s.Opts.GracefulStopTimeout <= 0 {
		if err := s.Unit.Stop(true); err != nil {
			return fmt.Errorf("stop service gracefully: %w", err)
		}
		return nil
	}

	stopped := make(chan error, 1)
	go func() { stopped <- s.Unit.Stop(true) }()

	timer := time.NewTimer(s.Opts.GracefulStopTimeout)
	defer timer.Stop()
	select {
	case err := <-stopped:
		if err != nil {
			return fmt.Errorf("stop service gracefully: %w", err)
		}
		return nil
	case <-timer.C:
	}

	s.Logger.Warn("service was not stopped gracefully in time, stopping forcefully",
		log.Duration("timeout", s.Opts.GracefulStopTimeout))
	if err := s.Unit.Stop(false); err != nil {
		return fmt.Errorf("stop service forcefully: %w", err)
	}
	return fmt.Errorf("%w after %s", ErrGracefulStopTimeout, s.Opts.GracefulStopTimeout)
}
