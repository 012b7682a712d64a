/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package readiness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/atomic"

	"github.com/acronis/go-regkit/log"
	"github.com/acronis/go-regkit/retry"
	"github.com/acronis/go-regkit/service"
)

// ErrNotReady is returned by ProbeSource.Run when the probe never reported readiness.
var ErrNotReady = errors.New("dependency is not ready")

// Default values for ProbeSourceOpts.
const (
	DefaultProbeInterval = 100 * time.Millisecond
)

// Probe asks the host engine whether it is fully operational.
// An error means the probe itself failed; it is logged and the probe is retried like a negative answer.
type Probe func(ctx context.Context) (bool, error)

// ProbeSourceOpts contains optional parameters for constructing ProbeSource.
type ProbeSourceOpts struct {
	// Interval between two probe calls. DefaultProbeInterval is used if zero.
	Interval time.Duration

	// MaxAttempts limits the number of probe calls. Zero means probing until the context is done.
	MaxAttempts int
}

// ProbeSource is a Source driven by polling a Probe.
// It implements service.Worker, so it can be hosted by service.WorkerUnit next to the coordinator.
type ProbeSource struct {
	*Signal
	probe    Probe
	policy   retry.Policy
	logger   log.FieldLogger
	attempts atomic.Int32
}

var _ service.Worker = (*ProbeSource)(nil)

// NewProbeSource creates a new ProbeSource with default options.
func NewProbeSource(probe Probe, logger log.FieldLogger) *ProbeSource {
	return NewProbeSourceWithOpts(probe, logger, ProbeSourceOpts{})
}

// NewProbeSourceWithOpts creates a new ProbeSource.
func NewProbeSourceWithOpts(probe Probe, logger log.FieldLogger, opts ProbeSourceOpts) *ProbeSource {
	if opts.Interval == 0 {
		opts.Interval = DefaultProbeInterval
	}
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	var policy retry.Policy = retry.NewConstantBackoffPolicy(opts.Interval, 0)
	if opts.MaxAttempts > 0 {
		interval, maxRetries := opts.Interval, uint64(opts.MaxAttempts-1)
		policy = retry.PolicyFunc(func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), maxRetries)
		})
	}
	return &ProbeSource{
		Signal: NewSignal(),
		probe:  probe,
		policy: policy,
		logger: logger,
	}
}

// Attempts returns how many times the probe has been called.
func (ps *ProbeSource) Attempts() int {
	return int(ps.attempts.Load())
}

// Run polls the probe until it reports readiness, the attempts are exhausted or ctx is done.
// On success the underlying Signal is marked ready and nil is returned.
func (ps *ProbeSource) Run(ctx context.Context) error {
	if ps.IsReady() {
		return nil
	}
	ps.logger.Info("waiting for readiness probe")
	started := time.Now()

	notify := func(err error, next time.Duration) {
		ps.logger.Debug("dependency is not ready yet",
			log.Int("attempt", ps.Attempts()), log.Duration("next_probe_in", next), log.Error(err))
	}
	err := retry.DoWithRetry(ctx, ps.policy, nil, notify, func(ctx context.Context) error {
		ps.attempts.Inc()
		ready, probeErr := ps.probe(ctx)
		if probeErr != nil {
			return fmt.Errorf("probe failed: %w", probeErr)
		}
		if !ready {
			return ErrNotReady
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ps.logger.Error("dependency did not become ready", log.Int("attempts", ps.Attempts()), log.Error(err))
		if errors.Is(err, ErrNotReady) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}

	ps.MarkReady()
	ps.logger.Info("dependency is ready", log.Int("attempts", ps.Attempts()),
		log.DurationIn(time.Since(started), time.Millisecond))
	return nil
}
