/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package regcoord registers a set of one-shot units (plugins, capability modules) against an embedded
// engine exactly once, and only after the engine reports readiness.
//
// Units declared as TimingImmediate run synchronously inside Start. TimingDeferred units run as soon as
// the readiness.Source is ready: synchronously inside Start if it already is, otherwise from the
// readiness callback. A failed attempt is retried after a doubling backoff delay until MaxAttempts is
// reached; then the unit is failed, and depending on Config.ContinueOnFailure the coordinator either
// goes on with the other units or aborts.
package regcoord

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/xid"

	"github.com/acronis/go-regkit/log"
	"github.com/acronis/go-regkit/readiness"
	"github.com/acronis/go-regkit/retry"
)

// Opts contains optional parameters for constructing Coordinator.
type Opts struct {
	// MetricsCollector receives attempt and state metrics. Metrics are disabled if nil.
	MetricsCollector MetricsCollector

	// EventHandlers receive an Event for every finished attempt and every skipped unit.
	EventHandlers []EventHandler
}

type unitEntry struct {
	unit     Unit
	state    UnitState
	attempts int
	lastErr  error
	backOff  backoff.BackOff
	timer    *time.Timer
}

func (e *unitEntry) status() UnitStatus {
	return UnitStatus{ID: e.unit.ID, Timing: e.unit.Timing, State: e.state, Attempts: e.attempts, LastErr: e.lastErr}
}

// Coordinator sequences registration units against a readiness source.
// All its methods are safe for concurrent use.
type Coordinator struct {
	source            readiness.Source
	policy            retry.Policy
	maxAttempts       int
	continueOnFailure bool
	logger            log.FieldLogger
	metrics           MetricsCollector
	eventHandlers     []EventHandler
	runID             string

	mu            sync.Mutex
	state         State
	units         []*unitEntry
	unitsByID     map[string]*unitEntry
	deferredQueue []*unitEntry
	unsettled     int
	abortErr      *CoordinatorAbortedError
	done          chan struct{}
	inFlight      sync.WaitGroup
}

// New creates a new Coordinator. Default config is used if cfg is nil.
func New(source readiness.Source, cfg *Config, logger log.FieldLogger) (*Coordinator, error) {
	return NewWithOpts(source, cfg, logger, Opts{})
}

// NewWithOpts creates a new Coordinator with an ability to specify different optional parameters.
func NewWithOpts(source readiness.Source, cfg *Config, logger log.FieldLogger, opts Opts) (*Coordinator, error) {
	if source == nil {
		return nil, fmt.Errorf("readiness source is required")
	}
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid registration config: %w", err)
	}
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	metrics := opts.MetricsCollector
	if metrics == nil {
		metrics = disabledMetricsCollector
	}
	runID := xid.New().String()
	c := &Coordinator{
		source:            source,
		policy:            cfg.BackoffPolicy(),
		maxAttempts:       cfg.MaxAttempts,
		continueOnFailure: cfg.ContinueOnFailure,
		logger:            logger.With(log.String("run_id", runID)),
		metrics:           metrics,
		eventHandlers:     append([]EventHandler(nil), opts.EventHandlers...),
		runID:             runID,
		state:             StateIdle,
		unitsByID:         make(map[string]*unitEntry),
		done:              make(chan struct{}),
	}
	c.metrics.SetState(StateIdle)
	return c, nil
}

// RunID returns the unique identifier of this coordinator instance. It is attached to logs and events.
func (c *Coordinator) RunID() string {
	return c.runID
}

// notifications are collected under the lock and delivered after it is released.
type notifications struct {
	events      []Event
	transitions [][2]State
}

// Submit adds a unit to the pending set.
//
// It fails with *LateSubmissionError once draining has begun and with *DuplicateUnitError if a unit
// with the same ID has already reached a terminal state. Resubmitting a unit that is still pending is a no-op.
// While the coordinator waits for readiness, an immediate unit is run synchronously inside Submit
// and a deferred unit joins the queue drained on readiness.
func (c *Coordinator) Submit(u Unit) error {
	if u.ID == "" {
		return fmt.Errorf("%w: empty ID", ErrInvalidUnit)
	}
	if u.Action == nil {
		return fmt.Errorf("%w: unit %q has no action", ErrInvalidUnit, u.ID)
	}

	c.mu.Lock()
	if !c.state.acceptsSubmissions() {
		state := c.state
		c.mu.Unlock()
		return &LateSubmissionError{UnitID: u.ID, State: state}
	}
	if existing, ok := c.unitsByID[u.ID]; ok {
		existingState := existing.state
		c.mu.Unlock()
		if existingState.IsTerminal() {
			return &DuplicateUnitError{UnitID: u.ID, State: existingState}
		}
		c.logger.Warn("duplicate unit submission ignored",
			log.String("unit", u.ID), log.String("unit_state", string(existingState)))
		return nil
	}
	e := c.addEntryLocked(u)
	runNow := false
	if c.state == StateWaitingForReadiness {
		if u.Timing == TimingImmediate {
			runNow = true
		} else {
			c.deferredQueue = append(c.deferredQueue, e)
		}
	}
	c.mu.Unlock()

	c.logger.Debug("unit submitted", log.String("unit", u.ID), log.String("timing", u.Timing.String()))
	if runNow {
		c.runAttempt(e, true)
	}
	return nil
}

func (c *Coordinator) addEntryLocked(u Unit) *unitEntry {
	e := &unitEntry{unit: u, state: UnitPending, backOff: c.policy.NewBackOff()}
	c.units = append(c.units, e)
	c.unitsByID[u.ID] = e
	c.unsettled++
	return e
}

// Start transitions the coordinator out of Idle. It never blocks waiting for readiness:
// it runs immediate units (and deferred ones, if the source is already ready) synchronously and
// arms the readiness subscription otherwise.
//
// It returns *CoordinatorAbortedError if the coordinator aborted before Start returned.
func (c *Coordinator) Start() error {
	var n notifications

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	if len(c.units) == 0 {
		c.setStateLocked(StateSettled, &n)
		c.mu.Unlock()
		c.deliver(n)
		return nil
	}
	var immediate, deferred []*unitEntry
	for _, e := range c.units {
		if e.unit.Timing == TimingImmediate {
			immediate = append(immediate, e)
		} else {
			deferred = append(deferred, e)
		}
	}
	ready := c.source.IsReady()
	waitForReadiness := len(deferred) > 0 && !ready
	if waitForReadiness {
		c.deferredQueue = deferred
		c.setStateLocked(StateWaitingForReadiness, &n)
	} else {
		c.setStateLocked(StateDraining, &n)
	}
	c.mu.Unlock()
	c.deliver(n)

	c.logger.Info("registration coordinator started",
		log.Int("immediate_units", len(immediate)), log.Int("deferred_units", len(deferred)),
		log.Bool("ready", ready))

	c.drain(immediate)
	if len(deferred) > 0 {
		if waitForReadiness {
			c.logger.Info("waiting for readiness before registering deferred units")
			c.source.OnReady(c.onReady)
		} else {
			c.drain(deferred)
		}
	}
	return c.startErr()
}

func (c *Coordinator) startErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.abortErr != nil {
		return c.abortErr
	}
	return nil
}

func (c *Coordinator) onReady() {
	var n notifications
	c.mu.Lock()
	if c.state != StateWaitingForReadiness {
		c.mu.Unlock()
		return
	}
	queue := c.deferredQueue
	c.deferredQueue = nil
	c.setStateLocked(StateDraining, &n)
	c.maybeSettleLocked(&n)
	c.mu.Unlock()
	c.deliver(n)

	c.logger.Info("readiness signal received", log.Int("deferred_units", len(queue)))
	c.drain(queue)
}

// drain runs first attempts in order and stops as soon as the coordinator is aborted.
func (c *Coordinator) drain(entries []*unitEntry) {
	for _, e := range entries {
		if !c.runAttempt(e, true) {
			return
		}
	}
}

// runAttempt runs one attempt of the unit's action and schedules a retry on failure.
// It returns false if the coordinator is aborted.
func (c *Coordinator) runAttempt(e *unitEntry, first bool) bool {
	c.mu.Lock()
	if c.state == StateAborted {
		c.mu.Unlock()
		return false
	}
	if e.state != UnitPending || (first && e.attempts != 0) {
		c.mu.Unlock()
		return true
	}
	e.state = UnitRunning
	e.attempts++
	e.timer = nil
	attempt := e.attempts
	c.inFlight.Add(1)
	c.mu.Unlock()

	started := time.Now()
	err := c.invoke(e.unit, attempt)
	elapsed := time.Since(started)

	var n notifications
	c.mu.Lock()
	ev := Event{
		RunID: c.runID, UnitID: e.unit.ID, Timing: e.unit.Timing, Attempt: attempt,
		Duration: elapsed, Time: time.Now(),
	}
	if err == nil {
		e.state = UnitSucceeded
		e.lastErr = nil
		c.unsettled--
		ev.Outcome = OutcomeSucceeded
		n.events = append(n.events, ev)
	} else {
		failure := &RegistrationFailure{UnitID: e.unit.ID, Attempt: attempt, Cause: err}
		e.lastErr = failure
		ev.Err = failure
		next := backoff.Stop
		if attempt < c.maxAttempts {
			next = e.backOff.NextBackOff()
		}
		if c.state == StateAborted && next != backoff.Stop {
			// Attempts are not exhausted, the unit just won't be retried.
			e.state = UnitPending
			ev.Outcome = OutcomeSkipped
			n.events = append(n.events, ev)
		} else if next != backoff.Stop {
			e.state = UnitPending
			e.timer = time.AfterFunc(next, func() { c.runAttempt(e, false) })
			ev.Outcome = OutcomeRetrying
			ev.NextDelay = next
			n.events = append(n.events, ev)
		} else {
			e.state = UnitFailed
			c.unsettled--
			ev.Outcome = OutcomeFailed
			n.events = append(n.events, ev)
			if !c.continueOnFailure {
				c.abortLocked(&CoordinatorAbortedError{UnitID: e.unit.ID, Attempts: attempt, Cause: failure}, &n)
			}
		}
	}
	c.maybeSettleLocked(&n)
	aborted := c.state == StateAborted
	c.mu.Unlock()
	c.inFlight.Done()
	c.deliver(n)
	return !aborted
}

// invoke calls the action converting a panic into an error, so a misbehaving unit
// becomes an attributed failure instead of crashing the process.
func (c *Coordinator) invoke(u Unit, attempt int) (err error) {
	defer func() {
		if p := recover(); p != nil {
			const logStackSize = 8192
			stack := make([]byte, logStackSize)
			stack = stack[:runtime.Stack(stack, false)]
			c.logger.Error(fmt.Sprintf("panic in registration action: %+v", p),
				log.String("unit", u.ID), log.Int("attempt", attempt), log.String("stack", string(stack)))
			err = fmt.Errorf("%w: %v", ErrUnitPanicked, p)
		}
	}()
	return u.Action()
}

func (c *Coordinator) maybeSettleLocked(n *notifications) {
	if c.state == StateDraining && c.unsettled == 0 {
		c.setStateLocked(StateSettled, n)
	}
}

func (c *Coordinator) abortLocked(cause *CoordinatorAbortedError, n *notifications) {
	if c.state.IsTerminal() {
		return
	}
	c.abortErr = cause
	now := time.Now()
	for _, e := range c.units {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		if e.state == UnitPending {
			n.events = append(n.events, Event{
				RunID: c.runID, UnitID: e.unit.ID, Timing: e.unit.Timing, Attempt: e.attempts,
				Outcome: OutcomeSkipped, Err: cause, Time: now,
			})
		}
	}
	c.deferredQueue = nil
	c.setStateLocked(StateAborted, n)
}

func (c *Coordinator) setStateLocked(state State, n *notifications) {
	if c.state == state {
		return
	}
	n.transitions = append(n.transitions, [2]State{c.state, state})
	c.state = state
	c.metrics.SetState(state)
	if state.IsTerminal() {
		close(c.done)
	}
}

func (c *Coordinator) deliver(n notifications) {
	for _, ev := range n.events {
		c.logEvent(ev)
		if ev.Outcome != OutcomeSkipped {
			c.metrics.IncAttempts(ev.UnitID, ev.Outcome)
			c.metrics.ObserveAttemptDuration(ev.UnitID, ev.Duration)
		}
		for _, h := range c.eventHandlers {
			c.handleEvent(h, ev)
		}
	}
	for _, tr := range n.transitions {
		from, to := tr[0], tr[1]
		switch to {
		case StateSettled:
			c.logger.Info("registration coordinator settled",
				log.String("from_state", string(from)), log.Int("units", len(c.Units())))
		case StateAborted:
			c.logger.Error("registration coordinator aborted",
				log.String("from_state", string(from)), log.Error(c.Err()))
		default:
			c.logger.Debug("registration coordinator state changed",
				log.String("from_state", string(from)), log.String("to_state", string(to)))
		}
	}
}

func (c *Coordinator) handleEvent(h EventHandler, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			c.logger.Error(fmt.Sprintf("panic in registration event handler: %+v", p),
				log.String("unit", ev.UnitID), log.String("outcome", string(ev.Outcome)))
		}
	}()
	h(ev)
}

func (c *Coordinator) logEvent(ev Event) {
	fields := []log.Field{log.String("unit", ev.UnitID), log.Int("attempt", ev.Attempt)}
	switch ev.Outcome {
	case OutcomeSucceeded:
		c.logger.Info("unit registered", append(fields, log.DurationIn(ev.Duration, time.Millisecond))...)
	case OutcomeRetrying:
		c.logger.Warn("unit registration failed, will retry",
			append(fields, log.Duration("next_attempt_in", ev.NextDelay), log.Error(ev.Err))...)
	case OutcomeFailed:
		c.logger.Error("unit registration failed, attempts exhausted", append(fields, log.Error(ev.Err))...)
	case OutcomeSkipped:
		if ev.Err != nil {
			fields = append(fields, log.Error(ev.Err))
		}
		c.logger.Warn("unit skipped", fields...)
	}
}

// Stop aborts the coordinator: pending backoff timers are canceled and no further attempts are made.
// An action that is running is not interrupted. Units that have already succeeded remain so.
// Stop has no effect on a settled coordinator.
func (c *Coordinator) Stop() {
	var n notifications
	c.mu.Lock()
	c.abortLocked(&CoordinatorAbortedError{Cause: ErrStopped}, &n)
	c.mu.Unlock()
	c.deliver(n)
}

// WaitInFlight blocks until the coordinator is settled or aborted and no unit action is running anymore.
// Call it after Stop to wait for actions that Stop doesn't interrupt.
func (c *Coordinator) WaitInFlight() {
	// No attempt starts once the coordinator is terminal, so Wait can't race with Add.
	<-c.done
	c.inFlight.Wait()
}

// Status returns the current state of the coordinator.
func (c *Coordinator) Status() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Units returns statuses of all submitted units in submission order.
func (c *Coordinator) Units() []UnitStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := make([]UnitStatus, 0, len(c.units))
	for _, e := range c.units {
		res = append(res, e.status())
	}
	return res
}

// Unit returns the status of the unit with the given ID.
func (c *Coordinator) Unit(id string) (UnitStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.unitsByID[id]
	if !ok {
		return UnitStatus{}, false
	}
	return e.status(), true
}

// Done returns a channel that is closed when the coordinator is settled or aborted.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Err returns *CoordinatorAbortedError if the coordinator has aborted, nil otherwise.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.abortErr == nil {
		return nil
	}
	return c.abortErr
}

// Wait blocks until the coordinator reaches a terminal state or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) (State, error) {
	select {
	case <-c.done:
		return c.Status(), c.Err()
	case <-ctx.Done():
		return c.Status(), ctx.Err()
	}
}
