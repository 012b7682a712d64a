/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package regcoord

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-regkit/log"
	"github.com/acronis/go-regkit/log/logtest"
	"github.com/acronis/go-regkit/readiness"
	"github.com/acronis/go-regkit/testutil"
)

func TestNew(t *testing.T) {
	t.Run("nil source", func(t *testing.T) {
		_, err := New(nil, nil, nil)
		require.Error(t, err)
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := New(readiness.NewSignal(), makeTestConfig(0, time.Second, 3, true), nil)
		require.EqualError(t, err, "invalid registration config: baseDelay: should be > 0")
	})

	t.Run("defaults", func(t *testing.T) {
		c, err := New(readiness.NewSignal(), nil, nil)
		require.NoError(t, err)
		require.Equal(t, StateIdle, c.Status())
		require.NotEmpty(t, c.RunID())
		require.Empty(t, c.Units())
		require.NoError(t, c.Err())
	})
}

func TestCoordinator_DefersUntilReadiness(t *testing.T) {
	signal := readiness.NewSignal()
	events := &eventLog{}
	logRecorder := logtest.NewRecorder()
	c, err := NewWithOpts(signal, makeTestConfig(10*time.Millisecond, time.Second, 3, true), logRecorder,
		Opts{EventHandlers: []EventHandler{events.Handle}})
	require.NoError(t, err)

	actionA, actionB, actionC := newFlakyAction(0), newFlakyAction(0), newFlakyAction(2)
	require.NoError(t, c.Submit(Unit{ID: "A", Timing: TimingImmediate, Action: actionA.Run}))
	require.NoError(t, c.Submit(Unit{ID: "B", Timing: TimingDeferred, Action: actionB.Run}))
	require.NoError(t, c.Submit(Unit{ID: "C", Timing: TimingDeferred, Action: actionC.Run}))

	require.NoError(t, c.Start())

	// Immediate units run synchronously inside Start.
	require.Equal(t, 1, actionA.Calls())
	require.Equal(t, 0, actionB.Calls())
	require.Equal(t, 0, actionC.Calls())
	require.Equal(t, StateWaitingForReadiness, c.Status())

	var readyAt time.Time
	var readyMu sync.Mutex
	go func() {
		time.Sleep(50 * time.Millisecond)
		readyMu.Lock()
		readyAt = time.Now()
		readyMu.Unlock()
		signal.MarkReady()
	}()

	state, err := waitTerminal(t, c)
	require.NoError(t, err)
	require.Equal(t, StateSettled, state)

	readyMu.Lock()
	defer readyMu.Unlock()
	require.False(t, actionB.CallTimes()[0].Before(readyAt))
	require.False(t, actionC.CallTimes()[0].Before(readyAt))

	require.Equal(t, 1, actionB.Calls())
	require.Equal(t, 3, actionC.Calls())
	cCalls := actionC.CallTimes()
	require.GreaterOrEqual(t, cCalls[1].Sub(cCalls[0]), 10*time.Millisecond)
	require.GreaterOrEqual(t, cCalls[2].Sub(cCalls[1]), 20*time.Millisecond)

	require.Equal(t, []UnitStatus{
		{ID: "A", Timing: TimingImmediate, State: UnitSucceeded, Attempts: 1},
		{ID: "B", Timing: TimingDeferred, State: UnitSucceeded, Attempts: 1},
		{ID: "C", Timing: TimingDeferred, State: UnitSucceeded, Attempts: 3},
	}, c.Units())

	cEvents := events.ForUnit("C")
	require.Len(t, cEvents, 3)
	for i, wantOutcome := range []Outcome{OutcomeRetrying, OutcomeRetrying, OutcomeSucceeded} {
		require.Equal(t, i+1, cEvents[i].Attempt)
		require.Equal(t, wantOutcome, cEvents[i].Outcome)
		require.Equal(t, c.RunID(), cEvents[i].RunID)
	}
	require.Equal(t, 10*time.Millisecond, cEvents[0].NextDelay)
	require.Equal(t, 20*time.Millisecond, cEvents[1].NextDelay)
	require.ErrorIs(t, cEvents[0].Err, errEngineBusy)

	_, found := logRecorder.FindEntry("readiness signal received")
	require.True(t, found)
	settledEntry, found := logRecorder.FindEntry("registration coordinator settled")
	require.True(t, found)
	require.Equal(t, log.LevelInfo, settledEntry.Level)
}

func TestCoordinator_AlreadyReady(t *testing.T) {
	c, err := New(readiness.NewReadySignal(), makeTestConfig(10*time.Millisecond, time.Second, 3, true), nil)
	require.NoError(t, err)

	actionA, actionB := newFlakyAction(0), newFlakyAction(0)
	require.NoError(t, c.Submit(Unit{ID: "A", Timing: TimingImmediate, Action: actionA.Run}))
	require.NoError(t, c.Submit(Unit{ID: "B", Timing: TimingDeferred, Action: actionB.Run}))

	require.NoError(t, c.Start())

	// Everything ran synchronously inside Start.
	require.Equal(t, StateSettled, c.Status())
	require.Equal(t, 1, actionA.Calls())
	require.Equal(t, 1, actionB.Calls())
	testutil.RequireChannelClosed(t, c.Done(), time.Second)
}

func TestCoordinator_RunsUnitsInSubmissionOrder(t *testing.T) {
	signal := readiness.NewSignal()
	c, err := New(signal, nil, nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	for _, id := range []string{"d1", "i1", "d2", "i2", "d3"} {
		id := id
		timing := TimingDeferred
		if strings.HasPrefix(id, "i") {
			timing = TimingImmediate
		}
		require.NoError(t, c.Submit(Unit{ID: id, Timing: timing, Action: func() error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, id)
			return nil
		}}))
	}
	require.NoError(t, c.Start())
	signal.MarkReady()

	state, err := waitTerminal(t, c)
	require.NoError(t, err)
	require.Equal(t, StateSettled, state)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"i1", "i2", "d1", "d2", "d3"}, order)
}

func TestCoordinator_StartWithoutUnits(t *testing.T) {
	c, err := New(readiness.NewSignal(), nil, nil)
	require.NoError(t, err)
	require.NoError(t, c.Start())
	require.Equal(t, StateSettled, c.Status())
	require.ErrorIs(t, c.Start(), ErrAlreadyStarted)
}

func TestCoordinator_OnlyImmediateUnitsDoNotWaitForReadiness(t *testing.T) {
	c, err := New(readiness.NewSignal(), nil, nil)
	require.NoError(t, err)
	action := newFlakyAction(0)
	require.NoError(t, c.Submit(Unit{ID: "A", Timing: TimingImmediate, Action: action.Run}))
	require.NoError(t, c.Start())
	require.Equal(t, StateSettled, c.Status())
	require.Equal(t, 1, action.Calls())
}

func TestCoordinator_ExhaustsAttempts(t *testing.T) {
	const maxAttempts = 5
	events := &eventLog{}
	c, err := NewWithOpts(readiness.NewReadySignal(),
		makeTestConfig(10*time.Millisecond, 25*time.Millisecond, maxAttempts, true), nil,
		Opts{EventHandlers: []EventHandler{events.Handle}})
	require.NoError(t, err)

	action := newFlakyAction(-1)
	require.NoError(t, c.Submit(Unit{ID: "broken", Action: action.Run}))
	require.NoError(t, c.Start())

	state, err := waitTerminal(t, c)
	require.NoError(t, err)
	require.Equal(t, StateSettled, state)
	require.Equal(t, maxAttempts, action.Calls())

	status, ok := c.Unit("broken")
	require.True(t, ok)
	require.Equal(t, UnitFailed, status.State)
	require.Equal(t, maxAttempts, status.Attempts)
	var failure *RegistrationFailure
	require.ErrorAs(t, status.LastErr, &failure)
	require.Equal(t, "broken", failure.UnitID)
	require.Equal(t, maxAttempts, failure.Attempt)
	require.ErrorIs(t, status.LastErr, errEngineBusy)

	unitEvents := events.ForUnit("broken")
	require.Len(t, unitEvents, maxAttempts)
	var delays []time.Duration
	for _, ev := range unitEvents[:maxAttempts-1] {
		require.Equal(t, OutcomeRetrying, ev.Outcome)
		delays = append(delays, ev.NextDelay)
	}
	require.Equal(t, OutcomeFailed, unitEvents[maxAttempts-1].Outcome)
	require.Equal(t, []time.Duration{
		10 * time.Millisecond, 20 * time.Millisecond, 25 * time.Millisecond, 25 * time.Millisecond,
	}, delays)

	callTimes := action.CallTimes()
	for i := 1; i < len(callTimes); i++ {
		require.GreaterOrEqual(t, callTimes[i].Sub(callTimes[i-1]), delays[i-1])
	}
}

func TestCoordinator_ContinueOnFailure(t *testing.T) {
	c, err := New(readiness.NewReadySignal(), makeTestConfig(time.Millisecond, time.Millisecond, 1, true), nil)
	require.NoError(t, err)

	failing, next := newFlakyAction(-1), newFlakyAction(0)
	require.NoError(t, c.Submit(Unit{ID: "failing", Action: failing.Run}))
	require.NoError(t, c.Submit(Unit{ID: "next", Action: next.Run}))
	require.NoError(t, c.Start())

	require.Equal(t, StateSettled, c.Status())
	require.NoError(t, c.Err())
	require.Equal(t, 1, failing.Calls())
	require.Equal(t, 1, next.Calls())
	status, _ := c.Unit("failing")
	require.Equal(t, UnitFailed, status.State)
}

func TestCoordinator_AbortOnFailure(t *testing.T) {
	signal := readiness.NewSignal()
	events := &eventLog{}
	logRecorder := logtest.NewRecorder()
	c, err := NewWithOpts(signal, makeTestConfig(20*time.Millisecond, 20*time.Millisecond, 2, false),
		logRecorder, Opts{EventHandlers: []EventHandler{events.Handle}})
	require.NoError(t, err)

	failing, next := newFlakyAction(-1), newFlakyAction(0)
	require.NoError(t, c.Submit(Unit{ID: "failing", Timing: TimingImmediate, Action: failing.Run}))
	require.NoError(t, c.Submit(Unit{ID: "next", Timing: TimingDeferred, Action: next.Run}))

	// The first attempt fails inside Start, the second one runs on the backoff timer
	// while the coordinator is still waiting for readiness.
	require.NoError(t, c.Start())
	require.Equal(t, StateWaitingForReadiness, c.Status())

	state, err := waitTerminal(t, c)
	require.Equal(t, StateAborted, state)
	require.ErrorIs(t, err, ErrCoordinatorAborted)
	require.ErrorIs(t, err, errEngineBusy)

	var abortErr *CoordinatorAbortedError
	require.ErrorAs(t, err, &abortErr)
	require.Equal(t, "failing", abortErr.UnitID)
	require.Equal(t, 2, abortErr.Attempts)
	var failure *RegistrationFailure
	require.ErrorAs(t, err, &failure)
	require.Equal(t, 2, failure.Attempt)

	require.Equal(t, 2, failing.Calls())
	status, _ := c.Unit("next")
	require.Equal(t, UnitPending, status.State)

	nextEvents := events.ForUnit("next")
	require.Len(t, nextEvents, 1)
	require.Equal(t, OutcomeSkipped, nextEvents[0].Outcome)

	_, found := logRecorder.FindEntry("registration coordinator aborted")
	require.True(t, found)

	// Nothing is resumed by a late readiness or submission.
	require.ErrorIs(t, c.Submit(Unit{ID: "late", Action: next.Run}), ErrLateSubmission)
	signal.MarkReady()
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, 0, next.Calls())
}

func TestCoordinator_AbortReturnedFromStart(t *testing.T) {
	c, err := New(readiness.NewReadySignal(), makeTestConfig(time.Millisecond, time.Millisecond, 1, false), nil)
	require.NoError(t, err)

	failing, next := newFlakyAction(-1), newFlakyAction(0)
	require.NoError(t, c.Submit(Unit{ID: "failing", Timing: TimingImmediate, Action: failing.Run}))
	require.NoError(t, c.Submit(Unit{ID: "next", Timing: TimingDeferred, Action: next.Run}))

	err = c.Start()
	require.ErrorIs(t, err, ErrCoordinatorAborted)
	require.Equal(t, StateAborted, c.Status())
	require.Equal(t, 0, next.Calls())
}

func TestCoordinator_LateSubmission(t *testing.T) {
	t.Run("after settle", func(t *testing.T) {
		c, err := New(readiness.NewReadySignal(), nil, nil)
		require.NoError(t, err)
		require.NoError(t, c.Start())
		require.Equal(t, StateSettled, c.Status())

		err = c.Submit(Unit{ID: "late", Action: newFlakyAction(0).Run})
		require.ErrorIs(t, err, ErrLateSubmission)
		var lateErr *LateSubmissionError
		require.ErrorAs(t, err, &lateErr)
		require.Equal(t, "late", lateErr.UnitID)
		require.Equal(t, StateSettled, lateErr.State)
		_, ok := c.Unit("late")
		require.False(t, ok)
	})

	t.Run("while draining", func(t *testing.T) {
		c, err := New(readiness.NewReadySignal(), nil, nil)
		require.NoError(t, err)

		var submitErr error
		require.NoError(t, c.Submit(Unit{ID: "A", Action: func() error {
			submitErr = c.Submit(Unit{ID: "B", Action: newFlakyAction(0).Run})
			return nil
		}}))
		require.NoError(t, c.Start())

		var lateErr *LateSubmissionError
		require.ErrorAs(t, submitErr, &lateErr)
		require.Equal(t, StateDraining, lateErr.State)
		require.Len(t, c.Units(), 1)
	})

	t.Run("while waiting for readiness", func(t *testing.T) {
		signal := readiness.NewSignal()
		c, err := New(signal, nil, nil)
		require.NoError(t, err)
		require.NoError(t, c.Submit(Unit{ID: "D1", Action: newFlakyAction(0).Run}))
		require.NoError(t, c.Start())
		require.Equal(t, StateWaitingForReadiness, c.Status())

		immediate, deferred := newFlakyAction(0), newFlakyAction(0)
		require.NoError(t, c.Submit(Unit{ID: "I2", Timing: TimingImmediate, Action: immediate.Run}))
		require.Equal(t, 1, immediate.Calls())
		require.NoError(t, c.Submit(Unit{ID: "D2", Timing: TimingDeferred, Action: deferred.Run}))
		require.Equal(t, 0, deferred.Calls())

		signal.MarkReady()
		state, err := waitTerminal(t, c)
		require.NoError(t, err)
		require.Equal(t, StateSettled, state)
		require.Equal(t, 1, deferred.Calls())
	})
}

func TestCoordinator_DuplicateUnit(t *testing.T) {
	t.Run("pending duplicate is ignored", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		c, err := New(readiness.NewReadySignal(), nil, logRecorder)
		require.NoError(t, err)

		first, second := newFlakyAction(0), newFlakyAction(0)
		require.NoError(t, c.Submit(Unit{ID: "A", Action: first.Run}))
		require.NoError(t, c.Submit(Unit{ID: "A", Action: second.Run}))
		require.NoError(t, c.Start())

		require.Equal(t, 1, first.Calls())
		require.Equal(t, 0, second.Calls())
		require.Len(t, c.Units(), 1)
		entry, found := logRecorder.FindEntry("duplicate unit submission ignored")
		require.True(t, found)
		require.Equal(t, log.LevelWarn, entry.Level)
	})

	t.Run("terminal duplicate is rejected", func(t *testing.T) {
		signal := readiness.NewSignal()
		c, err := New(signal, nil, nil)
		require.NoError(t, err)
		require.NoError(t, c.Submit(Unit{ID: "D", Action: newFlakyAction(0).Run}))
		require.NoError(t, c.Start())

		action := newFlakyAction(0)
		require.NoError(t, c.Submit(Unit{ID: "I", Timing: TimingImmediate, Action: action.Run}))
		err = c.Submit(Unit{ID: "I", Timing: TimingImmediate, Action: action.Run})
		require.ErrorIs(t, err, ErrDuplicateUnit)
		var dupErr *DuplicateUnitError
		require.ErrorAs(t, err, &dupErr)
		require.Equal(t, "I", dupErr.UnitID)
		require.Equal(t, UnitSucceeded, dupErr.State)
		require.Equal(t, 1, action.Calls())
	})
}

func TestCoordinator_InvalidUnit(t *testing.T) {
	c, err := New(readiness.NewSignal(), nil, nil)
	require.NoError(t, err)
	require.ErrorIs(t, c.Submit(Unit{Action: newFlakyAction(0).Run}), ErrInvalidUnit)
	require.ErrorIs(t, c.Submit(Unit{ID: "no-action"}), ErrInvalidUnit)
	require.Empty(t, c.Units())
}

func TestCoordinator_Stop(t *testing.T) {
	t.Run("while waiting for readiness", func(t *testing.T) {
		signal := readiness.NewSignal()
		events := &eventLog{}
		c, err := NewWithOpts(signal, nil, nil, Opts{EventHandlers: []EventHandler{events.Handle}})
		require.NoError(t, err)
		action := newFlakyAction(0)
		require.NoError(t, c.Submit(Unit{ID: "D", Action: action.Run}))
		require.NoError(t, c.Start())

		c.Stop()
		require.Equal(t, StateAborted, c.Status())
		require.ErrorIs(t, c.Err(), ErrStopped)
		require.ErrorIs(t, c.Err(), ErrCoordinatorAborted)
		testutil.RequireChannelClosed(t, c.Done(), time.Second)

		signal.MarkReady()
		time.Sleep(10 * time.Millisecond)
		require.Equal(t, 0, action.Calls())

		evs := events.All()
		require.Len(t, evs, 1)
		require.Equal(t, OutcomeSkipped, evs[0].Outcome)
	})

	t.Run("cancels pending retries", func(t *testing.T) {
		c, err := New(readiness.NewReadySignal(), makeTestConfig(30*time.Millisecond, time.Second, 5, true), nil)
		require.NoError(t, err)
		action := newFlakyAction(-1)
		require.NoError(t, c.Submit(Unit{ID: "A", Action: action.Run}))
		require.NoError(t, c.Start())
		require.Equal(t, 1, action.Calls())

		c.Stop()
		time.Sleep(60 * time.Millisecond)
		require.Equal(t, 1, action.Calls())
		status, _ := c.Unit("A")
		require.Equal(t, UnitPending, status.State)
	})

	t.Run("before start", func(t *testing.T) {
		c, err := New(readiness.NewReadySignal(), nil, nil)
		require.NoError(t, err)
		c.Stop()
		require.Equal(t, StateAborted, c.Status())
		require.ErrorIs(t, c.Start(), ErrAlreadyStarted)
	})

	t.Run("after settle", func(t *testing.T) {
		c, err := New(readiness.NewReadySignal(), nil, nil)
		require.NoError(t, err)
		require.NoError(t, c.Submit(Unit{ID: "A", Action: newFlakyAction(0).Run}))
		require.NoError(t, c.Start())
		c.Stop()
		require.Equal(t, StateSettled, c.Status())
		require.NoError(t, c.Err())
	})

	t.Run("does not interrupt running action", func(t *testing.T) {
		signal := readiness.NewSignal()
		c, err := New(signal, nil, nil)
		require.NoError(t, err)

		started, release := make(chan struct{}), make(chan struct{})
		require.NoError(t, c.Submit(Unit{ID: "slow", Action: func() error {
			close(started)
			<-release
			return nil
		}}))
		require.NoError(t, c.Start())
		signal.MarkReady()
		<-started

		c.Stop()
		require.Equal(t, StateAborted, c.Status())
		close(release)
		c.WaitInFlight()

		status, _ := c.Unit("slow")
		require.Equal(t, UnitSucceeded, status.State)
		require.Equal(t, StateAborted, c.Status())
	})

	t.Run("running action fails after stop", func(t *testing.T) {
		events := &eventLog{}
		logRecorder := logtest.NewRecorder()
		promMetrics := NewPrometheusMetrics()
		c, err := NewWithOpts(readiness.NewReadySignal(), makeTestConfig(time.Millisecond, time.Millisecond, 5, true),
			logRecorder, Opts{MetricsCollector: promMetrics, EventHandlers: []EventHandler{events.Handle}})
		require.NoError(t, err)

		started, release := make(chan struct{}), make(chan struct{})
		require.NoError(t, c.Submit(Unit{ID: "slow", Action: func() error {
			close(started)
			<-release
			return errEngineBusy
		}}))
		startErr := make(chan error, 1)
		go func() { startErr <- c.Start() }()
		<-started

		c.Stop()
		close(release)
		c.WaitInFlight()
		require.ErrorIs(t, <-startErr, ErrStopped)

		status, _ := c.Unit("slow")
		require.Equal(t, UnitPending, status.State)
		require.Equal(t, 1, status.Attempts)
		require.ErrorIs(t, status.LastErr, errEngineBusy)

		evs := events.ForUnit("slow")
		require.Len(t, evs, 1)
		require.Equal(t, OutcomeSkipped, evs[0].Outcome)
		require.Equal(t, 1, evs[0].Attempt)
		require.ErrorIs(t, evs[0].Err, errEngineBusy)

		testutil.RequireSamplesCountInCounter(t, promMetrics.AttemptsTotal.WithLabelValues("slow", string(OutcomeFailed)), 0)
		_, found := logRecorder.FindEntry("unit registration failed, attempts exhausted")
		require.False(t, found)
		skipped, found := logRecorder.FindEntry("unit skipped")
		require.True(t, found)
		skipErr, found := skipped.ErrorField("error")
		require.True(t, found)
		require.ErrorIs(t, skipErr, errEngineBusy)
	})
}

func TestCoordinator_AttemptFinishedAfterAbortByAnotherUnit(t *testing.T) {
	events := &eventLog{}
	c, err := NewWithOpts(readiness.NewReadySignal(), makeTestConfig(5*time.Millisecond, 5*time.Millisecond, 2, false),
		nil, Opts{EventHandlers: []EventHandler{events.Handle}})
	require.NoError(t, err)

	release := make(chan struct{})
	require.NoError(t, c.Submit(Unit{ID: "broken", Timing: TimingImmediate, Action: newFlakyAction(-1).Run}))
	require.NoError(t, c.Submit(Unit{ID: "slow", Timing: TimingDeferred, Action: func() error {
		<-release
		return errEngineBusy
	}}))

	// "slow" blocks Start while the second attempt of "broken" exhausts attempts on the backoff timer.
	startErr := make(chan error, 1)
	go func() { startErr <- c.Start() }()
	state, err := waitTerminal(t, c)
	require.Equal(t, StateAborted, state)
	var abortErr *CoordinatorAbortedError
	require.ErrorAs(t, err, &abortErr)
	require.Equal(t, "broken", abortErr.UnitID)

	close(release)
	c.WaitInFlight()
	require.ErrorIs(t, <-startErr, ErrCoordinatorAborted)

	status, _ := c.Unit("slow")
	require.Equal(t, UnitPending, status.State)
	require.Equal(t, 1, status.Attempts)
	evs := events.ForUnit("slow")
	require.Len(t, evs, 1)
	require.Equal(t, OutcomeSkipped, evs[0].Outcome)

	broken, _ := c.Unit("broken")
	require.Equal(t, UnitFailed, broken.State)
	require.Equal(t, 2, broken.Attempts)
}

func TestCoordinator_PanicInEventHandler(t *testing.T) {
	logRecorder := logtest.NewRecorder()
	events := &eventLog{}
	panicky := func(ev Event) {
		if ev.Outcome == OutcomeRetrying {
			panic("handler is broken")
		}
	}
	c, err := NewWithOpts(readiness.NewReadySignal(), makeTestConfig(time.Millisecond, time.Millisecond, 3, true),
		logRecorder, Opts{EventHandlers: []EventHandler{panicky, events.Handle}})
	require.NoError(t, err)

	require.NoError(t, c.Submit(Unit{ID: "flaky", Action: newFlakyAction(1).Run}))
	require.NoError(t, c.Start())
	state, err := waitTerminal(t, c)
	require.NoError(t, err)
	require.Equal(t, StateSettled, state)

	evs := events.ForUnit("flaky")
	require.Len(t, evs, 2)
	require.Equal(t, OutcomeRetrying, evs[0].Outcome)
	require.Equal(t, OutcomeSucceeded, evs[1].Outcome)

	entry, found := logRecorder.FindEntryByFilter(func(e logtest.RecordedEntry) bool {
		return strings.HasPrefix(e.Text, "panic in registration event handler")
	})
	require.True(t, found)
	require.Equal(t, log.LevelError, entry.Level)
}

func TestCoordinator_PanicInAction(t *testing.T) {
	logRecorder := logtest.NewRecorder()
	c, err := New(readiness.NewReadySignal(), makeTestConfig(time.Millisecond, time.Millisecond, 2, true), logRecorder)
	require.NoError(t, err)

	var calls int
	require.NoError(t, c.Submit(Unit{ID: "panicky", Action: func() error {
		calls++
		if calls == 1 {
			panic("nil engine handle")
		}
		return nil
	}}))
	require.NoError(t, c.Start())

	state, err := waitTerminal(t, c)
	require.NoError(t, err)
	require.Equal(t, StateSettled, state)
	status, _ := c.Unit("panicky")
	require.Equal(t, UnitSucceeded, status.State)
	require.Equal(t, 2, status.Attempts)

	entry, found := logRecorder.FindEntryByFilter(func(entry logtest.RecordedEntry) bool {
		return strings.HasPrefix(entry.Text, "panic in registration action")
	})
	require.True(t, found)
	require.Equal(t, log.LevelError, entry.Level)
	_, found = entry.FindField("stack")
	require.True(t, found)

	retryEntry, found := logRecorder.FindEntry("unit registration failed, will retry")
	require.True(t, found)
	retryErr, found := retryEntry.ErrorField("error")
	require.True(t, found)
	require.ErrorIs(t, retryErr, ErrUnitPanicked)
}

func TestCoordinator_ConcurrentSubmissions(t *testing.T) {
	const unitsNum = 50

	signal := readiness.NewSignal()
	c, err := New(signal, nil, nil)
	require.NoError(t, err)

	deferred := newFlakyAction(0)
	require.NoError(t, c.Submit(Unit{ID: "first", Action: deferred.Run}))
	require.NoError(t, c.Start())

	actions := make([]*flakyAction, unitsNum)
	var wg sync.WaitGroup
	for i := 0; i < unitsNum; i++ {
		actions[i] = newFlakyAction(0)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			timing := TimingDeferred
			if i%2 == 0 {
				timing = TimingImmediate
			}
			// Every unit is submitted twice concurrently, it must run only once.
			u := Unit{ID: fmt.Sprintf("unit-%d", i), Timing: timing, Action: actions[i].Run}
			for j := 0; j < 2; j++ {
				err := c.Submit(u)
				if err != nil && !errors.Is(err, ErrDuplicateUnit) {
					t.Errorf("unexpected submit error: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()
	signal.MarkReady()

	state, err := waitTerminal(t, c)
	require.NoError(t, err)
	require.Equal(t, StateSettled, state)
	for i, a := range actions {
		require.Equal(t, 1, a.Calls(), "unit-%d", i)
	}
	require.Equal(t, 1, deferred.Calls())
	require.Len(t, c.Units(), unitsNum+1)
}
