/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package regcoord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/go-regkit/config"
)

var errEngineBusy = errors.New("engine busy")

// flakyAction fails the first failTimes calls and succeeds afterwards (never, if failTimes < 0).
type flakyAction struct {
	failTimes int
	calls     atomic.Int32

	mu        sync.Mutex
	callTimes []time.Time
}

func newFlakyAction(failTimes int) *flakyAction {
	return &flakyAction{failTimes: failTimes}
}

func (a *flakyAction) Run() error {
	n := int(a.calls.Inc())
	a.mu.Lock()
	a.callTimes = append(a.callTimes, time.Now())
	a.mu.Unlock()
	if a.failTimes < 0 || n <= a.failTimes {
		return fmt.Errorf("attempt %d: %w", n, errEngineBusy)
	}
	return nil
}

func (a *flakyAction) Calls() int {
	return int(a.calls.Load())
}

func (a *flakyAction) CallTimes() []time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]time.Time(nil), a.callTimes...)
}

// eventLog collects events delivered to an EventHandler.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Handle(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) ForUnit(unitID string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var res []Event
	for _, ev := range l.events {
		if ev.UnitID == unitID {
			res = append(res, ev)
		}
	}
	return res
}

func (l *eventLog) All() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func makeTestConfig(baseDelay, maxDelay time.Duration, maxAttempts int, continueOnFailure bool) *Config {
	return &Config{
		BaseDelay:         config.TimeDuration(baseDelay),
		MaxDelay:          config.TimeDuration(maxDelay),
		MaxAttempts:       maxAttempts,
		ContinueOnFailure: continueOnFailure,
	}
}

func waitTerminal(t *testing.T, c *Coordinator) (State, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	state, err := c.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "coordinator did not reach a terminal state")
	return state, err
}
