/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package regcoord

import "time"

// Outcome is the result of one unit attempt.
type Outcome string

// Attempt outcomes.
const (
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeRetrying means the attempt failed and another one is scheduled after Event.NextDelay.
	OutcomeRetrying Outcome = "retrying"
	// OutcomeFailed means the attempt failed and the unit will not be attempted again.
	OutcomeFailed Outcome = "failed"
	// OutcomeSkipped is reported for pending units that won't be attempted anymore because the coordinator aborted.
	// Err is the abort cause, or the failure of an attempt that finished after the abort.
	OutcomeSkipped Outcome = "skipped"
)

// Event is emitted for every finished attempt and for every unit skipped by an abort.
type Event struct {
	RunID     string
	UnitID    string
	Timing    TimingClass
	Attempt   int
	Outcome   Outcome
	Err       error
	NextDelay time.Duration
	Duration  time.Duration
	Time      time.Time
}

// EventHandler receives coordinator events.
// Handlers are called outside of the coordinator's lock, possibly concurrently from different goroutines
// (readiness callbacks, backoff timers), so they must be safe for concurrent use.
// A panic in a handler is recovered and logged.
type EventHandler func(Event)
