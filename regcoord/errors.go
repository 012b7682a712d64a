/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package regcoord

import (
	"errors"
	"fmt"
)

// Sentinel errors. The typed errors below match them with errors.Is.
var (
	ErrLateSubmission     = errors.New("unit submitted after draining began")
	ErrDuplicateUnit      = errors.New("unit already reached a terminal state")
	ErrCoordinatorAborted = errors.New("registration coordinator aborted")
	ErrStopped            = errors.New("registration coordinator stopped")
	ErrInvalidUnit        = errors.New("invalid registration unit")
	ErrAlreadyStarted     = errors.New("registration coordinator already started")
	ErrUnitPanicked       = errors.New("registration action panicked")
)

// LateSubmissionError is returned by Submit when draining has already begun.
type LateSubmissionError struct {
	UnitID string
	State  State
}

func (e *LateSubmissionError) Error() string {
	return fmt.Sprintf("submit unit %q: coordinator is %s: %v", e.UnitID, e.State, ErrLateSubmission)
}

// Is implements errors.Is.
func (e *LateSubmissionError) Is(target error) bool {
	return target == ErrLateSubmission
}

// DuplicateUnitError is returned by Submit when a unit with the same ID has already reached a terminal state.
type DuplicateUnitError struct {
	UnitID string
	State  UnitState
}

func (e *DuplicateUnitError) Error() string {
	return fmt.Sprintf("submit unit %q: unit is %s: %v", e.UnitID, e.State, ErrDuplicateUnit)
}

// Is implements errors.Is.
func (e *DuplicateUnitError) Is(target error) bool {
	return target == ErrDuplicateUnit
}

// RegistrationFailure describes one failed attempt of a unit's action.
type RegistrationFailure struct {
	UnitID  string
	Attempt int
	Cause   error
}

func (e *RegistrationFailure) Error() string {
	return fmt.Sprintf("register unit %q (attempt %d): %v", e.UnitID, e.Attempt, e.Cause)
}

// Unwrap returns the error returned by the unit's action.
func (e *RegistrationFailure) Unwrap() error {
	return e.Cause
}

// CoordinatorAbortedError is the single attributed failure reported when the coordinator aborts.
// UnitID is empty when the abort was requested by Stop.
type CoordinatorAbortedError struct {
	UnitID   string
	Attempts int
	Cause    error
}

func (e *CoordinatorAbortedError) Error() string {
	if e.UnitID == "" {
		return fmt.Sprintf("%v: %v", ErrCoordinatorAborted, e.Cause)
	}
	return fmt.Sprintf("%v: unit %q exhausted %d attempt(s): %v", ErrCoordinatorAborted, e.UnitID, e.Attempts, e.Cause)
}

// Unwrap returns the cause (the last RegistrationFailure or ErrStopped).
func (e *CoordinatorAbortedError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is.
func (e *CoordinatorAbortedError) Is(target error) bool {
	return target == ErrCoordinatorAborted
}
