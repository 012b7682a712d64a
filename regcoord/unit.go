/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package regcoord

import (
	"fmt"
	"strings"
)

// TimingClass tells whether a unit's action is safe to run before the readiness signal fires.
type TimingClass int

// Timing classes. The zero value is TimingDeferred, so a unit is readiness-dependent unless declared otherwise.
const (
	// TimingDeferred units run only after the readiness source reports ready.
	TimingDeferred TimingClass = iota
	// TimingImmediate units run synchronously inside Start regardless of readiness.
	// The caller guarantees their actions do not depend on the engine.
	TimingImmediate
)

// String implements fmt.Stringer.
func (tc TimingClass) String() string {
	switch tc {
	case TimingDeferred:
		return "deferred"
	case TimingImmediate:
		return "immediate"
	}
	return fmt.Sprintf("TimingClass(%d)", int(tc))
}

// ParseTimingClass parses "immediate" or "deferred" (case-insensitive).
func ParseTimingClass(s string) (TimingClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "deferred", "":
		return TimingDeferred, nil
	case "immediate":
		return TimingImmediate, nil
	}
	return TimingDeferred, fmt.Errorf("unknown timing class %q, should be one of [immediate deferred]", s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (tc *TimingClass) UnmarshalText(text []byte) error {
	parsed, err := ParseTimingClass(string(text))
	if err != nil {
		return err
	}
	*tc = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (tc TimingClass) MarshalText() ([]byte, error) {
	return []byte(tc.String()), nil
}

// Action performs the registration itself. It may fail and then is retried according to the backoff policy.
type Action func() error

// Unit is one fallible registration step identified by ID.
// Units are supplied by the caller before (or while waiting for) readiness; the coordinator never creates them.
type Unit struct {
	ID     string
	Timing TimingClass
	Action Action
}

// UnitState is the lifecycle state of a single unit.
type UnitState string

// Unit states.
const (
	UnitPending   UnitState = "pending"
	UnitRunning   UnitState = "running"
	UnitSucceeded UnitState = "succeeded"
	UnitFailed    UnitState = "failed"
)

// IsTerminal reports whether no further attempts will be made for the unit.
func (s UnitState) IsTerminal() bool {
	return s == UnitSucceeded || s == UnitFailed
}

// UnitStatus is a snapshot of a unit's progress.
type UnitStatus struct {
	ID       string
	Timing   TimingClass
	State    UnitState
	Attempts int
	LastErr  error
}
