/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package service hosts long-lived components of a process (the registration coordinator,
// readiness probes) and stops them on OS signals or fatal errors.
package service

// Unit represents a service unit that can be started and stopped.
type Unit interface {
	// Start begins the unit's operation.
	//
	// An implementation may perform initialization and return immediately,
	// or block the calling goroutine for the duration of the unit's lifetime.
	// If Start fails, it writes exactly one error to fatalErr.
	// The channel must not be used after Start has returned.
	Start(fatalErr chan<- error)

	// Stop halts the unit.
	//
	// If 'gracefully' is true, the unit should attempt a clean shutdown.
	// Stop may be called even if Start has failed or was never called.
	Stop(gracefully bool) error
}

// MetricsRegisterer is an interface for objects that can register its own metrics.
type MetricsRegisterer interface {
	MustRegisterMetrics()
	UnregisterMetrics()
}
