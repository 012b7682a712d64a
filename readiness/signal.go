/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package readiness models the moment a host engine becomes fully operational.
//
// A Source is a single-fire, monotonic condition: once ready it never reverts.
// It can be polled with IsReady or observed with OnReady.
package readiness

import (
	"sync"

	"go.uber.org/atomic"
)

// Source reports readiness of a dependency (e.g. an embedded engine).
type Source interface {
	// IsReady reports the current state without side effects. It is safe to call from any goroutine.
	IsReady() bool

	// OnReady registers fn to be invoked exactly once.
	// If the source is already ready, fn is invoked synchronously before OnReady returns.
	// Otherwise fn is invoked in its own goroutine after the transition to ready is observed.
	OnReady(fn func())
}

// Signal is a Source that is flipped to ready explicitly by the component owning the engine startup.
// The zero value is not usable, use NewSignal.
type Signal struct {
	ready atomic.Bool
	done  chan struct{}

	mu          sync.Mutex
	subscribers []func()
}

var _ Source = (*Signal)(nil)

// NewSignal creates a Signal in the not-ready state.
func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// NewReadySignal creates a Signal that is already ready.
func NewReadySignal() *Signal {
	s := NewSignal()
	s.MarkReady()
	return s
}

// IsReady implements Source.
func (s *Signal) IsReady() bool {
	return s.ready.Load()
}

// OnReady implements Source.
func (s *Signal) OnReady(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	if !s.ready.Load() {
		s.subscribers = append(s.subscribers, fn)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	fn()
}

// MarkReady flips the signal to ready and dispatches all subscribers, each in its own goroutine.
// It returns false if the signal was already ready; repeated calls have no effect.
func (s *Signal) MarkReady() bool {
	s.mu.Lock()
	if !s.ready.CompareAndSwap(false, true) {
		s.mu.Unlock()
		return false
	}
	subscribers := s.subscribers
	s.subscribers = nil
	close(s.done)
	s.mu.Unlock()

	for _, fn := range subscribers {
		go fn()
	}
	return true
}

// Done returns a channel that is closed when the signal becomes ready.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}
