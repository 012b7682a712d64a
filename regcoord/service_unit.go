/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package regcoord

import (
	"errors"

	"github.com/acronis/go-regkit/service"
)

// ServiceUnit allows hosting Coordinator as service.Unit.
// Its Start blocks until the coordinator settles or aborts. An abort caused by anything other
// than Stop is reported as a fatal error.
type ServiceUnit struct {
	coordinator *Coordinator
}

var (
	_ service.Unit              = (*ServiceUnit)(nil)
	_ service.MetricsRegisterer = (*ServiceUnit)(nil)
)

// NewServiceUnit creates a new ServiceUnit.
func NewServiceUnit(c *Coordinator) *ServiceUnit {
	return &ServiceUnit{coordinator: c}
}

// Start starts the coordinator and waits until it reaches a terminal state.
func (su *ServiceUnit) Start(fatalError chan<- error) {
	if err := su.coordinator.Start(); err != nil && !errors.Is(err, ErrCoordinatorAborted) {
		fatalError <- err
		return
	}
	<-su.coordinator.Done()
	if err := su.coordinator.Err(); err != nil && !errors.Is(err, ErrStopped) {
		fatalError <- err
	}
}

// Stop aborts the coordinator. If gracefully is true, it also waits for the running action (if any) to return.
func (su *ServiceUnit) Stop(gracefully bool) error {
	su.coordinator.Stop()
	if gracefully {
		su.coordinator.WaitInFlight()
	}
	return nil
}

// MustRegisterMetrics registers coordinator's metrics if its collector supports it.
func (su *ServiceUnit) MustRegisterMetrics() {
	if mr, ok := su.coordinator.metrics.(interface{ MustRegister() }); ok {
		mr.MustRegister()
	}
}

// UnregisterMetrics unregisters coordinator's metrics if its collector supports it.
func (su *ServiceUnit) UnregisterMetrics() {
	if mr, ok := su.coordinator.metrics.(interface{ Unregister() }); ok {
		mr.Unregister()
	}
}
