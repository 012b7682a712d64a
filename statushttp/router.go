/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package statushttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acronis/go-regkit/log"
	"github.com/acronis/go-regkit/readiness"
)

const (
	healthEndpoint  = "/healthz"
	metricsEndpoint = "/metrics"
	unitsEndpoint   = "/units"
)

// RouterOpts represents options for creating chi.Router.
type RouterOpts struct {
	// Readiness is reported as an additional health-check component if set.
	Readiness readiness.Source
	// MetricsHandler serves /metrics. promhttp.Handler() is used if nil.
	MetricsHandler http.Handler
	// ExcludedEndpoints are not logged when served successfully.
	ExcludedEndpoints []string
}

type errorResponseData struct {
	Error string `json:"error"`
}

// NewRouter creates a new chi.Router serving the coordinator status:
//
//	GET /healthz       overall status with per-unit components
//	GET /units/{id}    status of a single unit
//	GET /metrics       Prometheus metrics
func NewRouter(coordinator CoordinatorStatus, logger log.FieldLogger, opts RouterOpts) chi.Router {
	router := chi.NewRouter()
	router.Use(RequestID())
	router.Use(Logging(logger, opts.ExcludedEndpoints))
	router.Use(Recovery())

	metricsHandler := opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	router.Method(http.MethodGet, metricsEndpoint, metricsHandler)
	router.Method(http.MethodGet, healthEndpoint, NewHealthCheckHandler(coordinator, opts.Readiness))
	router.Get(unitsEndpoint+"/{id}", func(rw http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		for _, u := range coordinator.Units() {
			if u.ID != id {
				continue
			}
			unitData := UnitResponseData{ID: u.ID, Timing: u.Timing, State: u.State, Attempts: u.Attempts}
			if u.LastErr != nil {
				unitData.LastError = u.LastErr.Error()
			}
			RespondCodeAndJSON(rw, http.StatusOK, unitData, GetLoggerFromContext(r.Context()))
			return
		}
		RespondCodeAndJSON(rw, http.StatusNotFound, errorResponseData{Error: "unit not found"}, GetLoggerFromContext(r.Context()))
	})

	router.NotFound(func(rw http.ResponseWriter, r *http.Request) {
		RespondCodeAndJSON(rw, http.StatusNotFound, errorResponseData{Error: "not found"}, GetLoggerFromContext(r.Context()))
	})
	router.MethodNotAllowed(func(rw http.ResponseWriter, r *http.Request) {
		RespondCodeAndJSON(rw, http.StatusMethodNotAllowed, errorResponseData{Error: "method not allowed"},
			GetLoggerFromContext(r.Context()))
	})
	return router
}
