/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package statushttp

import (
	"encoding/json"
	"net/http"

	"github.com/acronis/go-regkit/log"
	"github.com/acronis/go-regkit/readiness"
	"github.com/acronis/go-regkit/regcoord"
)

// ContentTypeAppJSON represents a content type of JSON responses.
const ContentTypeAppJSON = "application/json"

// ReadinessComponentName is the name of the health-check component reporting the readiness source.
const ReadinessComponentName = "readiness"

// CoordinatorStatus is the read-only view of a registration coordinator used by the health-check.
// *regcoord.Coordinator implements it.
type CoordinatorStatus interface {
	RunID() string
	Status() regcoord.State
	Units() []regcoord.UnitStatus
	Err() error
}

var _ CoordinatorStatus = (*regcoord.Coordinator)(nil)

// UnitResponseData is a JSON representation of a single unit status.
type UnitResponseData struct {
	ID        string               `json:"id"`
	Timing    regcoord.TimingClass `json:"timing"`
	State     regcoord.UnitState   `json:"state"`
	Attempts  int                  `json:"attempts"`
	LastError string               `json:"lastError,omitempty"`
}

// HealthCheckResponseData is a JSON body of the /healthz response.
type HealthCheckResponseData struct {
	RunID      string             `json:"runId"`
	Status     regcoord.State     `json:"status"`
	Error      string             `json:"error,omitempty"`
	Components map[string]bool    `json:"components"`
	Units      []UnitResponseData `json:"units"`
}

// HealthCheckHandler implements http.Handler and reports the registration progress.
//
// It responds 200 once the coordinator has settled and 503 while it is still in progress or has aborted.
// Every unit is a component that is healthy once succeeded; the readiness source (if given) is one more component.
type HealthCheckHandler struct {
	coordinator CoordinatorStatus
	source      readiness.Source
}

// NewHealthCheckHandler creates a new http.Handler for doing health-check. source may be nil.
func NewHealthCheckHandler(coordinator CoordinatorStatus, source readiness.Source) *HealthCheckHandler {
	return &HealthCheckHandler{coordinator: coordinator, source: source}
}

// ServeHTTP serves heath-check HTTP request.
func (h *HealthCheckHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	state := h.coordinator.Status()
	units := h.coordinator.Units()

	respData := HealthCheckResponseData{
		RunID:      h.coordinator.RunID(),
		Status:     state,
		Components: make(map[string]bool, len(units)+1),
		Units:      make([]UnitResponseData, 0, len(units)),
	}
	if err := h.coordinator.Err(); err != nil {
		respData.Error = err.Error()
	}
	if h.source != nil {
		respData.Components[ReadinessComponentName] = h.source.IsReady()
	}
	for _, u := range units {
		respData.Components[u.ID] = u.State == regcoord.UnitSucceeded
		unitData := UnitResponseData{ID: u.ID, Timing: u.Timing, State: u.State, Attempts: u.Attempts}
		if u.LastErr != nil {
			unitData.LastError = u.LastErr.Error()
		}
		respData.Units = append(respData.Units, unitData)
	}

	respStatus := http.StatusServiceUnavailable
	if state == regcoord.StateSettled {
		respStatus = http.StatusOK
	}
	RespondCodeAndJSON(rw, respStatus, respData, GetLoggerFromContext(r.Context()))
}

// RespondCodeAndJSON sends a response with the passed status code and sets the "Content-Type"
// to "application/json" if it's not already set. It performs mapping respData to JSON.
func RespondCodeAndJSON(rw http.ResponseWriter, statusCode int, respData interface{}, logger log.FieldLogger) {
	if rw.Header().Get("Content-Type") == "" {
		rw.Header().Set("Content-Type", ContentTypeAppJSON)
	}
	respJSON, err := json.Marshal(respData)
	if err != nil {
		if logger != nil {
			logger.Error("error while marshaling json for response body", log.Error(err))
		}
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	rw.WriteHeader(statusCode)
	if _, err = rw.Write(respJSON); err != nil && logger != nil {
		logger.Error("error while writing response body", log.Error(err))
	}
}
