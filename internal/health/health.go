// Package health provides HTTP liveness, readiness and status handlers.
//
//   - /healthz: liveness probe; always returns 200 OK.
//   - /readyz: readiness probe; returns 200 only when every [Checker] passes.
//   - /statusz: JSON snapshot from the registered status function, if any.
//
// Probe responses are JSON objects with a top-level "status" field ("ok" or
// "fail") and a "checks" map holding the result of each named checker.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// ErrCriticalFailure is reported by [PipelineChecker] while the audio
// pipeline is in critical failure.
var ErrCriticalFailure = errors.New("audio pipeline in critical failure")

// Checker is a named readiness check. Check returns nil when healthy.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// FailureReporter is implemented by components that can enter a sticky
// failure state, such as the audio pipeline.
type FailureReporter interface {
	Failed() bool
}

// PipelineChecker returns a [Checker] that fails while r reports failure.
func PipelineChecker(name string, r FailureReporter) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			if r.Failed() {
				return ErrCriticalFailure
			}
			return nil
		},
	}
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. It is safe for concurrent use; the
// checker list is fixed at construction time.
type Handler struct {
	checkers []Checker
	status   func() any
}

// New creates a [Handler] that evaluates the given checkers sequentially on
// each /readyz request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// WithStatus sets the function whose result /statusz serves as JSON.
func (h *Handler) WithStatus(fn func() any) *Handler {
	h.status = fn
	return h
}

// Healthz always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz returns 200 only when every registered [Checker] passes. Each
// checker gets a context with a [checkTimeout] deadline.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	allOK := true

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Statusz serves the status snapshot, or 404 when none is registered.
func (h *Handler) Statusz(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.status())
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	mux.HandleFunc("GET /statusz", h.Statusz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
