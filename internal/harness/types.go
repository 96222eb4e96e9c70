package harness

import (
	"encoding/json"

	"github.com/Pjt727/classy-sync/internal/replicate"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Step     int    `json:"step"` // 1-based
	Action   string `json:"action"`
	Argument string `json:"argument,omitempty"`
	// Request is the generated request, for expect_request and apply_select.
	Request json.RawMessage `json:"request,omitempty"`
	Changes int             `json:"changes,omitempty"`
	// Error is the kind of the error the step returned.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Trace contains the executed steps in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Status is the replicator status after the last step.
	Status replicate.Status `json:"status"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step to the trace.
func (r *Result) AddTrace(event TraceEvent) {
	r.Trace = append(r.Trace, event)
}
