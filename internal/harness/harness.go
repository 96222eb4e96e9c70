package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/Pjt727/classy-sync/internal/model"
	"github.com/Pjt727/classy-sync/internal/replicate"
	"github.com/Pjt727/classy-sync/internal/selection"
	"github.com/Pjt727/classy-sync/internal/store"
	"github.com/Pjt727/classy-sync/internal/syncerr"
)

// errorUnclassified marks step errors outside the syncerr taxonomy.
const errorUnclassified = "UNCLASSIFIED"

// Option configures a scenario run.
type Option func(*Harness)

// WithLogger routes replicator and harness logs to logger.
// By default logs are discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// Harness is the scenario execution engine.
type Harness struct {
	repl   *replicate.Replicator
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Step outcomes that differ from the scenario are reported in the result;
// the returned error is reserved for scenarios that cannot be executed.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Execute steps in order, stopping at the first failed step
// 3. Read the final status
// 4. Evaluate assertions
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(h)
	}

	if scenario.Strict == nil {
		return nil, fmt.Errorf("scenario %q: strict is required", scenario.Name)
	}
	backend := store.BackendSQLite3
	if scenario.Backend != "" {
		backend = store.Backend(scenario.Backend)
	}

	repl, err := replicate.Open(replicate.Options{
		Backend:    backend,
		Path:       ":memory:",
		Strictness: replicate.StrictnessOf(*scenario.Strict),
		MaxRecords: scenario.MaxRecords,
		Logger:     h.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer repl.Close()
	h.repl = repl

	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i+1, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		if !result.Pass {
			break
		}
	}

	status, err := repl.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read status: %w", err)
	}
	result.Status = status

	actx := &AssertionContext{
		DB:     repl.Store().DB(),
		Ctx:    ctx,
		Status: status,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// executeStep runs one step and records it in the trace.
// Only malformed steps return an error.
func (h *Harness) executeStep(ctx context.Context, n int, step Step, result *Result) error {
	op, err := step.Op()
	if err != nil {
		return err
	}

	event := TraceEvent{Step: n, Action: op}
	var stepErr error

	switch op {
	case OpSet, OpUnset:
		event.Argument = step.Set
		if op == OpUnset {
			event.Argument = step.Unset
		}
		resources, err := selection.Parse(event.Argument)
		if err != nil {
			stepErr = err
			break
		}
		if op == OpSet {
			stepErr = h.repl.SetResources(ctx, resources)
		} else {
			stepErr = h.repl.UnsetResources(ctx, resources)
		}

	case OpApplyAll:
		var payload model.AllResultPayload
		if err := decodeWire(step.ApplyAll, &payload); err != nil {
			return fmt.Errorf("apply_all payload: %w", err)
		}
		event.Changes = len(payload.Changes)
		stepErr = h.repl.ApplyAllResult(ctx, payload)

	case OpApplySelect:
		var payload model.SelectResultPayload
		if err := decodeWire(step.ApplySelect, &payload); err != nil {
			return fmt.Errorf("apply_select payload: %w", err)
		}
		event.Changes = len(payload.Changes)

		req, err := h.repl.GenerateNextRequest(ctx)
		if err != nil {
			stepErr = err
			break
		}
		echo, ok := req.(model.SelectRequest)
		if !ok {
			stepErr = syncerr.StateConflict("next request is %T, not a select request", req)
			break
		}
		if event.Request, err = json.Marshal(echo); err != nil {
			return fmt.Errorf("marshal echo: %w", err)
		}
		stepErr = h.repl.ApplySelectResult(ctx, echo, payload)

	case OpExpectRequest:
		req, err := h.repl.GenerateNextRequest(ctx)
		if err != nil {
			stepErr = err
			break
		}
		if event.Request, err = json.Marshal(req); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		if len(step.ExpectRequest) > 0 {
			if msg, err := compareWire(step.ExpectRequest, event.Request); err != nil {
				return fmt.Errorf("expect_request: %w", err)
			} else if msg != "" {
				result.AddError(fmt.Sprintf("step %d (%s): %s", n, op, msg))
			}
		}
	}

	if stepErr != nil {
		event.Error = errorKind(stepErr)
	}
	result.AddTrace(event)

	switch {
	case step.ExpectError == "" && stepErr != nil:
		result.AddError(fmt.Sprintf("step %d (%s): unexpected error: %v", n, op, stepErr))
	case step.ExpectError != "" && stepErr == nil:
		result.AddError(fmt.Sprintf("step %d (%s): expected %s error, got success", n, op, step.ExpectError))
	case step.ExpectError != "" && event.Error != step.ExpectError:
		result.AddError(fmt.Sprintf("step %d (%s): expected %s error, got %s: %v", n, op, step.ExpectError, event.Error, stepErr))
	}

	h.logger.Info("scenario step completed",
		"step", n,
		"action", op,
		"error", event.Error,
	)
	return nil
}

func errorKind(err error) string {
	if kind := syncerr.KindOf(err); kind != "" {
		return string(kind)
	}
	return errorUnclassified
}
