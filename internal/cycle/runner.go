// Package cycle runs sync cycles: resolve the next request, hand it to the
// transport, and apply the result. The transport is an external collaborator
// and is only described here by the Transport interface.
package cycle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Pjt727/classy-sync/internal/model"
	"github.com/Pjt727/classy-sync/internal/replicate"
	"github.com/Pjt727/classy-sync/internal/syncerr"
)

// DefaultMaxRounds bounds how many requests one Run sends while the remote
// service keeps reporting more data.
const DefaultMaxRounds = 100

// Transport executes requests against the remote catalog service.
type Transport interface {
	FetchAll(ctx context.Context, req model.AllRequest) (model.AllResultPayload, error)
	FetchSelect(ctx context.Context, req model.SelectRequest) (model.SelectResultPayload, error)
}

// Result summarizes one Run.
type Result struct {
	// ID identifies the run in logs.
	ID string `json:"id"`
	// Rounds is the number of request/apply round trips completed.
	Rounds int `json:"rounds"`
	// Changes is the number of change records applied.
	Changes int `json:"changes"`
	// HasMore reports that the round limit stopped the run before the remote
	// service ran out of data.
	HasMore bool `json:"has_more"`
}

// Option configures a Runner.
type Option func(*Runner)

// WithMaxRounds overrides DefaultMaxRounds. Values below 1 are ignored.
func WithMaxRounds(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxRounds = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithIDGenerator sets the run id generator.
func WithIDGenerator(gen IDGenerator) Option {
	return func(r *Runner) {
		r.ids = gen
	}
}

// Runner drives a Datastore through sync cycles.
// Rounds run sequentially; nothing is retried.
type Runner struct {
	ds        replicate.Datastore
	transport Transport
	maxRounds int
	logger    *slog.Logger
	ids       IDGenerator
}

// NewRunner creates a Runner.
func NewRunner(ds replicate.Datastore, transport Transport, opts ...Option) *Runner {
	r := &Runner{
		ds:        ds,
		transport: transport,
		maxRounds: DefaultMaxRounds,
		logger:    slog.Default(),
		ids:       UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes rounds until the remote service reports no more data or the
// round limit is reached. Cancellation of ctx is honored between rounds.
// A failed round leaves its watermarks untouched and ends the run.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	res := Result{ID: r.ids.Generate()}
	logger := r.logger.With(slog.String("cycle", res.ID))

	for res.Rounds < r.maxRounds {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		changes, more, err := r.round(ctx, logger)
		if err != nil {
			logger.Error("sync round failed", slog.Int("round", res.Rounds+1), slog.Any("error", err))
			return res, err
		}
		res.Rounds++
		res.Changes += changes
		res.HasMore = more

		logger.Info("sync round complete",
			slog.Int("round", res.Rounds),
			slog.Int("changes", changes),
			slog.Bool("has_more", more))
		if !more {
			break
		}
	}

	if res.HasMore {
		logger.Warn("round limit reached with data remaining", slog.Int("max_rounds", r.maxRounds))
	}
	return res, nil
}

func (r *Runner) round(ctx context.Context, logger *slog.Logger) (int, bool, error) {
	req, err := r.ds.GenerateNextRequest(ctx)
	if err != nil {
		return 0, false, err
	}

	switch req := req.(type) {
	case model.AllRequest:
		logger.Debug("fetching all", slog.Uint64("last_sync", req.LastSync))
		payload, err := r.transport.FetchAll(ctx, req)
		if err != nil {
			return 0, false, transportError(err)
		}
		if err := r.ds.ApplyAllResult(ctx, payload); err != nil {
			return 0, false, err
		}
		return len(payload.Changes), payload.HasMore, nil

	case model.SelectRequest:
		logger.Debug("fetching select",
			slog.Int("schools", len(req.Schools)),
			slog.Int("exclusions", len(req.Exclude)))
		payload, err := r.transport.FetchSelect(ctx, req)
		if err != nil {
			return 0, false, transportError(err)
		}
		if err := r.ds.ApplySelectResult(ctx, req, payload); err != nil {
			return 0, false, err
		}
		return len(payload.Changes), payload.AnyHasMore, nil

	default:
		return 0, false, fmt.Errorf("unsupported request %T", req)
	}
}

// transportError classifies a transport failure unless it already carries a kind.
func transportError(err error) error {
	if syncerr.KindOf(err) != "" {
		return err
	}
	return syncerr.Transport(err)
}
