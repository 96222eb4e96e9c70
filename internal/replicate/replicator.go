package replicate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Pjt727/classy-sync/internal/model"
	"github.com/Pjt727/classy-sync/internal/querysql"
	"github.com/Pjt727/classy-sync/internal/store"
	"github.com/Pjt727/classy-sync/internal/syncerr"
)

// Datastore is the capability set a sync cycle drives.
type Datastore interface {
	// SetResources registers what to sync.
	SetResources(ctx context.Context, resources model.Resources) error

	// UnsetResources removes registered resources and their watermark history.
	UnsetResources(ctx context.Context, resources model.Resources) error

	// GenerateNextRequest describes the next request to send to the remote service.
	GenerateNextRequest(ctx context.Context) (model.Request, error)

	// ApplyAllResult applies the answer to an AllRequest.
	ApplyAllResult(ctx context.Context, payload model.AllResultPayload) error

	// ApplySelectResult applies the answer to the echoed SelectRequest.
	ApplySelectResult(ctx context.Context, echo model.SelectRequest, payload model.SelectResultPayload) error
}

var _ Datastore = (*Replicator)(nil)

// Strictness selects how row-count mismatches are handled. There is no
// default: the zero value is invalid and must be chosen explicitly.
type Strictness int

const (
	strictnessUnset Strictness = iota

	// Strict fails a batch when a record does not affect exactly one row.
	Strict

	// Lenient logs the mismatch and continues, so redelivered changes do
	// not abort a batch.
	Lenient
)

// StrictnessOf maps a boolean configuration value to a Strictness.
func StrictnessOf(strict bool) Strictness {
	if strict {
		return Strict
	}
	return Lenient
}

func (s Strictness) String() string {
	switch s {
	case Strict:
		return "strict"
	case Lenient:
		return "lenient"
	default:
		return "unset"
	}
}

// Options configures a Replicator.
type Options struct {
	// Backend selects the SQLite driver.
	Backend store.Backend

	// Path is the database file, or ":memory:".
	Path string

	// Strictness is required.
	Strictness Strictness

	// MaxRecords is sent with every request. Zero means model.DefaultMaxRecords.
	MaxRecords uint16

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (o Options) validate() error {
	if o.Strictness != Strict && o.Strictness != Lenient {
		return syncerr.InputValidation("strictness must be set explicitly")
	}
	return nil
}

// Replicator is the SQLite-backed Datastore.
type Replicator struct {
	store      *store.Store
	compiler   *querysql.Compiler
	strictness Strictness
	maxRecords uint16
	logger     *slog.Logger
	ownsStore  bool
}

// Open opens the store described by opts and returns a Replicator owning it.
func Open(opts Options) (*Replicator, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if !opts.Backend.Valid() {
		return nil, syncerr.InputValidation("unknown backend %q", opts.Backend)
	}
	if opts.Path == "" {
		return nil, syncerr.InputValidation("database path is required")
	}

	s, err := store.Open(opts.Backend, opts.Path)
	if err != nil {
		return nil, fmt.Errorf("open replicator: %w", err)
	}

	r, err := New(s, opts)
	if err != nil {
		s.Close()
		return nil, err
	}
	r.ownsStore = true
	return r, nil
}

// New returns a Replicator over an already open store. Backend and Path in
// opts are ignored. The caller keeps ownership of s.
func New(s *store.Store, opts Options) (*Replicator, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxRecords := opts.MaxRecords
	if maxRecords == 0 {
		maxRecords = model.DefaultMaxRecords
	}

	return &Replicator{
		store:      s,
		compiler:   querysql.NewCompiler(opts.Strictness == Strict, querysql.WithLogger(logger)),
		strictness: opts.Strictness,
		maxRecords: maxRecords,
		logger:     logger,
	}, nil
}

// Close closes the store if the Replicator opened it.
func (r *Replicator) Close() error {
	if !r.ownsStore {
		return nil
	}
	return r.store.Close()
}

// Store returns the underlying store.
func (r *Replicator) Store() *store.Store {
	return r.store
}

// mode reads the derived mode, rejecting a dirty store.
func mode(ctx context.Context, tx *store.Tx) (model.Mode, error) {
	m, err := tx.Mode(ctx)
	if err != nil {
		return m, err
	}
	if m == model.ModeDirty {
		return m, syncerr.Dirty()
	}
	return m, nil
}
