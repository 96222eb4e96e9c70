package querysql

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/Pjt727/classy-sync/internal/model"
	"github.com/Pjt727/classy-sync/internal/syncerr"
)

// expectedRows is the row count every change record must affect.
const expectedRows = 1

// Batch executes change records inside a caller-supplied transaction.
// Prepared statements are cached by SQL text for the lifetime of the batch,
// so same-shape records reuse one statement.
//
// A Batch is not safe for concurrent use and must be closed before the
// transaction commits or rolls back.
type Batch struct {
	compiler *Compiler
	tx       *sql.Tx
	stmts    map[string]*sql.Stmt
	executed int
}

// NewBatch creates a batch bound to tx.
func (c *Compiler) NewBatch(tx *sql.Tx) *Batch {
	return &Batch{
		compiler: c,
		tx:       tx,
		stmts:    make(map[string]*sql.Stmt),
	}
}

// Apply verifies, compiles, and executes rec.
//
// An update without changed fields is logged and succeeds without executing
// anything. A statement affecting other than one row fails in strict mode
// with a RowCountMismatch error and is logged in lenient mode.
func (b *Batch) Apply(ctx context.Context, rec model.ChangeRecord) error {
	logger := b.compiler.logger

	stmt, err := b.compiler.Compile(rec)
	if err != nil {
		return err
	}
	if stmt.IsZero() {
		logger.Warn("update without changed fields skipped",
			slog.String("table", string(rec.Table)),
			slog.String("record", rec.String()))
		return nil
	}

	prepared, err := b.prepare(ctx, stmt.SQL)
	if err != nil {
		return syncerr.QueryFailed(stmt.SQL, stmt.Params, err)
	}

	logger.Debug("executing change record",
		slog.String("sql", stmt.SQL),
		slog.Any("params", stmt.Params))

	result, err := prepared.ExecContext(ctx, stmt.Params...)
	if err != nil {
		return syncerr.QueryFailed(stmt.SQL, stmt.Params, err)
	}
	b.executed++

	affected, err := result.RowsAffected()
	if err != nil {
		return syncerr.QueryFailed(stmt.SQL, stmt.Params, err)
	}
	if affected == expectedRows {
		return nil
	}
	if b.compiler.strict {
		return syncerr.RowCountMismatch(stmt.SQL, stmt.Params, affected, expectedRows)
	}
	logger.Warn("unexpected affected row count",
		slog.String("sql", stmt.SQL),
		slog.Int64("actual", affected),
		slog.Int64("expected", expectedRows))
	return nil
}

// ApplyAll applies records in order, stopping at the first failure.
func (b *Batch) ApplyAll(ctx context.Context, recs []model.ChangeRecord) error {
	for _, rec := range recs {
		if err := b.Apply(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (b *Batch) prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	if stmt, ok := b.stmts[query]; ok {
		return stmt, nil
	}
	stmt, err := b.tx.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	b.stmts[query] = stmt
	return stmt, nil
}

// Prepared returns the number of distinct statements prepared so far.
func (b *Batch) Prepared() int {
	return len(b.stmts)
}

// Executed returns the number of statements executed so far.
func (b *Batch) Executed() int {
	return b.executed
}

// Close releases every cached statement.
func (b *Batch) Close() error {
	var errs []error
	for query, stmt := range b.stmts {
		if err := stmt.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(b.stmts, query)
	}
	return errors.Join(errs...)
}
