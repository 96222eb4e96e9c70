package store

import (
	"context"
	"database/sql"
	"math"

	"github.com/Pjt727/classy-sync/internal/model"
	"github.com/Pjt727/classy-sync/internal/syncerr"
)

// Tx exposes the sync state capabilities inside one transaction.
// Obtain one from Store.WithTx; it must not outlive the callback.
type Tx struct {
	tx *sql.Tx
}

// SQL returns the underlying transaction, for executing change records in
// the same unit as watermark updates.
func (t *Tx) SQL() *sql.Tx {
	return t.tx
}

// HasAllMode reports whether any global watermark row exists.
func (t *Tx) HasAllMode(ctx context.Context) (bool, error) {
	return t.exists(ctx, "has all mode", `SELECT EXISTS (SELECT 1 FROM _previous_all_collections)`)
}

// HasSelectMode reports whether any scope is registered.
func (t *Tx) HasSelectMode(ctx context.Context) (bool, error) {
	return t.exists(ctx, "has select mode", `SELECT EXISTS (SELECT 1 FROM _school_strategies)`)
}

// Mode derives the sync mode from both kinds of evidence.
func (t *Tx) Mode(ctx context.Context) (model.Mode, error) {
	hasAll, err := t.HasAllMode(ctx)
	if err != nil {
		return model.ModeUnset, err
	}
	hasSelect, err := t.HasSelectMode(ctx)
	if err != nil {
		return model.ModeUnset, err
	}
	return model.ModeOf(hasAll, hasSelect), nil
}

// LatestAllWatermark returns the highest global watermark, or 0.
func (t *Tx) LatestAllWatermark(ctx context.Context) (uint64, error) {
	return t.watermark(ctx, "latest all watermark", `
		SELECT COALESCE(MAX(synced_at), 0) FROM _previous_all_collections
	`)
}

// LatestScopeWatermark returns the highest recorded watermark of scope, or 0.
func (t *Tx) LatestScopeWatermark(ctx context.Context, scope model.Scope) (uint64, error) {
	if scope.IsWholeSchool() {
		return t.watermark(ctx, "latest school watermark", `
			SELECT COALESCE(MAX(synced_at), 0)
			FROM _previous_school_collections
			WHERE school_id = ?
		`, scope.School)
	}
	return t.watermark(ctx, "latest term watermark", `
		SELECT COALESCE(MAX(synced_at), 0)
		FROM _previous_term_collections
		WHERE school_id = ? AND term_collection_id = ?
	`, scope.School, scope.Term)
}

// RegisteredScopes returns every registered scope, ordered by school with
// the whole-school scope before its terms.
func (t *Tx) RegisteredScopes(ctx context.Context) ([]model.Scope, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT school_id, COALESCE(term_collection_id, '')
		FROM _school_strategies
		ORDER BY school_id ASC, term_collection_id ASC
	`)
	if err != nil {
		return nil, syncerr.StoreFailed("registered scopes", err)
	}
	defer rows.Close()

	var scopes []model.Scope
	for rows.Next() {
		var s model.Scope
		if err := rows.Scan(&s.School, &s.Term); err != nil {
			return nil, syncerr.StoreFailed("registered scopes: scan", err)
		}
		scopes = append(scopes, s)
	}
	if err := rows.Err(); err != nil {
		return nil, syncerr.StoreFailed("registered scopes: iterate", err)
	}
	return scopes, nil
}

// IsRegistered reports whether scope is registered.
func (t *Tx) IsRegistered(ctx context.Context, scope model.Scope) (bool, error) {
	if scope.IsWholeSchool() {
		return t.exists(ctx, "is registered", `
			SELECT EXISTS (
				SELECT 1 FROM _school_strategies
				WHERE school_id = ? AND term_collection_id IS NULL
			)
		`, scope.School)
	}
	return t.exists(ctx, "is registered", `
		SELECT EXISTS (
			SELECT 1 FROM _school_strategies
			WHERE school_id = ? AND term_collection_id = ?
		)
	`, scope.School, scope.Term)
}

// SchoolWatermarks returns every registered whole-school scope with its
// highest watermark (0 when none was recorded), ordered by school.
func (t *Tx) SchoolWatermarks(ctx context.Context) ([]model.ScopeWatermark, error) {
	return t.scopeWatermarks(ctx, "school watermarks", `
		SELECT s.school_id, '', COALESCE(MAX(p.synced_at), 0)
		FROM _school_strategies s
		LEFT JOIN _previous_school_collections p ON p.school_id = s.school_id
		WHERE s.term_collection_id IS NULL
		GROUP BY s.school_id
		ORDER BY s.school_id ASC
	`)
}

// TermWatermarks returns every registered term scope with its highest
// watermark (0 when none was recorded), ordered by school then term.
func (t *Tx) TermWatermarks(ctx context.Context) ([]model.ScopeWatermark, error) {
	return t.scopeWatermarks(ctx, "term watermarks", `
		SELECT s.school_id, s.term_collection_id, COALESCE(MAX(p.synced_at), 0)
		FROM _school_strategies s
		LEFT JOIN _previous_term_collections p
			ON p.school_id = s.school_id AND p.term_collection_id = s.term_collection_id
		WHERE s.term_collection_id IS NOT NULL
		GROUP BY s.school_id, s.term_collection_id
		ORDER BY s.school_id ASC, s.term_collection_id ASC
	`)
}

// InsertAllWatermark records a global watermark.
func (t *Tx) InsertAllWatermark(ctx context.Context, seq uint64) error {
	v, err := toSQLSeq(seq)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `INSERT INTO _previous_all_collections (synced_at) VALUES (?)`, v)
	if err != nil {
		return syncerr.StoreFailed("insert all watermark", err)
	}
	return nil
}

// RegisterScope registers scope. Returns false if it was already registered.
func (t *Tx) RegisterScope(ctx context.Context, scope model.Scope) (bool, error) {
	var term any
	if !scope.IsWholeSchool() {
		term = scope.Term
	}
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO _school_strategies (school_id, term_collection_id)
		VALUES (?, ?)
		ON CONFLICT DO NOTHING
	`, scope.School, term)
	if err != nil {
		return false, syncerr.StoreFailed("register scope "+scope.String(), err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, syncerr.StoreFailed("register scope "+scope.String(), err)
	}
	return n > 0, nil
}

// InsertScopeWatermark records a watermark for scope.
func (t *Tx) InsertScopeWatermark(ctx context.Context, scope model.Scope, seq uint64) error {
	v, err := toSQLSeq(seq)
	if err != nil {
		return err
	}
	if scope.IsWholeSchool() {
		_, err = t.tx.ExecContext(ctx, `
			INSERT INTO _previous_school_collections (synced_at, school_id) VALUES (?, ?)
		`, v, scope.School)
	} else {
		_, err = t.tx.ExecContext(ctx, `
			INSERT INTO _previous_term_collections (synced_at, school_id, term_collection_id) VALUES (?, ?, ?)
		`, v, scope.School, scope.Term)
	}
	if err != nil {
		return syncerr.StoreFailed("insert scope watermark "+scope.String(), err)
	}
	return nil
}

// UnregisterScope removes scope's registration and its watermark history.
// Returns false if it was not registered. Term scopes of a school are not
// touched when its whole-school scope is removed.
func (t *Tx) UnregisterScope(ctx context.Context, scope model.Scope) (bool, error) {
	var (
		result sql.Result
		err    error
	)
	if scope.IsWholeSchool() {
		result, err = t.tx.ExecContext(ctx, `
			DELETE FROM _school_strategies WHERE school_id = ? AND term_collection_id IS NULL
		`, scope.School)
		if err == nil {
			_, err = t.tx.ExecContext(ctx, `
				DELETE FROM _previous_school_collections WHERE school_id = ?
			`, scope.School)
		}
	} else {
		result, err = t.tx.ExecContext(ctx, `
			DELETE FROM _school_strategies WHERE school_id = ? AND term_collection_id = ?
		`, scope.School, scope.Term)
		if err == nil {
			_, err = t.tx.ExecContext(ctx, `
				DELETE FROM _previous_term_collections WHERE school_id = ? AND term_collection_id = ?
			`, scope.School, scope.Term)
		}
	}
	if err != nil {
		return false, syncerr.StoreFailed("unregister scope "+scope.String(), err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, syncerr.StoreFailed("unregister scope "+scope.String(), err)
	}
	return n > 0, nil
}

// ClearAllWatermarks deletes the global watermark history.
func (t *Tx) ClearAllWatermarks(ctx context.Context) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM _previous_all_collections`); err != nil {
		return syncerr.StoreFailed("clear all watermarks", err)
	}
	return nil
}

func (t *Tx) exists(ctx context.Context, what, query string, args ...any) (bool, error) {
	var found int64
	if err := t.tx.QueryRowContext(ctx, query, args...).Scan(&found); err != nil {
		return false, syncerr.StoreFailed(what, err)
	}
	return found != 0, nil
}

func (t *Tx) watermark(ctx context.Context, what, query string, args ...any) (uint64, error) {
	var v int64
	if err := t.tx.QueryRowContext(ctx, query, args...).Scan(&v); err != nil {
		return 0, syncerr.StoreFailed(what, err)
	}
	return fromSQLSeq(what, v)
}

func (t *Tx) scopeWatermarks(ctx context.Context, what, query string) ([]model.ScopeWatermark, error) {
	rows, err := t.tx.QueryContext(ctx, query)
	if err != nil {
		return nil, syncerr.StoreFailed(what, err)
	}
	defer rows.Close()

	var out []model.ScopeWatermark
	for rows.Next() {
		var (
			sw model.ScopeWatermark
			v  int64
		)
		if err := rows.Scan(&sw.Scope.School, &sw.Scope.Term, &v); err != nil {
			return nil, syncerr.StoreFailed(what+": scan", err)
		}
		if sw.Watermark, err = fromSQLSeq(what, v); err != nil {
			return nil, err
		}
		out = append(out, sw)
	}
	if err := rows.Err(); err != nil {
		return nil, syncerr.StoreFailed(what+": iterate", err)
	}
	return out, nil
}

// toSQLSeq converts a watermark to a SQLite INTEGER, which is signed 64-bit.
func toSQLSeq(seq uint64) (int64, error) {
	if seq > math.MaxInt64 {
		return 0, syncerr.DataIntegrity("watermark %d does not fit a SQLite integer", seq)
	}
	return int64(seq), nil
}

func fromSQLSeq(what string, v int64) (uint64, error) {
	if v < 0 {
		return 0, syncerr.DataIntegrity("%s: negative watermark %d in store", what, v)
	}
	return uint64(v), nil
}
