package replicate

import (
	"context"
	"log/slog"

	"github.com/Pjt727/classy-sync/internal/model"
	"github.com/Pjt727/classy-sync/internal/store"
	"github.com/Pjt727/classy-sync/internal/syncerr"
)

// ApplyAllResult records payload's watermark and applies its changes in
// order, in one transaction. The store must be in all mode and the watermark
// may not move backwards.
func (r *Replicator) ApplyAllResult(ctx context.Context, payload model.AllResultPayload) error {
	return r.store.WithTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		m, err := mode(ctx, tx)
		if err != nil {
			return err
		}
		if m != model.ModeAll {
			return syncerr.StateConflict("cannot apply an all result in %s mode", m)
		}

		latest, err := tx.LatestAllWatermark(ctx)
		if err != nil {
			return err
		}
		if payload.NewWatermark < latest {
			return syncerr.DataIntegrity("new watermark %d is behind last sync %d", payload.NewWatermark, latest)
		}

		if err := tx.InsertAllWatermark(ctx, payload.NewWatermark); err != nil {
			return err
		}
		if err := r.applyChanges(ctx, tx, payload.Changes); err != nil {
			return err
		}

		r.logger.Info("applied all result",
			slog.Uint64("watermark", payload.NewWatermark),
			slog.Int("changes", len(payload.Changes)),
			slog.Bool("has_more", payload.HasMore))
		return nil
	})
}

// ApplySelectResult records payload's scope watermarks and applies its
// changes, in one transaction. The store must be in select mode.
//
// Every updated watermark is checked against echo, the request the payload
// answers: the school must have been requested at the same granularity,
// every term must have been requested, and no watermark may move backwards.
// Each scope must also still be registered at that granularity.
//
// When a whole-school watermark advances to w, the school's term scopes at
// or below w are retired: the whole-school sync now covers them, so they are
// no longer sent as exclusions.
func (r *Replicator) ApplySelectResult(ctx context.Context, echo model.SelectRequest, payload model.SelectResultPayload) error {
	if err := checkEcho(echo, payload); err != nil {
		return err
	}

	return r.store.WithTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		m, err := mode(ctx, tx)
		if err != nil {
			return err
		}
		if m != model.ModeSelect {
			return syncerr.StateConflict("cannot apply a select result in %s mode", m)
		}

		watermarks := payload.ScopeWatermarks()
		for _, sw := range watermarks {
			if err := checkRegistered(ctx, tx, sw.Scope); err != nil {
				return err
			}
			if err := tx.InsertScopeWatermark(ctx, sw.Scope, sw.Watermark); err != nil {
				return err
			}
		}
		if err := r.retireExclusions(ctx, tx, watermarks); err != nil {
			return err
		}
		if err := r.applyChanges(ctx, tx, payload.Changes); err != nil {
			return err
		}

		r.logger.Info("applied select result",
			slog.Int("scopes", len(watermarks)),
			slog.Int("changes", len(payload.Changes)),
			slog.Bool("any_has_more", payload.AnyHasMore))
		return nil
	})
}

// checkRegistered rejects a watermark for a scope the store no longer syncs
// at the answered granularity, which happens when the echo predates an unset.
func checkRegistered(ctx context.Context, tx *store.Tx, scope model.Scope) error {
	ok, err := tx.IsRegistered(ctx, scope)
	if err != nil {
		return err
	}
	if !ok {
		return syncerr.DataIntegrity("scope %s is not registered", scope)
	}
	if scope.IsWholeSchool() {
		return nil
	}
	whole, err := tx.IsRegistered(ctx, model.SchoolScope(scope.School))
	if err != nil {
		return err
	}
	if whole {
		return syncerr.DataIntegrity("term %s was answered but school %q is synced whole", scope, scope.School)
	}
	return nil
}

// checkEcho validates payload's watermarks against the request they answer.
func checkEcho(echo model.SelectRequest, payload model.SelectResultPayload) error {
	for school, got := range payload.UpdatedWatermarks {
		sent, ok := echo.Schools[school]
		if !ok {
			return syncerr.DataIntegrity("school %q was not requested", school)
		}
		if got.IsWholeSchool() != sent.IsWholeSchool() {
			return syncerr.DataIntegrity("school %q answered at a different granularity than requested", school)
		}
		if got.IsWholeSchool() {
			if got.Sequence < sent.Sequence {
				return syncerr.DataIntegrity("school %q watermark %d is behind requested %d", school, got.Sequence, sent.Sequence)
			}
			continue
		}
		for term, seq := range got.Terms {
			from, ok := sent.Terms[term]
			if !ok {
				return syncerr.DataIntegrity("term %s/%s was not requested", school, term)
			}
			if seq < from {
				return syncerr.DataIntegrity("term %s/%s watermark %d is behind requested %d", school, term, seq, from)
			}
		}
	}
	return nil
}

func (r *Replicator) retireExclusions(ctx context.Context, tx *store.Tx, watermarks []model.ScopeWatermark) error {
	covered := make(map[string]uint64)
	for _, sw := range watermarks {
		if sw.Scope.IsWholeSchool() {
			covered[sw.Scope.School] = sw.Watermark
		}
	}
	if len(covered) == 0 {
		return nil
	}

	terms, err := tx.TermWatermarks(ctx)
	if err != nil {
		return err
	}
	for _, tw := range terms {
		upTo, ok := covered[tw.Scope.School]
		if !ok || tw.Watermark > upTo {
			continue
		}
		if _, err := tx.UnregisterScope(ctx, tw.Scope); err != nil {
			return err
		}
		r.logger.Debug("retired exclusion",
			slog.String("scope", tw.Scope.String()),
			slog.Uint64("watermark", tw.Watermark),
			slog.Uint64("school_watermark", upTo))
	}
	return nil
}

func (r *Replicator) applyChanges(ctx context.Context, tx *store.Tx, changes []model.ChangeRecord) error {
	batch := r.compiler.NewBatch(tx.SQL())
	defer batch.Close()

	if err := batch.ApplyAll(ctx, changes); err != nil {
		return err
	}
	r.logger.Debug("applied changes",
		slog.Int("executed", batch.Executed()),
		slog.Int("prepared", batch.Prepared()))
	return nil
}
