package replicate

import (
	"context"
	"log/slog"

	"github.com/Pjt727/classy-sync/internal/model"
	"github.com/Pjt727/classy-sync/internal/store"
	"github.com/Pjt727/classy-sync/internal/syncerr"
)

// SetResources registers what to sync.
//
// Everything fails with StateConflict while any scope is registered, is a
// no-op when already in all mode, and otherwise records a global watermark
// of 0. A Selection fails with StateConflict in all mode; otherwise every
// scope it names is registered in one transaction, so a failure on any
// school leaves nothing registered.
func (r *Replicator) SetResources(ctx context.Context, resources model.Resources) error {
	switch res := resources.(type) {
	case model.Everything:
		return r.store.WithTx(ctx, r.setEverything)
	case model.Selection:
		if err := validateSelection(res); err != nil {
			return err
		}
		return r.store.WithTx(ctx, func(ctx context.Context, tx *store.Tx) error {
			return r.setSelection(ctx, tx, res)
		})
	default:
		return syncerr.InputValidation("unsupported resources %T", resources)
	}
}

func (r *Replicator) setEverything(ctx context.Context, tx *store.Tx) error {
	m, err := mode(ctx, tx)
	if err != nil {
		return err
	}
	switch m {
	case model.ModeSelect:
		return syncerr.StateConflict("cannot sync everything while select scopes are registered")
	case model.ModeAll:
		r.logger.Debug("all mode already set")
		return nil
	}
	if err := tx.InsertAllWatermark(ctx, 0); err != nil {
		return err
	}
	r.logger.Info("registered resources", slog.String("resources", "everything"))
	return nil
}

func (r *Replicator) setSelection(ctx context.Context, tx *store.Tx, sel model.Selection) error {
	m, err := mode(ctx, tx)
	if err != nil {
		return err
	}
	if m == model.ModeAll {
		return syncerr.StateConflict("cannot select schools while syncing everything")
	}

	var added int
	for _, school := range sel.Schools() {
		collection := sel[school]
		if collection.AllSchoolData {
			inserted, err := tx.RegisterScope(ctx, model.SchoolScope(school))
			if err != nil {
				return err
			}
			if inserted {
				added++
			}
			continue
		}

		covered, err := tx.IsRegistered(ctx, model.SchoolScope(school))
		if err != nil {
			return err
		}
		if covered {
			return syncerr.StateConflict("school %q is already fully covered", school)
		}
		for _, term := range collection.Terms {
			inserted, err := tx.RegisterScope(ctx, model.TermScope(school, term))
			if err != nil {
				return err
			}
			if inserted {
				added++
			}
		}
	}

	r.logger.Info("registered resources",
		slog.String("resources", sel.String()),
		slog.Int("new_scopes", added))
	return nil
}

// UnsetResources removes registered resources and their watermark history.
//
// Everything clears the global watermark history in all mode, is a no-op
// when unset, and is a StateConflict in select mode. A Selection is a
// StateConflict in all mode. AllSchoolData removes the school's whole-school
// scope and every term scope of the school; SelectTermData removes each named
// term scope. Scopes that were never registered are ignored. Removing the
// last scope returns the store to the unset mode.
func (r *Replicator) UnsetResources(ctx context.Context, resources model.Resources) error {
	switch res := resources.(type) {
	case model.Everything:
		return r.store.WithTx(ctx, r.unsetEverything)
	case model.Selection:
		if err := validateSelection(res); err != nil {
			return err
		}
		return r.store.WithTx(ctx, func(ctx context.Context, tx *store.Tx) error {
			return r.unsetSelection(ctx, tx, res)
		})
	default:
		return syncerr.InputValidation("unsupported resources %T", resources)
	}
}

func (r *Replicator) unsetEverything(ctx context.Context, tx *store.Tx) error {
	m, err := mode(ctx, tx)
	if err != nil {
		return err
	}
	switch m {
	case model.ModeSelect:
		return syncerr.StateConflict("cannot unset everything while select scopes are registered")
	case model.ModeUnset:
		return nil
	}
	if err := tx.ClearAllWatermarks(ctx); err != nil {
		return err
	}
	r.logger.Info("unregistered resources", slog.String("resources", "everything"))
	return nil
}

func (r *Replicator) unsetSelection(ctx context.Context, tx *store.Tx, sel model.Selection) error {
	m, err := mode(ctx, tx)
	if err != nil {
		return err
	}
	switch m {
	case model.ModeAll:
		return syncerr.StateConflict("cannot unset schools while syncing everything")
	case model.ModeUnset:
		return nil
	}

	registered, err := tx.RegisteredScopes(ctx)
	if err != nil {
		return err
	}

	var targets []model.Scope
	for _, school := range sel.Schools() {
		collection := sel[school]
		if collection.AllSchoolData {
			// Whole-school scope first, then every term of the school.
			targets = append(targets, model.SchoolScope(school))
			for _, scope := range registered {
				if scope.School == school && !scope.IsWholeSchool() {
					targets = append(targets, scope)
				}
			}
			continue
		}
		for _, term := range collection.Terms {
			targets = append(targets, model.TermScope(school, term))
		}
	}

	var removed int
	for _, scope := range targets {
		ok, err := tx.UnregisterScope(ctx, scope)
		if err != nil {
			return err
		}
		if ok {
			removed++
		}
	}

	r.logger.Info("unregistered resources",
		slog.String("resources", sel.String()),
		slog.Int("removed_scopes", removed))
	return nil
}

// GenerateNextRequest describes the next request from the stored state.
//
// In select mode, a term scope whose school also has a whole-school scope is
// reported as an exclusion at its current watermark instead of a request entry.
func (r *Replicator) GenerateNextRequest(ctx context.Context) (model.Request, error) {
	var req model.Request
	err := r.store.WithTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		m, err := mode(ctx, tx)
		if err != nil {
			return err
		}
		switch m {
		case model.ModeUnset:
			return syncerr.NoStrategy()
		case model.ModeAll:
			lastSync, err := tx.LatestAllWatermark(ctx)
			if err != nil {
				return err
			}
			req = model.AllRequest{LastSync: lastSync, MaxRecords: model.MaxRecords(r.maxRecords)}
			return nil
		default:
			req, err = r.selectRequest(ctx, tx)
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *Replicator) selectRequest(ctx context.Context, tx *store.Tx) (model.SelectRequest, error) {
	req := model.NewSelectRequest(model.MaxRecords(r.maxRecords))

	schools, err := tx.SchoolWatermarks(ctx)
	if err != nil {
		return req, err
	}
	terms, err := tx.TermWatermarks(ctx)
	if err != nil {
		return req, err
	}

	whole := make(map[string]bool, len(schools))
	for _, sw := range schools {
		whole[sw.Scope.School] = true
		if err := req.AddSchool(sw.Scope.School, sw.Watermark); err != nil {
			return req, syncerr.DataIntegrity("%v", err)
		}
	}
	for _, tw := range terms {
		if whole[tw.Scope.School] {
			err = req.AddExclusion(tw.Scope.School, tw.Scope.Term, tw.Watermark)
		} else {
			err = req.AddTerm(tw.Scope.School, tw.Scope.Term, tw.Watermark)
		}
		if err != nil {
			return req, syncerr.DataIntegrity("%v", err)
		}
	}
	return req, nil
}

// validateSelection rejects selections that cannot name a scope.
func validateSelection(sel model.Selection) error {
	if len(sel) == 0 {
		return syncerr.InputValidation("selection names no schools")
	}
	for _, school := range sel.Schools() {
		if school == "" {
			return syncerr.InputValidation("empty school identifier")
		}
		collection := sel[school]
		if collection.AllSchoolData {
			continue
		}
		if len(collection.Terms) == 0 {
			return syncerr.InputValidation("school %q selects no terms", school)
		}
		for _, term := range collection.Terms {
			if term == "" {
				return syncerr.InputValidation("empty term identifier for school %q", school)
			}
		}
	}
	return nil
}
