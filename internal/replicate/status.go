package replicate

import (
	"context"
	"sort"

	"github.com/Pjt727/classy-sync/internal/model"
	"github.com/Pjt727/classy-sync/internal/store"
)

// ScopeStatus is one registered scope with its watermark.
type ScopeStatus struct {
	Scope     model.Scope `json:"-"`
	School    string      `json:"school"`
	Term      string      `json:"term,omitempty"`
	Watermark uint64      `json:"watermark"`
	// Exclusion marks a term scope superseded by its school's whole-school scope.
	Exclusion bool `json:"exclusion,omitempty"`
}

// Status is a read-only view of the stored sync state.
type Status struct {
	Mode         string        `json:"mode"`
	AllWatermark uint64        `json:"all_watermark"`
	Scopes       []ScopeStatus `json:"scopes"`
	Backend      string        `json:"backend"`
	Strictness   string        `json:"strictness"`
}

// Status reports the stored state. Unlike every other operation it succeeds
// on a dirty store, so the state can be inspected before repair.
func (r *Replicator) Status(ctx context.Context) (Status, error) {
	st := Status{
		Backend:    string(r.store.Backend()),
		Strictness: r.strictness.String(),
		Scopes:     []ScopeStatus{},
	}

	err := r.store.WithTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		m, err := tx.Mode(ctx)
		if err != nil {
			return err
		}
		st.Mode = m.String()

		if st.AllWatermark, err = tx.LatestAllWatermark(ctx); err != nil {
			return err
		}

		schools, err := tx.SchoolWatermarks(ctx)
		if err != nil {
			return err
		}
		terms, err := tx.TermWatermarks(ctx)
		if err != nil {
			return err
		}

		whole := make(map[string]bool, len(schools))
		for _, sw := range schools {
			whole[sw.Scope.School] = true
			st.Scopes = append(st.Scopes, newScopeStatus(sw, false))
		}
		for _, tw := range terms {
			st.Scopes = append(st.Scopes, newScopeStatus(tw, whole[tw.Scope.School]))
		}
		sort.SliceStable(st.Scopes, func(i, j int) bool {
			if st.Scopes[i].School != st.Scopes[j].School {
				return st.Scopes[i].School < st.Scopes[j].School
			}
			return st.Scopes[i].Term < st.Scopes[j].Term
		})
		return nil
	})
	return st, err
}

func newScopeStatus(sw model.ScopeWatermark, exclusion bool) ScopeStatus {
	return ScopeStatus{
		Scope:     sw.Scope,
		School:    sw.Scope.School,
		Term:      sw.Scope.Term,
		Watermark: sw.Watermark,
		Exclusion: exclusion,
	}
}
