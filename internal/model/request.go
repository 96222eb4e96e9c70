package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// DefaultMaxRecords is the per-request record limit sent when none is configured.
const DefaultMaxRecords uint16 = 10_000

// Request is the description of the next outbound sync request.
// Only AllRequest and SelectRequest implement it.
type Request interface {
	request() // Sealed
}

// AllRequest asks for every change after LastSync.
type AllRequest struct {
	LastSync   uint64  `json:"last_sync"`
	MaxRecords *uint16 `json:"max_records"`
}

func (AllRequest) request() {}

// AllResultPayload is the remote answer to an AllRequest.
type AllResultPayload struct {
	NewWatermark uint64         `json:"new_watermark"`
	Changes      []ChangeRecord `json:"changes"`
	HasMore      bool           `json:"has_more"`
}

// ScopeEntry is the per-school part of a select request or result: either a
// single whole-school sequence, or a sequence per term.
//
// On the wire it is a bare number or an object of term -> number.
type ScopeEntry struct {
	// Sequence is the whole-school watermark. Only meaningful when Terms is nil.
	Sequence uint64
	// Terms maps term identifiers to watermarks for term-level scopes.
	Terms map[string]uint64
}

// SchoolEntry returns a whole-school entry.
func SchoolEntry(seq uint64) ScopeEntry {
	return ScopeEntry{Sequence: seq}
}

// TermEntries returns a term-level entry.
func TermEntries(terms map[string]uint64) ScopeEntry {
	if terms == nil {
		terms = map[string]uint64{}
	}
	return ScopeEntry{Terms: terms}
}

// IsWholeSchool reports whether the entry is a single whole-school sequence.
func (e ScopeEntry) IsWholeSchool() bool {
	return e.Terms == nil
}

// MarshalJSON implements json.Marshaler.
func (e ScopeEntry) MarshalJSON() ([]byte, error) {
	if e.IsWholeSchool() {
		return json.Marshal(e.Sequence)
	}
	return json.Marshal(e.Terms)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *ScopeEntry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty scope entry")
	}
	if bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("scope entry must be a number or an object, got null")
	}
	if data[0] == '{' {
		var terms map[string]uint64
		if err := json.Unmarshal(data, &terms); err != nil {
			return fmt.Errorf("scope entry terms: %w", err)
		}
		*e = TermEntries(terms)
		return nil
	}
	var seq uint64
	if err := json.Unmarshal(data, &seq); err != nil {
		return fmt.Errorf("scope entry sequence: %w", err)
	}
	*e = SchoolEntry(seq)
	return nil
}

// SelectRequest asks for changes of individual schools and terms.
//
// Exclude carries term watermarks for schools that just moved from term-level
// to whole-school scope: those terms are covered by the whole-school entry and
// are only reported so the remote side can skip what is already current.
type SelectRequest struct {
	Exclude    map[string]map[string]uint64 `json:"exclude"`
	MaxRecords *uint16                      `json:"max_records"`
	Schools    map[string]ScopeEntry        `json:"schools"`
}

func (SelectRequest) request() {}

// NewSelectRequest returns an empty select request with the given record limit.
func NewSelectRequest(maxRecords *uint16) SelectRequest {
	return SelectRequest{
		Exclude:    map[string]map[string]uint64{},
		MaxRecords: maxRecords,
		Schools:    map[string]ScopeEntry{},
	}
}

// AddSchool adds a whole-school entry. A school can appear only once.
func (r *SelectRequest) AddSchool(school string, seq uint64) error {
	if _, ok := r.Schools[school]; ok {
		return fmt.Errorf("school %q is already in the request", school)
	}
	r.Schools[school] = SchoolEntry(seq)
	return nil
}

// AddTerm adds a term entry. It fails when the school already has a
// whole-school entry or the term is already present.
func (r *SelectRequest) AddTerm(school, term string, seq uint64) error {
	entry, ok := r.Schools[school]
	if !ok {
		entry = TermEntries(nil)
		r.Schools[school] = entry
	}
	if entry.IsWholeSchool() {
		return fmt.Errorf("school %q is already requested as a whole school at %d", school, entry.Sequence)
	}
	if old, ok := entry.Terms[term]; ok {
		return fmt.Errorf("term %s/%s is already in the request at %d", school, term, old)
	}
	entry.Terms[term] = seq
	return nil
}

// AddExclusion adds a term exclusion.
func (r *SelectRequest) AddExclusion(school, term string, seq uint64) error {
	terms, ok := r.Exclude[school]
	if !ok {
		terms = map[string]uint64{}
		r.Exclude[school] = terms
	}
	if old, ok := terms[term]; ok {
		return fmt.Errorf("term %s/%s is already excluded at %d", school, term, old)
	}
	terms[term] = seq
	return nil
}

// SelectResultPayload is the remote answer to a SelectRequest.
type SelectResultPayload struct {
	UpdatedWatermarks map[string]ScopeEntry `json:"updated_watermarks"`
	Changes           []ChangeRecord        `json:"changes"`
	AnyHasMore        bool                  `json:"any_has_more"`
}

// ScopeWatermark is one watermark row to record after a select result.
type ScopeWatermark struct {
	Scope     Scope
	Watermark uint64
}

// ScopeWatermarks flattens the updated watermarks into rows, sorted by scope.
func (p SelectResultPayload) ScopeWatermarks() []ScopeWatermark {
	var out []ScopeWatermark
	for school, entry := range p.UpdatedWatermarks {
		if entry.IsWholeSchool() {
			out = append(out, ScopeWatermark{Scope: SchoolScope(school), Watermark: entry.Sequence})
			continue
		}
		for term, seq := range entry.Terms {
			out = append(out, ScopeWatermark{Scope: TermScope(school, term), Watermark: seq})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Scope.School != out[j].Scope.School {
			return out[i].Scope.School < out[j].Scope.School
		}
		return out[i].Scope.Term < out[j].Scope.Term
	})
	return out
}

// MaxRecords returns a pointer to n, or nil when n is zero (no limit sent).
func MaxRecords(n uint16) *uint16 {
	if n == 0 {
		return nil
	}
	return &n
}
