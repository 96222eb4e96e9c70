package model

import (
	"encoding/json"
	"fmt"
)

// Table names a catalog table a change record may target.
// Only the values in the allow-list below are valid; the name is interpolated
// into statement text, so it must never be an arbitrary string.
type Table string

// Catalog tables that accept change records.
const (
	TableMeetingTimes    Table = "meeting_times"
	TableSections        Table = "sections"
	TableProfessors      Table = "professors"
	TableCourses         Table = "courses"
	TableTermCollections Table = "term_collections"
	TableSchools         Table = "schools"
)

// Tables is the allow-list of catalog tables.
var Tables = []Table{
	TableMeetingTimes,
	TableSections,
	TableProfessors,
	TableCourses,
	TableTermCollections,
	TableSchools,
}

// Valid reports whether t is in the allow-list.
func (t Table) Valid() bool {
	for _, known := range Tables {
		if t == known {
			return true
		}
	}
	return false
}

// UnmarshalJSON implements json.Unmarshaler, rejecting tables outside the allow-list.
func (t *Table) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("table: %w", err)
	}
	if !Table(s).Valid() {
		return fmt.Errorf("table %q is not a catalog table", s)
	}
	*t = Table(s)
	return nil
}

// Action is the kind of change a record describes.
type Action string

// Change record actions.
const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionInsert, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// UnmarshalJSON implements json.Unmarshaler, rejecting unknown actions.
func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("action: %w", err)
	}
	if !Action(s).Valid() {
		return fmt.Errorf("unknown action %q", s)
	}
	*a = Action(s)
	return nil
}

// ChangeRecord is one insert, update, or delete against one catalog table.
//
// Field names are NOT sanitized by decoding. They are interpolated into
// statement text, so the compiler verifies every name before building SQL.
type ChangeRecord struct {
	Table         Table  `json:"table"`
	Action        Action `json:"action"`
	KeyFields     Fields `json:"key_fields"`
	ChangedFields Fields `json:"changed_fields"`
}

// String renders the record as JSON for diagnostics.
func (r ChangeRecord) String() string {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf("%s %s <unprintable: %v>", r.Action, r.Table, err)
	}
	return string(data)
}
