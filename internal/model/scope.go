package model

import "fmt"

// Scope identifies a sync granularity: a whole school (Term empty) or a
// single term of a school.
type Scope struct {
	School string
	Term   string
}

// SchoolScope returns the whole-school scope for school.
func SchoolScope(school string) Scope {
	return Scope{School: school}
}

// TermScope returns the term-level scope for (school, term).
func TermScope(school, term string) Scope {
	return Scope{School: school, Term: term}
}

// IsWholeSchool reports whether the scope covers every term of its school.
func (s Scope) IsWholeSchool() bool {
	return s.Term == ""
}

func (s Scope) String() string {
	if s.IsWholeSchool() {
		return s.School
	}
	return fmt.Sprintf("%s/%s", s.School, s.Term)
}

// Mode is the sync strategy derived from what the state store holds.
type Mode int

const (
	// ModeUnset means no strategy has been registered.
	ModeUnset Mode = iota
	// ModeAll means a global watermark exists and no scopes are registered.
	ModeAll
	// ModeSelect means scopes are registered and no global watermark exists.
	ModeSelect
	// ModeDirty means both kinds of evidence exist. Correct operation never
	// produces it; it requires manual remediation.
	ModeDirty
)

// ModeOf classifies the store from its two kinds of evidence.
func ModeOf(hasAll, hasSelect bool) Mode {
	switch {
	case hasAll && hasSelect:
		return ModeDirty
	case hasAll:
		return ModeAll
	case hasSelect:
		return ModeSelect
	default:
		return ModeUnset
	}
}

func (m Mode) String() string {
	switch m {
	case ModeUnset:
		return "unset"
	case ModeAll:
		return "all"
	case ModeSelect:
		return "select"
	case ModeDirty:
		return "dirty"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}
