package model

import (
	"fmt"
	"sort"
	"strings"
)

// Resources describes what a caller wants synchronized: everything, or a
// selection of schools.
type Resources interface {
	resources() // Sealed - only Everything and Selection implement it
}

// Everything selects every row the remote service offers.
type Everything struct{}

func (Everything) resources() {}

func (Everything) String() string { return "everything" }

// Collection is what to sync for one school.
type Collection struct {
	// AllSchoolData selects every term of the school.
	AllSchoolData bool
	// Terms selects individual terms. Ignored when AllSchoolData is set.
	Terms []string
}

// AllSchoolData returns the whole-school collection.
func AllSchoolData() Collection {
	return Collection{AllSchoolData: true}
}

// SelectTermData returns a term-level collection.
func SelectTermData(terms ...string) Collection {
	return Collection{Terms: terms}
}

// Selection maps school identifiers to the collection to sync for each.
type Selection map[string]Collection

func (Selection) resources() {}

// Schools returns the selected schools sorted, for deterministic processing.
func (s Selection) Schools() []string {
	schools := make([]string, 0, len(s))
	for school := range s {
		schools = append(schools, school)
	}
	sort.Strings(schools)
	return schools
}

// Scopes expands the selection into the scopes it names, in deterministic order.
func (s Selection) Scopes() []Scope {
	var scopes []Scope
	for _, school := range s.Schools() {
		c := s[school]
		if c.AllSchoolData {
			scopes = append(scopes, SchoolScope(school))
			continue
		}
		terms := append([]string(nil), c.Terms...)
		sort.Strings(terms)
		for _, term := range terms {
			scopes = append(scopes, TermScope(school, term))
		}
	}
	return scopes
}

func (s Selection) String() string {
	parts := make([]string, 0, len(s))
	for _, school := range s.Schools() {
		c := s[school]
		if c.AllSchoolData {
			parts = append(parts, school)
			continue
		}
		terms := append([]string(nil), c.Terms...)
		sort.Strings(terms)
		parts = append(parts, fmt.Sprintf("%s,%s", school, strings.Join(terms, ",")))
	}
	return strings.Join(parts, ";")
}
