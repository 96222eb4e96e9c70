// Package selection parses sync instructions given on the command line.
//
// An instruction is either the literal "everything" or a list of schools
// separated by semicolons, each optionally followed by comma separated terms:
//
//	marist;temple,202440,202540
//
// selects every term of marist and two terms of temple.
package selection

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/Pjt727/classy-sync/internal/model"
	"github.com/Pjt727/classy-sync/internal/syncerr"
)

// Everything is the instruction selecting every row the remote service offers.
const Everything = "everything"

const (
	schoolSep = ";"
	termSep   = ","
)

// Parse converts an instruction into resources.
//
// Identifiers are trimmed and NFC-normalized. Segments naming the same school
// with terms are merged and duplicate terms collapse. A school named both
// alone and with terms is rejected, as is any empty segment or identifier.
func Parse(input string) (model.Resources, error) {
	input = strings.TrimSpace(norm.NFC.String(input))
	if input == "" {
		return nil, syncerr.InputValidation("empty sync instructions")
	}
	if strings.EqualFold(input, Everything) {
		return model.Everything{}, nil
	}

	whole := make(map[string]bool)
	terms := make(map[string]map[string]bool)

	for i, segment := range strings.Split(input, schoolSep) {
		parts := strings.Split(segment, termSep)
		for j := range parts {
			parts[j] = strings.TrimSpace(parts[j])
		}

		school := parts[0]
		if school == "" {
			return nil, syncerr.InputValidation("segment %d of %q names no school", i+1, input)
		}
		if len(parts) == 1 {
			if terms[school] != nil {
				return nil, syncerr.InputValidation("school %q is selected both whole and by term", school)
			}
			whole[school] = true
			continue
		}

		if whole[school] {
			return nil, syncerr.InputValidation("school %q is selected both whole and by term", school)
		}
		if terms[school] == nil {
			terms[school] = make(map[string]bool)
		}
		for _, term := range parts[1:] {
			if term == "" {
				return nil, syncerr.InputValidation("school %q has an empty term in %q", school, segment)
			}
			terms[school][term] = true
		}
	}

	sel := make(model.Selection, len(whole)+len(terms))
	for school := range whole {
		sel[school] = model.AllSchoolData()
	}
	for school, set := range terms {
		list := make([]string, 0, len(set))
		for term := range set {
			list = append(list, term)
		}
		sort.Strings(list)
		sel[school] = model.SelectTermData(list...)
	}
	return sel, nil
}

// Format renders resources back into instruction form.
func Format(resources model.Resources) string {
	switch res := resources.(type) {
	case model.Everything:
		return Everything
	case model.Selection:
		return res.String()
	default:
		return ""
	}
}
