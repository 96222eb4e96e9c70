package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Pjt727/classy-sync/internal/store"
	"github.com/Pjt727/classy-sync/internal/syncerr"
)

// Scenario defines an end-to-end sync state machine check.
// Steps drive one Replicator in order; assertions inspect the final state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Backend selects the SQLite driver. Defaults to sqlite3.
	Backend string `yaml:"backend,omitempty"`

	// Strict selects row-count strictness. It has no default.
	Strict *bool `yaml:"strict"`

	// MaxRecords is sent with every request. Zero means the default limit.
	MaxRecords uint16 `yaml:"max_records,omitempty"`

	// Steps run in order against one store.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	// Supported types: final_state, row_count, status
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one operation. Exactly one of the operation fields is set.
type Step struct {
	// Set registers resources, written as a selection string.
	Set string `yaml:"set,omitempty"`

	// Unset removes resources, written as a selection string.
	Unset string `yaml:"unset,omitempty"`

	// ApplyAll is an all result payload in its wire shape.
	ApplyAll map[string]any `yaml:"apply_all,omitempty"`

	// ApplySelect is a select result payload in its wire shape. The echo is
	// the request generated right before applying.
	ApplySelect map[string]any `yaml:"apply_select,omitempty"`

	// ExpectRequest is the next request in its wire shape. An empty map only
	// generates the request, for use with ExpectError.
	ExpectRequest map[string]any `yaml:"expect_request,omitempty"`

	// ExpectError is the error kind the step must fail with, e.g. STATE_CONFLICT.
	// Empty means the step must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step operation names.
const (
	OpSet           = "set"
	OpUnset         = "unset"
	OpApplyAll      = "apply_all"
	OpApplySelect   = "apply_select"
	OpExpectRequest = "expect_request"
)

// Op returns the step's operation name.
func (s Step) Op() (string, error) {
	var ops []string
	if s.Set != "" {
		ops = append(ops, OpSet)
	}
	if s.Unset != "" {
		ops = append(ops, OpUnset)
	}
	if s.ApplyAll != nil {
		ops = append(ops, OpApplyAll)
	}
	if s.ApplySelect != nil {
		ops = append(ops, OpApplySelect)
	}
	if s.ExpectRequest != nil {
		ops = append(ops, OpExpectRequest)
	}
	switch len(ops) {
	case 1:
		return ops[0], nil
	case 0:
		return "", fmt.Errorf("no operation")
	default:
		return "", fmt.Errorf("multiple operations: %s", strings.Join(ops, ", "))
	}
}

// Assertion validates the final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "final_state": Query one catalog row and verify expected values
	// - "row_count": Verify the number of rows in a table
	// - "status": Verify fields of the replicator status
	Type string `yaml:"type"`

	// Table is the table name (used by final_state and row_count).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (used by final_state).
	// All fields must match exactly.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected values (used by final_state and status).
	// Subset match - only specified fields are validated.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of rows (used by row_count).
	Count *int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalState = "final_state"
	AssertRowCount   = "row_count"
	AssertStatus     = "status"
)

var errorKinds = map[string]bool{
	string(syncerr.KindInputValidation):  true,
	string(syncerr.KindStateConflict):    true,
	string(syncerr.KindQueryExecution):   true,
	string(syncerr.KindRowCountMismatch): true,
	string(syncerr.KindDataIntegrity):    true,
	string(syncerr.KindTransport):        true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every .yaml and .yml file in dir, in file name order.
func LoadScenarios(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	names := make(map[string]string, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		if prev, ok := names[s.Name]; ok {
			return nil, fmt.Errorf("%s: scenario name %q already used by %s", filepath.Base(path), s.Name, prev)
		}
		names[s.Name] = filepath.Base(path)
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Strict == nil {
		return fmt.Errorf("strict is required")
	}

	if s.Backend != "" && !store.Backend(s.Backend).Valid() {
		return fmt.Errorf("unknown backend %q", s.Backend)
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if _, err := step.Op(); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		if step.ExpectError != "" && !errorKinds[step.ExpectError] {
			return fmt.Errorf("steps[%d]: unknown error kind %q", i, step.ExpectError)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertRowCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for row_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	case AssertStatus:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for status", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
