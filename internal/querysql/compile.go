package querysql

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/Pjt727/classy-sync/internal/model"
	"github.com/Pjt727/classy-sync/internal/syncerr"
)

// identPattern is the only shape a column name may take. Names are
// interpolated into statement text, so anything else is rejected before SQL
// is built.
const identPattern = `^[A-Za-z_][A-Za-z0-9_]*$`

// Compiler compiles change records to parameterized SQL for SQLite.
//
// CRITICAL: Values are always bound as ? parameters, never interpolated.
// Table names come from the model allow-list and column names must match
// identPattern.
type Compiler struct {
	ident  *regexp.Regexp
	strict bool
	logger *slog.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger sets the logger used for compiled SQL and lenient-mode warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Compiler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCompiler creates a Compiler. In strict mode a statement that does not
// affect exactly one row is an error; otherwise it is logged and ignored.
func NewCompiler(strict bool, opts ...Option) *Compiler {
	c := &Compiler{
		ident:  regexp.MustCompile(identPattern),
		strict: strict,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Strict reports whether row-count mismatches are errors.
func (c *Compiler) Strict() bool {
	return c.strict
}

// Statement is one compiled SQL statement with its positional parameters.
type Statement struct {
	SQL    string
	Params []any
}

// IsZero reports whether the statement is empty, meaning there is nothing to execute.
func (s Statement) IsZero() bool {
	return s.SQL == ""
}

// Verify checks that a record can be compiled safely.
// Every offending column is reported, key fields first.
func (c *Compiler) Verify(rec model.ChangeRecord) error {
	if !rec.Table.Valid() {
		return syncerr.InputValidation("table %q is not a catalog table", rec.Table)
	}
	if !rec.Action.Valid() {
		return syncerr.InputValidation("unknown action %q for table %s", rec.Action, rec.Table)
	}
	if len(rec.KeyFields) == 0 {
		return syncerr.InputValidation("%s on %s has no key fields", rec.Action, rec.Table)
	}

	var bad []string
	for _, fs := range []model.Fields{rec.KeyFields, rec.ChangedFields} {
		for _, f := range fs {
			if !c.ident.MatchString(f.Name) {
				bad = append(bad, f.Name)
			}
		}
	}
	if len(bad) > 0 {
		return syncerr.InvalidColumns(rec, bad)
	}
	return nil
}

// Compile verifies rec and converts it to a parameterized statement.
// An update without changed fields compiles to the zero Statement.
func (c *Compiler) Compile(rec model.ChangeRecord) (Statement, error) {
	if err := c.Verify(rec); err != nil {
		return Statement{}, err
	}

	switch rec.Action {
	case model.ActionInsert:
		return compileInsert(rec)
	case model.ActionUpdate:
		return compileUpdate(rec)
	case model.ActionDelete:
		return compileDelete(rec)
	default:
		return Statement{}, syncerr.InputValidation("unknown action %q", rec.Action)
	}
}

// compileInsert lists key fields then changed fields, bound in that order.
func compileInsert(rec model.ChangeRecord) (Statement, error) {
	fields := make(model.Fields, 0, len(rec.KeyFields)+len(rec.ChangedFields))
	fields = append(fields, rec.KeyFields...)
	fields = append(fields, rec.ChangedFields...)

	params, err := fieldParams(fields)
	if err != nil {
		return Statement{}, err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(fields)), ", ")
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		rec.Table,
		strings.Join(fields.Names(), ", "),
		placeholders)

	return Statement{SQL: sql, Params: params}, nil
}

// compileUpdate binds SET parameters first, then WHERE parameters.
func compileUpdate(rec model.ChangeRecord) (Statement, error) {
	if len(rec.ChangedFields) == 0 {
		return Statement{}, nil
	}

	setSQL, setParams, err := compileAssignments(rec.ChangedFields, ", ")
	if err != nil {
		return Statement{}, err
	}
	whereSQL, whereParams, err := compileAssignments(rec.KeyFields, " AND ")
	if err != nil {
		return Statement{}, err
	}

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s", rec.Table, setSQL, whereSQL)
	return Statement{SQL: sql, Params: append(setParams, whereParams...)}, nil
}

func compileDelete(rec model.ChangeRecord) (Statement, error) {
	whereSQL, params, err := compileAssignments(rec.KeyFields, " AND ")
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: fmt.Sprintf("DELETE FROM %s WHERE %s", rec.Table, whereSQL), Params: params}, nil
}

// compileAssignments renders "col = ?" fragments joined by sep.
func compileAssignments(fields model.Fields, sep string) (string, []any, error) {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s = ?", f.Name))
	}
	params, err := fieldParams(fields)
	if err != nil {
		return "", nil, err
	}
	return strings.Join(parts, sep), params, nil
}

func fieldParams(fields model.Fields) ([]any, error) {
	params := make([]any, 0, len(fields))
	for _, f := range fields {
		p, err := scalarToParam(f.Value)
		if err != nil {
			return nil, syncerr.InputValidation("field %q: %v", f.Name, err)
		}
		params = append(params, p)
	}
	return params, nil
}

// scalarToParam converts a model.Scalar to a Go native type for a SQL parameter.
// Booleans are stored as 0/1 integers.
func scalarToParam(v model.Scalar) (any, error) {
	switch val := v.(type) {
	case model.Text:
		return string(val), nil
	case model.Null:
		return nil, nil
	case model.Bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case model.Int:
		return int64(val), nil
	case model.Real:
		return float64(val), nil
	default:
		return nil, fmt.Errorf("unsupported value type for SQL parameter: %T", v)
	}
}
