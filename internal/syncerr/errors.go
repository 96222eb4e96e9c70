// Package syncerr defines the single error taxonomy shared by the state
// store, the change-record compiler, the result applier, and the transport
// boundary.
package syncerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes sync errors.
type Kind string

const (
	// KindInputValidation indicates malformed identifiers or selection instructions.
	KindInputValidation Kind = "INPUT_VALIDATION"

	// KindStateConflict indicates a mode mutual-exclusion violation or an
	// overlapping scope registration.
	KindStateConflict Kind = "STATE_CONFLICT"

	// KindQueryExecution indicates a prepare or execute failure.
	KindQueryExecution Kind = "QUERY_EXECUTION"

	// KindRowCountMismatch indicates a statement affected an unexpected number
	// of rows in strict mode.
	KindRowCountMismatch Kind = "ROW_COUNT_MISMATCH"

	// KindDataIntegrity indicates the store or a payload holds a shape that
	// cannot be reconciled.
	KindDataIntegrity Kind = "DATA_INTEGRITY"

	// KindTransport indicates a failure of the external transport.
	KindTransport Kind = "TRANSPORT"
)

// Sentinel causes wrapped by Error values.
var (
	// ErrNoStrategy means neither sync mode has been set.
	ErrNoStrategy = errors.New("sync strategy not set, set the resources to sync")

	// ErrDirtyState means the store holds both all-mode and select-mode state.
	ErrDirtyState = errors.New("dirty state: store holds both all and select sync state")
)

// Error is the error type returned by every sync operation.
//
// Only the fields relevant to Kind are populated:
//   - InputValidation: Columns, Record
//   - QueryExecution: SQL, Params, Err
//   - RowCountMismatch: SQL, Params, Actual, Expected
type Error struct {
	// Kind identifies the error category.
	Kind Kind

	// Message is a human-readable description.
	Message string

	// Columns lists offending column names.
	Columns []string

	// Record is the offending change record, for diagnostics.
	Record fmt.Stringer

	// SQL is the literal statement text.
	SQL string

	// Params are the bound values, in order.
	Params []any

	// Actual and Expected are affected-row counts.
	Actual   int64
	Expected int64

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Kind, e.Message)
	if len(e.Columns) > 0 {
		fmt.Fprintf(&b, " (columns: %s)", strings.Join(e.Columns, ", "))
	}
	if e.Kind == KindRowCountMismatch {
		fmt.Fprintf(&b, " (query `%s` affected %d rows, expected %d)", e.SQL, e.Actual, e.Expected)
	} else if e.SQL != "" {
		fmt.Fprintf(&b, " (query `%s` params %v)", e.SQL, e.Params)
	}
	if e.Record != nil {
		fmt.Fprintf(&b, " record=%s", e.Record)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsInputValidation returns true if the error is an input validation error.
func IsInputValidation(err error) bool { return Is(err, KindInputValidation) }

// IsStateConflict returns true if the error is a state conflict.
func IsStateConflict(err error) bool { return Is(err, KindStateConflict) }

// IsQueryExecution returns true if a statement failed to prepare or execute.
func IsQueryExecution(err error) bool { return Is(err, KindQueryExecution) }

// IsRowCountMismatch returns true if a strict-mode row count check failed.
func IsRowCountMismatch(err error) bool { return Is(err, KindRowCountMismatch) }

// IsDataIntegrity returns true if the error is a data integrity error.
func IsDataIntegrity(err error) bool { return Is(err, KindDataIntegrity) }

// IsTransport returns true if the error came from the transport.
func IsTransport(err error) bool { return Is(err, KindTransport) }

// IsDirty returns true if the store was found in the dirty state.
func IsDirty(err error) bool { return errors.Is(err, ErrDirtyState) }

// InvalidColumns creates an InputValidation error naming every offending column.
func InvalidColumns(record fmt.Stringer, columns []string) *Error {
	return &Error{
		Kind:    KindInputValidation,
		Message: "invalid column names",
		Columns: columns,
		Record:  record,
	}
}

// InputValidation creates an InputValidation error.
func InputValidation(format string, args ...any) *Error {
	return &Error{Kind: KindInputValidation, Message: fmt.Sprintf(format, args...)}
}

// StateConflict creates a StateConflict error.
func StateConflict(format string, args ...any) *Error {
	return &Error{Kind: KindStateConflict, Message: fmt.Sprintf(format, args...)}
}

// DataIntegrity creates a DataIntegrity error.
func DataIntegrity(format string, args ...any) *Error {
	return &Error{Kind: KindDataIntegrity, Message: fmt.Sprintf(format, args...)}
}

// NoStrategy creates the error returned when no sync mode is set.
func NoStrategy() *Error {
	return &Error{Kind: KindStateConflict, Message: "cannot generate a request", Err: ErrNoStrategy}
}

// Dirty creates the error returned when the store is in the dirty state.
func Dirty() *Error {
	return &Error{Kind: KindDataIntegrity, Message: "manual remediation required", Err: ErrDirtyState}
}

// QueryFailed wraps a prepare or execute failure with the statement and its values.
func QueryFailed(sql string, params []any, err error) *Error {
	return &Error{
		Kind:    KindQueryExecution,
		Message: "statement failed",
		SQL:     sql,
		Params:  params,
		Err:     err,
	}
}

// StoreFailed wraps a failure of a state store operation described by what.
func StoreFailed(what string, err error) *Error {
	return &Error{Kind: KindQueryExecution, Message: what, Err: err}
}

// RowCountMismatch creates a strict-mode row count error.
func RowCountMismatch(sql string, params []any, actual, expected int64) *Error {
	return &Error{
		Kind:     KindRowCountMismatch,
		Message:  "unexpected affected row count",
		SQL:      sql,
		Params:   params,
		Actual:   actual,
		Expected: expected,
	}
}

// Transport wraps a transport failure.
func Transport(err error) *Error {
	return &Error{Kind: KindTransport, Message: "transport failed", Err: err}
}
