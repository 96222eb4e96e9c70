package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildWhereClause(t *testing.T) {
	sql, args, err := buildWhereClause(map[string]any{"school_id": "marist", "id": "p1", "active": true})
	require.NoError(t, err)
	assert.Equal(t, "active = ? AND id = ? AND school_id = ?", sql)
	assert.Equal(t, []any{int64(1), "p1", "marist"}, args)

	sql, args, err = buildWhereClause(nil)
	require.NoError(t, err)
	assert.Empty(t, sql)
	assert.Nil(t, args)
}

func TestBuildWhereClause_RejectsInjection(t *testing.T) {
	_, _, err := buildWhereClause(map[string]any{"id = 1 OR 1": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid column name")
}

func TestStateValuesEqual(t *testing.T) {
	testCases := []struct {
		name     string
		expected any
		actual   any
		want     bool
	}{
		{"nil both", nil, nil, true},
		{"nil expected", nil, "x", false},
		{"nil actual", "x", nil, false},
		{"string", "Marist", "Marist", true},
		{"string bytes", "Marist", []byte("Marist"), true},
		{"string mismatch", "Marist", "Temple", false},
		{"int vs int64", 3, int64(3), true},
		{"int vs float", 3, float64(3), true},
		{"float", 12.5, float64(12.5), true},
		{"float vs int64", 2.0, int64(2), true},
		{"bool as int", true, int64(1), true},
		{"bool false as int", false, int64(0), true},
		{"bool mismatch", true, int64(0), false},
		{"type mismatch", "3", int64(3), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, stateValuesEqual(tc.expected, tc.actual))
		})
	}
}

func TestAssertionError_Message(t *testing.T) {
	err := &AssertionError{
		Type:     AssertRowCount,
		Expected: "1 rows in schools",
		Actual:   "0 rows",
		Trace: []TraceEvent{
			{Step: 1, Action: OpSet, Argument: "everything"},
			{Step: 2, Action: OpApplyAll, Error: "ROW_COUNT_MISMATCH"},
		},
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: row_count")
	assert.Contains(t, msg, "[1] set everything")
	assert.Contains(t, msg, "[2] apply_all  -> ROW_COUNT_MISMATCH")
}

func TestToJSONValue_StringifiesKeys(t *testing.T) {
	v, err := toJSONValue(map[string]any{
		"temple": map[any]any{202420: 4},
		"list":   []any{1, "a", nil},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"temple": map[string]any{"202420": 4},
		"list":   []any{1, "a", nil},
	}, v)

	_, err = toJSONValue(map[string]any{"bad": struct{}{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `field "bad"`)
}

func TestCompareWire(t *testing.T) {
	msg, err := compareWire(map[string]any{"schools": map[string]any{"marist": 7}}, []byte(`{"schools":{"marist":7}}`))
	require.NoError(t, err)
	assert.Empty(t, msg)

	msg, err = compareWire(map[string]any{"schools": map[string]any{"marist": 7}}, []byte(`{"schools":{"marist":8}}`))
	require.NoError(t, err)
	assert.Contains(t, msg, "request mismatch")
}
