package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScalar(t *testing.T) {
	testCases := []struct {
		name string
		json string
		want Scalar
	}{
		{"string", `"marist"`, Text("marist")},
		{"empty string", `""`, Text("")},
		{"true", `true`, Bool(true)},
		{"false", `false`, Bool(false)},
		{"null", `null`, Null{}},
		{"integer", `202440`, Int(202440)},
		{"negative integer", `-7`, Int(-7)},
		{"real", `3.5`, Real(3.5)},
		{"exponent", `1e3`, Real(1000)},
		{"beyond int64", `18446744073709551615`, Real(18446744073709551615)},
		{"surrounding whitespace", "  42 ", Int(42)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseScalar([]byte(tc.json))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseScalar_RejectsNonScalars(t *testing.T) {
	for _, input := range []string{`[1,2]`, `{"a":1}`, ``, `nul`} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseScalar([]byte(input))
			assert.Error(t, err)
		})
	}
}

func TestFields_PreservesDocumentOrder(t *testing.T) {
	var fs Fields
	err := json.Unmarshal([]byte(`{"zeta": 1, "alpha": "a", "mid": null, "flag": true}`), &fs)
	require.NoError(t, err)

	assert.Equal(t, []string{"zeta", "alpha", "mid", "flag"}, fs.Names())
	assert.Equal(t, Fields{
		F("zeta", Int(1)),
		F("alpha", Text("a")),
		F("mid", Null{}),
		F("flag", Bool(true)),
	}, fs)
}

func TestFields_RejectsDuplicateKeys(t *testing.T) {
	var fs Fields
	err := json.Unmarshal([]byte(`{"id": 1, "id": 2}`), &fs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestFields_RejectsNestedValues(t *testing.T) {
	var fs Fields
	err := json.Unmarshal([]byte(`{"id": {"nested": true}}`), &fs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `field "id"`)
}

func TestFields_NullIsNil(t *testing.T) {
	fs := Fields{F("x", Int(1))}
	require.NoError(t, json.Unmarshal([]byte(`null`), &fs))
	assert.Nil(t, fs)
}

func TestFields_MarshalRoundTripKeepsOrder(t *testing.T) {
	fs := Fields{F("b", Int(2)), F("a", Real(1.5)), F("c", Text("x"))}
	data, err := json.Marshal(fs)
	require.NoError(t, err)
	assert.Equal(t, `{"b":2,"a":1.5,"c":"x"}`, string(data))

	var nilFields Fields
	data, err = json.Marshal(nilFields)
	require.NoError(t, err)
	assert.Equal(t, `null`, string(data))
}

func TestFields_Get(t *testing.T) {
	fs := Fields{F("id", Text("p1"))}

	v, ok := fs.Get("id")
	assert.True(t, ok)
	assert.Equal(t, Text("p1"), v)

	_, ok = fs.Get("missing")
	assert.False(t, ok)
}
