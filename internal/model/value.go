package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Scalar is a sealed interface for field values crossing the storage boundary.
// Only Null, Bool, Int, Real, and Text implement it. Arrays and objects are
// rejected when JSON is decoded, so they can never reach SQL construction.
type Scalar interface {
	scalar() // Sealed - only these types implement it
}

// Null represents a JSON null.
type Null struct{}

func (Null) scalar() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) scalar() {}

// Int represents an integral number.
type Int int64

func (Int) scalar() {}

// Real represents a number with a fractional part or exponent.
type Real float64

func (Real) scalar() {}

// Text represents a string value.
type Text string

func (Text) scalar() {}

// ParseScalar decodes a single JSON value into a Scalar.
// Numbers without a fraction or exponent that fit in int64 become Int,
// every other number becomes Real. Arrays and objects are errors.
func ParseScalar(data []byte) (Scalar, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return Text(s), nil

	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return Bool(b), nil

	case 'n':
		if string(data) != "null" {
			return nil, fmt.Errorf("invalid JSON value: %s", data)
		}
		return Null{}, nil

	case '[':
		return nil, fmt.Errorf("arrays are not scalar values: %s", data)

	case '{':
		return nil, fmt.Errorf("objects are not scalar values: %s", data)

	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, err
		}
		s := n.String()
		if !strings.ContainsAny(s, ".eE") {
			if i, err := n.Int64(); err == nil {
				return Int(i), nil
			}
		}
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("number out of range: %s", s)
		}
		return Real(f), nil
	}
}

// MarshalScalar encodes a Scalar as JSON.
func MarshalScalar(v Scalar) ([]byte, error) {
	switch val := v.(type) {
	case Null:
		return []byte("null"), nil
	case Bool:
		return json.Marshal(bool(val))
	case Int:
		return json.Marshal(int64(val))
	case Real:
		return json.Marshal(float64(val))
	case Text:
		return json.Marshal(string(val))
	default:
		return nil, fmt.Errorf("unknown Scalar type: %T", v)
	}
}

// Field is one named value of a change record.
type Field struct {
	Name  string
	Value Scalar
}

// F is a shorthand for building a Field.
// Example: Fields{F("school_id", Text("marist")), F("year", Int(2024))}
func F(name string, value Scalar) Field {
	return Field{Name: name, Value: value}
}

// Fields is an ordered set of named values.
// JSON objects keep their document order when decoded, which fixes the
// column order (and therefore the SQL text) of compiled statements.
type Fields []Field

// Names returns the field names in order.
func (fs Fields) Names() []string {
	names := make([]string, len(fs))
	for i, f := range fs {
		names[i] = f.Name
	}
	return names
}

// Get returns the value for name and whether it exists.
func (fs Fields) Get(name string) (Scalar, bool) {
	for _, f := range fs {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// UnmarshalJSON implements json.Unmarshaler, preserving key order.
// Duplicate keys are rejected. null decodes to a nil Fields.
func (fs *Fields) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*fs = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("fields must be a JSON object, got %s", data)
	}

	out := Fields{}
	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected field key %v", tok)
		}
		if seen[name] {
			return fmt.Errorf("duplicate field %q", name)
		}
		seen[name] = true

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		val, err := ParseScalar(raw)
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		out = append(out, Field{Name: name, Value: val})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*fs = out
	return nil
}

// MarshalJSON implements json.Marshaler, writing fields in order.
// A nil Fields encodes as null.
func (fs Fields) MarshalJSON() ([]byte, error) {
	if fs == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fs {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(f.Name)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", f.Name, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := MarshalScalar(f.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", f.Name, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
