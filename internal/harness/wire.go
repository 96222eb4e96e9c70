package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// decodeWire decodes a YAML-parsed payload into out through its JSON wire
// shape, so scenarios exercise the same decoding as recorded payloads.
func decodeWire(v map[string]any, out any) error {
	jv, err := toJSONValue(v)
	if err != nil {
		return err
	}
	data, err := json.Marshal(jv)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// compareWire compares a YAML-parsed expectation with actual JSON.
// It returns a mismatch description, or "" when they are equal.
func compareWire(expected map[string]any, actual []byte) (string, error) {
	want, err := normalize(expected)
	if err != nil {
		return "", err
	}
	var got any
	if err := json.Unmarshal(actual, &got); err != nil {
		return "", err
	}
	if reflect.DeepEqual(want, got) {
		return "", nil
	}
	wantJSON, _ := json.Marshal(want)
	return fmt.Sprintf("request mismatch\n  expected: %s\n  actual:   %s", wantJSON, actual), nil
}

// normalize converts a YAML-parsed value to what encoding/json would decode
// from its JSON form: maps keyed by string, float64 numbers.
func normalize(v any) (any, error) {
	jv, err := toJSONValue(v)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(jv)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// toJSONValue converts a YAML-parsed value into one encoding/json can marshal.
// YAML mappings with non-string keys (unquoted term ids such as 202420)
// decode as map[any]any; their keys are stringified.
func toJSONValue(val any) (any, error) {
	switch v := val.(type) {
	case nil, string, bool, int, int64, uint64, float64:
		return v, nil
	case []any:
		arr := make([]any, len(v))
		for i, elem := range v {
			jv, err := toJSONValue(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = jv
		}
		return arr, nil
	case map[string]any:
		obj := make(map[string]any, len(v))
		for key, elem := range v {
			jv, err := toJSONValue(elem)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", key, err)
			}
			obj[key] = jv
		}
		return obj, nil
	case map[any]any:
		obj := make(map[string]any, len(v))
		for key, elem := range v {
			name := fmt.Sprint(key)
			jv, err := toJSONValue(elem)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			obj[name] = jv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", val)
	}
}
