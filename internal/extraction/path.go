// Package extraction reads typed values out of decoded JSON documents and
// derives the action, timestamp and natural id of a change record.
package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FieldError reports a missing or mistyped field together with the object
// it was looked up in.
type FieldError struct {
	Parent map[string]interface{}
	Field  string
	Path   []string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q missing or of wrong type at %s", e.Field, strings.Join(e.Path, "."))
}

// Decode parses a JSON object keeping numbers as json.Number so that ids
// and amounts survive a round trip unchanged.
func Decode(data []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}
	if obj == nil {
		return nil, fmt.Errorf("failed to decode json: not an object")
	}
	if dec.More() {
		return nil, fmt.Errorf("failed to decode json: trailing data")
	}
	return obj, nil
}

func lookup(obj map[string]interface{}, path []string) (interface{}, *FieldError) {
	current := obj
	for i, key := range path {
		v, ok := current[key]
		if !ok || v == nil {
			return nil, &FieldError{Parent: current, Field: key, Path: path}
		}
		if i == len(path)-1 {
			return v, nil
		}
		child, ok := v.(map[string]interface{})
		if !ok {
			return nil, &FieldError{Parent: current, Field: key, Path: path}
		}
		current = child
	}
	return nil, &FieldError{Parent: obj, Path: path}
}

// Value returns the raw value at path, or false when any segment is absent
// or null.
func Value(obj map[string]interface{}, path ...string) (interface{}, bool) {
	v, err := lookup(obj, path)
	return v, err == nil
}

func String(obj map[string]interface{}, path ...string) (string, error) {
	v, err := lookup(obj, path)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", &FieldError{Parent: obj, Field: path[len(path)-1], Path: path}
	}
	return s, nil
}

func Object(obj map[string]interface{}, path ...string) (map[string]interface{}, error) {
	v, err := lookup(obj, path)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, &FieldError{Parent: obj, Field: path[len(path)-1], Path: path}
	}
	return m, nil
}

func List(obj map[string]interface{}, path ...string) ([]interface{}, error) {
	v, err := lookup(obj, path)
	if err != nil {
		return nil, err
	}
	l, ok := v.([]interface{})
	if !ok {
		return nil, &FieldError{Parent: obj, Field: path[len(path)-1], Path: path}
	}
	return l, nil
}

func Bool(obj map[string]interface{}, path ...string) (bool, error) {
	v, err := lookup(obj, path)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, &FieldError{Parent: obj, Field: path[len(path)-1], Path: path}
	}
	return b, nil
}

// Number accepts both json.Number and float64 values.
func Number(obj map[string]interface{}, path ...string) (json.Number, error) {
	v, err := lookup(obj, path)
	if err != nil {
		return "", err
	}
	switch n := v.(type) {
	case json.Number:
		return n, nil
	case float64:
		return json.Number(fmt.Sprint(n)), nil
	default:
		return "", &FieldError{Parent: obj, Field: path[len(path)-1], Path: path}
	}
}
