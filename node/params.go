package node

import (
	"fmt"
	"math"

	"github.com/sctg-development/rust-photoacoustic-sub001/errors"
)

// Parameter accessors for the free-form descriptor maps. Values arrive
// from either YAML (integers as int) or JSON (all numbers as float64), so
// numeric accessors coerce across representations.

func paramError(key, want string, got any) error {
	return errors.WrapValidation(
		fmt.Errorf("%w: parameter %q: want %s, got %T", errors.ErrInvalidConfig, key, want, got),
		"node", "params", "coercing parameter")
}

func missingParam(key string) error {
	return errors.WrapValidation(
		fmt.Errorf("%w: parameter %q", errors.ErrMissingConfig, key),
		"node", "params", "reading parameter")
}

// StringParam reads a required string parameter.
func StringParam(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", missingParam(key)
	}
	s, ok := v.(string)
	if !ok {
		return "", paramError(key, "string", v)
	}
	return s, nil
}

// OptionalStringParam reads a string parameter with a default.
func OptionalStringParam(params map[string]any, key, def string) (string, error) {
	if _, ok := params[key]; !ok {
		return def, nil
	}
	return StringParam(params, key)
}

// FloatParam reads a required numeric parameter as float64.
func FloatParam(params map[string]any, key string) (float64, error) {
	v, ok := params[key]
	if !ok {
		return 0, missingParam(key)
	}
	f, ok := coerceFloat(v)
	if !ok {
		return 0, paramError(key, "number", v)
	}
	return f, nil
}

// OptionalFloatParam reads a numeric parameter with a default.
func OptionalFloatParam(params map[string]any, key string, def float64) (float64, error) {
	if _, ok := params[key]; !ok {
		return def, nil
	}
	return FloatParam(params, key)
}

// IntParam reads a required integral parameter. Fractional values are
// rejected.
func IntParam(params map[string]any, key string) (int, error) {
	f, err := FloatParam(params, key)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, paramError(key, "integer", params[key])
	}
	return int(f), nil
}

// OptionalIntParam reads an integral parameter with a default.
func OptionalIntParam(params map[string]any, key string, def int) (int, error) {
	if _, ok := params[key]; !ok {
		return def, nil
	}
	return IntParam(params, key)
}

// OptionalBoolParam reads a boolean parameter with a default.
func OptionalBoolParam(params map[string]any, key string, def bool) (bool, error) {
	v, ok := params[key]
	if !ok {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, paramError(key, "bool", v)
	}
	return b, nil
}

// StringSliceParam reads a required list-of-strings parameter.
func StringSliceParam(params map[string]any, key string) ([]string, error) {
	v, ok := params[key]
	if !ok {
		return nil, missingParam(key)
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, paramError(key, "list of strings", v)
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, paramError(key, "list of strings", item)
		}
		out = append(out, s)
	}
	return out, nil
}

// FloatSliceParam reads a required list-of-numbers parameter.
func FloatSliceParam(params map[string]any, key string) ([]float64, error) {
	v, ok := params[key]
	if !ok {
		return nil, missingParam(key)
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, paramError(key, "list of numbers", v)
	}
	out := make([]float64, 0, len(raw))
	for _, item := range raw {
		f, ok := coerceFloat(item)
		if !ok {
			return nil, paramError(key, "list of numbers", item)
		}
		out = append(out, f)
	}
	return out, nil
}

// MapParam reads a required nested map parameter.
func MapParam(params map[string]any, key string) (map[string]any, error) {
	v, ok := params[key]
	if !ok {
		return nil, missingParam(key)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, paramError(key, "map", v)
	}
	return m, nil
}

func coerceFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
