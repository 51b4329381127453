package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloatParamCoercion(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  float64
		ok    bool
	}{
		{"float64 from JSON", float64(2.5), 2.5, true},
		{"int from YAML", int(3), 3, true},
		{"int64", int64(7), 7, true},
		{"uint32", uint32(9), 9, true},
		{"string rejected", "2.5", 0, false},
		{"bool rejected", true, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FloatParam(map[string]any{"v": tt.value}, "v")
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIntParamRejectsFractional(t *testing.T) {
	_, err := IntParam(map[string]any{"v": 2.5}, "v")
	assert.Error(t, err)

	got, err := IntParam(map[string]any{"v": float64(4)}, "v")
	require.NoError(t, err)
	assert.Equal(t, 4, got)
}

func TestMissingVsOptional(t *testing.T) {
	params := map[string]any{}

	_, err := StringParam(params, "name")
	assert.Error(t, err)

	got, err := OptionalStringParam(params, "name", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", got)

	f, err := OptionalFloatParam(params, "gain", 1.5)
	require.NoError(t, err)
	assert.Equal(t, 1.5, f)
}

func TestSliceParams(t *testing.T) {
	params := map[string]any{
		"ids":    []any{"a", "b"},
		"coeffs": []any{1, 2.5, int64(3)},
		"mixed":  []any{"a", 1},
	}

	ids, err := StringSliceParam(params, "ids")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	coeffs, err := FloatSliceParam(params, "coeffs")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2.5, 3}, coeffs)

	_, err = StringSliceParam(params, "mixed")
	assert.Error(t, err)
	_, err = FloatSliceParam(params, "mixed")
	assert.Error(t, err)
}
