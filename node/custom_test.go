package node

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sctg-development/rust-photoacoustic-sub001/frame"
)

func TestCustomStageTransformsSamples(t *testing.T) {
	stage, err := NewCustomStage("c", map[string]any{
		"script": "map(samples, # * 0.5)",
	}, Dependencies{})
	require.NoError(t, err)

	in := frame.NewSingleChannel([]float32{2, 4, -6}, 48000, 9, time.Now())
	out, err := stage.Process(in)
	require.NoError(t, err)

	assert.Equal(t, frame.ShapeSingleChannel, out.Shape)
	assert.Equal(t, []float32{1, 2, -3}, out.Samples)
	assert.Equal(t, uint64(9), out.Sequence, "frame metadata passes through")
}

func TestCustomStageRejectsBadScripts(t *testing.T) {
	_, err := NewCustomStage("c", nil, Dependencies{})
	assert.Error(t, err, "script parameter is required")

	_, err = NewCustomStage("c", map[string]any{"script": "map(samples,"}, Dependencies{})
	assert.Error(t, err, "compile failure is a construction error")
}

func TestCustomStageNonListResultFailsFrame(t *testing.T) {
	stage, err := NewCustomStage("c", map[string]any{"script": "42"}, Dependencies{})
	require.NoError(t, err)

	_, err = stage.Process(frame.NewSingleChannel([]float32{1}, 48000, 1, time.Now()))
	assert.Error(t, err, "scalar result cannot become samples")
}

func TestCustomStageRejectsWrongShape(t *testing.T) {
	stage, err := NewCustomStage("c", map[string]any{"script": "samples"}, Dependencies{})
	require.NoError(t, err)

	_, err = stage.Process(dualFrame(t, []float32{1}, []float32{2}))
	assert.Error(t, err)
}

func TestCustomStageReconfigure(t *testing.T) {
	stage, err := NewCustomStage("c", map[string]any{
		"script": "map(samples, # * 2)",
	}, Dependencies{})
	require.NoError(t, err)

	outcome, err := stage.Reconfigure(map[string]any{"script": "map(samples, # * 3)"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	out, err := stage.Process(frame.NewSingleChannel([]float32{1, 2}, 48000, 1, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 6}, out.Samples)

	outcome, err = stage.Reconfigure(map[string]any{"script": "map(samples,"})
	assert.Error(t, err)
	assert.Equal(t, OutcomeError, outcome)

	out, err = stage.Process(frame.NewSingleChannel([]float32{1, 2}, 48000, 2, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 6}, out.Samples, "rejected script keeps the old one live")
}
