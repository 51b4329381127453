package node

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sctg-development/rust-photoacoustic-sub001/frame"
)

func dualFrame(t *testing.T, a, b []float32) frame.Frame {
	t.Helper()
	f, err := frame.NewDualChannel(a, b, 48000, 1, time.Now())
	require.NoError(t, err)
	return f
}

func TestCatalogRegisterAndCreate(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Register(TypeGain, NewGainStage))

	assert.Error(t, c.Register(TypeGain, NewGainStage), "duplicate tag")
	assert.Error(t, c.Register("", NewGainStage), "empty tag")
	assert.Error(t, c.Register("x", nil), "nil factory")

	stage, err := c.Create(TypeGain, "g1", map[string]any{"gain_db": 6.0}, Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, "g1", stage.ID())
	assert.Equal(t, TypeGain, stage.Type())

	_, err = c.Create("bogus", "n1", nil, Dependencies{})
	assert.Error(t, err, "unknown type tag is a hard error")
}

func TestGainStageScalesBothChannels(t *testing.T) {
	stage, err := NewGainStage("g", map[string]any{"gain_db": 20.0}, Dependencies{})
	require.NoError(t, err)

	out, err := stage.Process(dualFrame(t, []float32{1, 2}, []float32{3, 4}))
	require.NoError(t, err)
	assert.InDelta(t, 10.0, out.ChannelA[0], 1e-4)
	assert.InDelta(t, 40.0, out.ChannelB[1], 1e-4)
}

func TestGainStageReconfigure(t *testing.T) {
	stage, err := NewGainStage("g", map[string]any{"gain_db": 0.0}, Dependencies{})
	require.NoError(t, err)
	gain := stage.(*GainStage)
	assert.InDelta(t, 1.0, gain.LinearGain(), 1e-9)

	outcome, err := stage.Reconfigure(map[string]any{"gain_db": 6.0})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.InDelta(t, 1.995, gain.LinearGain(), 0.01)

	outcome, err = stage.Reconfigure(map[string]any{"gain_db": 500.0})
	assert.Error(t, err)
	assert.Equal(t, OutcomeError, outcome)
	assert.InDelta(t, 1.995, gain.LinearGain(), 0.01, "rejected update keeps old gain")
}

func TestChannelSelector(t *testing.T) {
	stage, err := NewChannelSelectorStage("sel", map[string]any{"target_channel": "ChannelB"}, Dependencies{})
	require.NoError(t, err)

	out, err := stage.Process(dualFrame(t, []float32{1}, []float32{2}))
	require.NoError(t, err)
	assert.Equal(t, frame.ShapeSingleChannel, out.Shape)
	assert.Equal(t, []float32{2}, out.Samples)

	outcome, err := stage.Reconfigure(map[string]any{"target_channel": "ChannelA"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	out, err = stage.Process(dualFrame(t, []float32{1}, []float32{2}))
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, out.Samples)

	outcome, err = stage.Reconfigure(map[string]any{"target_channel": "Both"})
	assert.Error(t, err)
	assert.Equal(t, OutcomeError, outcome)
}

func TestChannelMixerStrategies(t *testing.T) {
	in := func() frame.Frame { return dualFrame(t, []float32{2, 4}, []float32{1, 2}) }

	tests := []struct {
		name   string
		params map[string]any
		want   []float32
	}{
		{"add", map[string]any{"strategy": "add"}, []float32{3, 6}},
		{"subtract", map[string]any{"strategy": "subtract"}, []float32{1, 2}},
		{"average", map[string]any{"strategy": "average"}, []float32{1.5, 3}},
		{"weighted", map[string]any{"strategy": "weighted", "weight_a": 1.0, "weight_b": 2.0}, []float32{4, 8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage, err := NewChannelMixerStage("mix", tt.params, Dependencies{})
			require.NoError(t, err)

			out, err := stage.Process(in())
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Samples)
		})
	}

	_, err := NewChannelMixerStage("mix", map[string]any{"strategy": "weighted"}, Dependencies{})
	assert.Error(t, err, "weighted without weights")

	_, err = NewChannelMixerStage("mix", map[string]any{"strategy": "multiply"}, Dependencies{})
	assert.Error(t, err, "unknown strategy")
}

func TestFilterStageKindChangeIsStructural(t *testing.T) {
	stage, err := NewFilterStage("f", map[string]any{
		"filter_type":      FilterLowpass,
		"cutoff_frequency": 2000.0,
	}, Dependencies{})
	require.NoError(t, err)

	outcome, err := stage.Reconfigure(map[string]any{
		"filter_type":      FilterBandpass,
		"center_frequency": 2000.0,
		"bandwidth":        100.0,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotApplicable, outcome)
}

func TestFilterStageRejectsNyquistViolation(t *testing.T) {
	stage, err := NewFilterStage("f", map[string]any{
		"filter_type":      FilterBandpass,
		"center_frequency": 2000.0,
		"bandwidth":        100.0,
	}, Dependencies{})
	require.NoError(t, err)

	outcome, err := stage.Reconfigure(map[string]any{
		"center_frequency": 30000.0,
		"bandwidth":        100.0,
	})
	assert.Error(t, err)
	assert.Equal(t, OutcomeError, outcome)

	// The old coefficients are still live: a valid frame still processes.
	out, err := stage.Process(dualFrame(t, make([]float32, 64), make([]float32, 64)))
	require.NoError(t, err)
	assert.Len(t, out.ChannelA, 64)
}

func TestFilterStageAppliesValidRetune(t *testing.T) {
	stage, err := NewFilterStage("f", map[string]any{
		"filter_type":      FilterLowpass,
		"cutoff_frequency": 2000.0,
		"order":            2,
	}, Dependencies{})
	require.NoError(t, err)

	outcome, err := stage.Reconfigure(map[string]any{
		"cutoff_frequency": 1000.0,
		"order":            2,
		"target_channel":   "a",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
}

func TestDifferentialStageHotReloadSemantics(t *testing.T) {
	stage, err := NewDifferentialStage("d", nil, Dependencies{})
	require.NoError(t, err)

	out, err := stage.Process(dualFrame(t, []float32{3}, []float32{1}))
	require.NoError(t, err)
	assert.Equal(t, []float32{2}, out.Samples)

	// Default calculator has no tunables.
	outcome, err := stage.Reconfigure(map[string]any{"calculator": "simple"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotApplicable, outcome)

	// Switching kinds is structural.
	outcome, err = stage.Reconfigure(map[string]any{
		"calculator": "weighted", "weight_a": 1.0, "weight_b": 1.0,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotApplicable, outcome)
}

func TestWeightedDifferentialReconfigures(t *testing.T) {
	stage, err := NewDifferentialStage("d", map[string]any{
		"calculator": "weighted", "weight_a": 1.0, "weight_b": 1.0,
	}, Dependencies{})
	require.NoError(t, err)

	outcome, err := stage.Reconfigure(map[string]any{
		"calculator": "weighted", "weight_a": 2.0, "weight_b": 0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	out, err := stage.Process(dualFrame(t, []float32{1}, []float32{2}))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, out.Samples[0], 1e-6)
}

func TestInputStageRejectsWrongShape(t *testing.T) {
	stage, err := NewInputStage("in", nil, Dependencies{})
	require.NoError(t, err)

	_, err = stage.Process(frame.NewSingleChannel([]float32{1}, 48000, 1, time.Now()))
	assert.Error(t, err)

	outcome, err := stage.Reconfigure(map[string]any{"sample_rate": 96000})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotApplicable, outcome)
}

func TestOutputStageKeepsLatestAndHistory(t *testing.T) {
	stage, err := NewOutputStage("out", map[string]any{"buffer_size": 2}, Dependencies{})
	require.NoError(t, err)
	output := stage.(*OutputStage)

	for seq := uint64(1); seq <= 3; seq++ {
		f := frame.NewSingleChannel([]float32{1, -1}, 48000, seq, time.Now())
		_, err := stage.Process(f)
		require.NoError(t, err)
	}

	latest, ok := output.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(3), latest.Sequence)

	history := output.History()
	require.Len(t, history, 2, "ring keeps the newest entries")
	assert.Equal(t, uint64(2), history[0].Sequence)
	assert.InDelta(t, 1.0, history[0].RMS, 1e-9)

	stage.Reset()
	_, ok = output.Latest()
	assert.False(t, ok)
}
