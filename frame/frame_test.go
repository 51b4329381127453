package frame

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDualChannelRejectsLengthMismatch(t *testing.T) {
	_, err := NewDualChannel([]float32{1, 2}, []float32{1}, 48000, 0, time.Now())
	require.Error(t, err)

	f, err := NewDualChannel([]float32{1, 2}, []float32{3, 4}, 48000, 7, time.Now())
	require.NoError(t, err)
	assert.Equal(t, ShapeDualChannel, f.Shape)
	assert.Equal(t, uint64(7), f.Sequence)
	assert.Equal(t, 2, f.Len())
}

func TestToAnalyticPreservesSamples(t *testing.T) {
	f := NewSingleChannel([]float32{0.5, -0.5}, 44100, 3, time.Now())
	a := f.ToAnalytic(map[string]string{"peak_frequency": "2000"})

	assert.Equal(t, ShapeAnalytic, a.Shape)
	assert.Equal(t, f.Samples, a.Samples)
	assert.Equal(t, uint64(3), a.Sequence)
	assert.Equal(t, "2000", a.Metadata["peak_frequency"])

	// Original frame untouched.
	assert.Equal(t, ShapeSingleChannel, f.Shape)
	assert.Nil(t, f.Metadata)
}

func TestCloneIsDeep(t *testing.T) {
	f, err := NewDualChannel([]float32{1, 2}, []float32{3, 4}, 48000, 0, time.Now())
	require.NoError(t, err)

	c := f.Clone()
	c.ChannelA[0] = 99

	assert.Equal(t, float32(1), f.ChannelA[0])
	assert.Equal(t, float32(99), c.ChannelA[0])
}

func TestShapeString(t *testing.T) {
	assert.Equal(t, "dual_channel", ShapeDualChannel.String())
	assert.Equal(t, "single_channel", ShapeSingleChannel.String())
	assert.Equal(t, "analytic", ShapeAnalytic.String())
}
