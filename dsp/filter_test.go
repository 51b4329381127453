package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(freq float64, sampleRate uint32, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		t := float64(i) / float64(sampleRate)
		out[i] = float32(math.Sin(2 * math.Pi * freq * t))
	}
	return out
}

// rms over the second half of the buffer, past the filter transient.
func settledRMS(signal []float32) float64 {
	half := signal[len(signal)/2:]
	var sum float64
	for _, s := range half {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(half)))
}

func TestLowpassAttenuatesHighFrequencies(t *testing.T) {
	const sampleRate = 48000

	lp := NewLowpassFilter(1000)
	require.NoError(t, lp.Update(1000, sampleRate, 2))

	low := lp.Apply(sine(100, sampleRate, 4800))
	lp.Reset()
	high := lp.Apply(sine(10000, sampleRate, 4800))

	assert.Greater(t, settledRMS(low), 4*settledRMS(high),
		"100Hz should pass a 1kHz lowpass far better than 10kHz")
}

func TestLowpassPreservesLength(t *testing.T) {
	lp := NewLowpassFilter(1000)
	out := lp.Apply(make([]float32, 333))
	assert.Len(t, out, 333)

	assert.Empty(t, lp.Apply(nil))
}

func TestHighpassRemovesDC(t *testing.T) {
	const sampleRate = 48000

	hp := NewHighpassFilter(100)
	require.NoError(t, hp.Update(100, sampleRate, 1))

	dc := make([]float32, 9600)
	for i := range dc {
		dc[i] = 0.5
	}

	out := hp.Apply(dc)
	assert.Less(t, settledRMS(out), 0.05, "DC should be removed")
}

func TestFirstOrderUpdateValidation(t *testing.T) {
	lp := NewLowpassFilter(1000)

	assert.Error(t, lp.Update(0, 48000, 1), "zero cutoff")
	assert.Error(t, lp.Update(24000, 48000, 1), "cutoff at Nyquist")
	assert.Error(t, lp.Update(1000, 48000, 0), "zero order")
	assert.Error(t, lp.Update(1000, 0, 1), "zero sample rate")

	// Failed updates leave parameters untouched.
	cutoff, rate, order := lp.Params()
	assert.Equal(t, float32(1000), cutoff)
	assert.Equal(t, uint32(DefaultSampleRate), rate)
	assert.Equal(t, 1, order)
}

func TestBandpassPassesCenterRejectsStopband(t *testing.T) {
	const sampleRate = 48000

	bp, err := NewBandpassFilter(1000, 200)
	require.NoError(t, err)
	require.NoError(t, bp.Update(BandpassParams{
		CenterFreq: 1000, Bandwidth: 200, SampleRate: sampleRate, Order: 4,
	}))

	center := bp.Apply(sine(1000, sampleRate, 9600))
	bp.Reset()
	stop := bp.Apply(sine(6000, sampleRate, 9600))

	assert.Greater(t, settledRMS(center), 8*settledRMS(stop),
		"center frequency should dominate the stopband")
}

func TestBandpassParamsValidation(t *testing.T) {
	tests := []struct {
		name   string
		params BandpassParams
	}{
		{"center at Nyquist", BandpassParams{CenterFreq: 24000, Bandwidth: 100, SampleRate: 48000, Order: 2}},
		{"negative center", BandpassParams{CenterFreq: -1, Bandwidth: 100, SampleRate: 48000, Order: 2}},
		{"zero bandwidth", BandpassParams{CenterFreq: 1000, Bandwidth: 0, SampleRate: 48000, Order: 2}},
		{"odd order", BandpassParams{CenterFreq: 1000, Bandwidth: 100, SampleRate: 48000, Order: 3}},
		{"zero order", BandpassParams{CenterFreq: 1000, Bandwidth: 100, SampleRate: 48000, Order: 0}},
		{"zero sample rate", BandpassParams{CenterFreq: 1000, Bandwidth: 100, SampleRate: 0, Order: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.params.Validate())
		})
	}
}

func TestBandpassUpdateKeepsOldChainOnError(t *testing.T) {
	bp, err := NewBandpassFilter(1000, 200)
	require.NoError(t, err)

	before := bp.Params()
	err = bp.Update(BandpassParams{CenterFreq: 99999, Bandwidth: 200, SampleRate: 48000, Order: 2})
	require.Error(t, err)

	assert.Equal(t, before, bp.Params(), "rejected update must not touch the active chain")
}

func TestSimpleDifferential(t *testing.T) {
	d := NewSimpleDifferential()

	out, err := d.Calculate([]float32{1, 2, 3}, []float32{0.5, 1, 1.5})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 1, 1.5}, out)

	_, err = d.Calculate([]float32{1}, []float32{1, 2})
	assert.Error(t, err)
}

func TestWeightedDifferential(t *testing.T) {
	d := NewWeightedDifferential(2, 0.5)

	out, err := d.Calculate([]float32{1, 2}, []float32{2, 4})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, out[0], 1e-6)  // 2*1 - 0.5*2
	assert.InDelta(t, 2.0, out[1], 1e-6)  // 2*2 - 0.5*4
}
