package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFFTPeakAtBinAlignedFrequency(t *testing.T) {
	const (
		fftSize    = 1024
		sampleRate = 48000
		bin        = 64 // 3000 Hz exactly
	)

	freq := BinFrequency(bin, fftSize, sampleRate)
	samples := make([]float64, fftSize)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * freq * float64(i) / sampleRate)
	}

	mags := MagnitudeSpectrum(samples)
	require.Len(t, mags, fftSize/2)

	peak := 0
	for i, m := range mags {
		if m > mags[peak] {
			peak = i
		}
	}
	assert.Equal(t, bin, peak)
}

func TestFFTZeroPadsToPowerOfTwo(t *testing.T) {
	out := FFT(make([]float64, 600))
	assert.Len(t, out, 1024)
}

func TestNextPowerOfTwo(t *testing.T) {
	assert.Equal(t, 1, nextPowerOfTwo(0))
	assert.Equal(t, 1, nextPowerOfTwo(1))
	assert.Equal(t, 2, nextPowerOfTwo(2))
	assert.Equal(t, 4, nextPowerOfTwo(3))
	assert.Equal(t, 1024, nextPowerOfTwo(1000))
}

func TestInterpolatePeakSymmetric(t *testing.T) {
	// Symmetric neighborhood: no offset.
	offset, mag := InterpolatePeak([]float64{0.5, 1.0, 0.5}, 1)
	assert.InDelta(t, 0, offset, 1e-9)
	assert.InDelta(t, 1.0, mag, 1e-9)

	// Heavier right neighbor pulls the peak right.
	offset, _ = InterpolatePeak([]float64{0.2, 1.0, 0.6}, 1)
	assert.Greater(t, offset, 0.0)
	assert.LessOrEqual(t, offset, 0.5)
}

func TestInterpolatePeakAtEdges(t *testing.T) {
	mags := []float64{1.0, 0.5}
	offset, mag := InterpolatePeak(mags, 0)
	assert.Zero(t, offset)
	assert.Equal(t, 1.0, mag)
}

func TestHannWindowEndpoints(t *testing.T) {
	samples := []float64{1, 1, 1, 1, 1}
	HannWindow(samples)

	assert.InDelta(t, 0, samples[0], 1e-9)
	assert.InDelta(t, 0, samples[4], 1e-9)
	assert.InDelta(t, 1, samples[2], 1e-9)
}
