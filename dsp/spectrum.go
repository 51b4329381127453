package dsp

import (
	"math"
	"math/cmplx"
)

// HannWindow applies a Hann window in place and returns the buffer.
func HannWindow(samples []float64) []float64 {
	n := len(samples)
	if n < 2 {
		return samples
	}
	for i := range samples {
		w := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
		samples[i] *= w
	}
	return samples
}

// FFT computes the discrete Fourier transform of the input using an
// iterative radix-2 Cooley-Tukey algorithm. The input length must be a
// power of two; shorter inputs are zero-padded to the next power of two.
func FFT(input []float64) []complex128 {
	n := nextPowerOfTwo(len(input))
	buf := make([]complex128, n)
	for i, v := range input {
		buf[i] = complex(v, 0)
	}

	// Bit-reversal permutation.
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			buf[i], buf[j] = buf[j], buf[i]
		}
	}

	for length := 2; length <= n; length <<= 1 {
		angle := -2 * math.Pi / float64(length)
		wl := cmplx.Exp(complex(0, angle))
		for start := 0; start < n; start += length {
			w := complex(1, 0)
			for k := 0; k < length/2; k++ {
				u := buf[start+k]
				v := buf[start+k+length/2] * w
				buf[start+k] = u + v
				buf[start+k+length/2] = u - v
				w *= wl
			}
		}
	}

	return buf
}

// MagnitudeSpectrum returns the normalized magnitude of the first half of
// the FFT of the windowed input (the real-signal half-spectrum).
func MagnitudeSpectrum(samples []float64) []float64 {
	windowed := HannWindow(append([]float64(nil), samples...))
	spectrum := FFT(windowed)

	half := len(spectrum) / 2
	mags := make([]float64, half)
	scale := 2 / float64(len(spectrum))
	for i := 0; i < half; i++ {
		mags[i] = cmplx.Abs(spectrum[i]) * scale
	}
	return mags
}

// BinFrequency converts an FFT bin index to a frequency in Hz.
func BinFrequency(bin int, fftSize int, sampleRate uint32) float64 {
	return float64(bin) * float64(sampleRate) / float64(fftSize)
}

// InterpolatePeak refines a peak location with parabolic interpolation
// over the bin and its neighbors, returning the fractional bin offset in
// [-0.5, 0.5] and the interpolated magnitude.
func InterpolatePeak(mags []float64, bin int) (offset, magnitude float64) {
	if bin <= 0 || bin >= len(mags)-1 {
		return 0, mags[bin]
	}
	alpha, beta, gamma := mags[bin-1], mags[bin], mags[bin+1]
	denom := alpha - 2*beta + gamma
	if denom == 0 {
		return 0, beta
	}
	offset = 0.5 * (alpha - gamma) / denom
	magnitude = beta - 0.25*(alpha-gamma)*offset
	return offset, magnitude
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
