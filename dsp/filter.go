// Package dsp implements the digital filter and spectral math used by the
// processing graph: cascaded first-order lowpass/highpass filters, a
// cascaded-biquad Butterworth bandpass, differential calculators and the
// FFT helpers used for peak detection.
//
// All filters are safe for one processing goroutine calling Apply while
// another goroutine updates parameters: tunable state lives behind an
// atomic pointer and is swapped whole, never mutated in place.
package dsp

import (
	"fmt"
	"math"
	"sync/atomic"
)

// Filter processes a signal buffer and returns a new buffer of equal
// length.
type Filter interface {
	Apply(signal []float32) []float32
	Reset()
}

// DefaultSampleRate is used when a filter is constructed without an
// explicit rate.
const DefaultSampleRate = 48000

type firstOrderParams struct {
	cutoffFreq float32
	sampleRate uint32
	order      int
}

// LowpassFilter attenuates frequencies above the cutoff using cascaded
// first-order IIR sections, each contributing -6dB/octave of roll-off.
type LowpassFilter struct {
	params atomic.Pointer[firstOrderParams]
	state  atomic.Pointer[[]float32] // one delay element per cascade stage
}

// NewLowpassFilter creates a first-order lowpass at the given cutoff with
// the default sample rate.
func NewLowpassFilter(cutoffFreq float32) *LowpassFilter {
	f := &LowpassFilter{}
	f.params.Store(&firstOrderParams{cutoffFreq: cutoffFreq, sampleRate: DefaultSampleRate, order: 1})
	f.resetState(1)
	return f
}

// Update validates and swaps the filter parameters. The cutoff must be
// positive and below Nyquist; the order must be positive.
func (f *LowpassFilter) Update(cutoffFreq float32, sampleRate uint32, order int) error {
	if err := validateFirstOrder(cutoffFreq, sampleRate, order); err != nil {
		return err
	}
	f.params.Store(&firstOrderParams{cutoffFreq: cutoffFreq, sampleRate: sampleRate, order: order})
	f.resetState(order)
	return nil
}

// Params returns the current cutoff frequency, sample rate and order.
func (f *LowpassFilter) Params() (float32, uint32, int) {
	p := f.params.Load()
	return p.cutoffFreq, p.sampleRate, p.order
}

// Apply runs the cascade over the signal. Each stage is
// y[n] = alpha*x[n] + (1-alpha)*y[n-1].
func (f *LowpassFilter) Apply(signal []float32) []float32 {
	p := f.params.Load()
	statePtr := f.state.Load()
	state := *statePtr
	if len(state) != p.order {
		state = make([]float32, p.order)
	}

	omega := 2 * math.Pi * float64(p.cutoffFreq) / float64(p.sampleRate)
	alpha := float32(omega / (omega + 1))

	out := make([]float32, len(signal))
	for i, x := range signal {
		cur := clampSample(x)
		for stage := 0; stage < p.order; stage++ {
			y := alpha*cur + (1-alpha)*state[stage]
			if !isFinite(y) {
				y = 0
			}
			state[stage] = y
			cur = y
		}
		out[i] = cur
	}
	f.state.Store(&state)
	return out
}

// Reset clears the delay elements.
func (f *LowpassFilter) Reset() {
	f.resetState(f.params.Load().order)
}

func (f *LowpassFilter) resetState(order int) {
	state := make([]float32, order)
	f.state.Store(&state)
}

// HighpassFilter removes DC offset and low-frequency noise using cascaded
// first-order RC sections with transfer function
// H(z) = (1 - z^-1) / (1 - alpha*z^-1), alpha = e^(-2*pi*fc/fs).
type HighpassFilter struct {
	params atomic.Pointer[firstOrderParams]
	state  atomic.Pointer[[]hpState]
}

type hpState struct {
	prevIn  float32
	prevOut float32
}

// NewHighpassFilter creates a first-order highpass at the given cutoff
// with the default sample rate.
func NewHighpassFilter(cutoffFreq float32) *HighpassFilter {
	f := &HighpassFilter{}
	f.params.Store(&firstOrderParams{cutoffFreq: cutoffFreq, sampleRate: DefaultSampleRate, order: 1})
	f.resetState(1)
	return f
}

// Update validates and swaps the filter parameters.
func (f *HighpassFilter) Update(cutoffFreq float32, sampleRate uint32, order int) error {
	if err := validateFirstOrder(cutoffFreq, sampleRate, order); err != nil {
		return err
	}
	f.params.Store(&firstOrderParams{cutoffFreq: cutoffFreq, sampleRate: sampleRate, order: order})
	f.resetState(order)
	return nil
}

// Params returns the current cutoff frequency, sample rate and order.
func (f *HighpassFilter) Params() (float32, uint32, int) {
	p := f.params.Load()
	return p.cutoffFreq, p.sampleRate, p.order
}

// Apply runs the cascade over the signal. Each stage is
// y[n] = alpha*(y[n-1] + x[n] - x[n-1]).
func (f *HighpassFilter) Apply(signal []float32) []float32 {
	p := f.params.Load()
	statePtr := f.state.Load()
	state := *statePtr
	if len(state) != p.order {
		state = make([]hpState, p.order)
	}

	alpha := float32(math.Exp(-2 * math.Pi * float64(p.cutoffFreq) / float64(p.sampleRate)))

	out := make([]float32, len(signal))
	for i, x := range signal {
		cur := clampSample(x)
		for stage := 0; stage < p.order; stage++ {
			s := &state[stage]
			y := alpha * (s.prevOut + cur - s.prevIn)
			if !isFinite(y) {
				y = 0
			}
			s.prevIn = cur
			s.prevOut = y
			cur = y
		}
		out[i] = cur
	}
	f.state.Store(&state)
	return out
}

// Reset clears the delay elements.
func (f *HighpassFilter) Reset() {
	f.resetState(f.params.Load().order)
}

func (f *HighpassFilter) resetState(order int) {
	state := make([]hpState, order)
	f.state.Store(&state)
}

func validateFirstOrder(cutoffFreq float32, sampleRate uint32, order int) error {
	if sampleRate == 0 {
		return fmt.Errorf("sample_rate must be positive")
	}
	nyquist := float32(sampleRate) / 2
	if cutoffFreq <= 0 || cutoffFreq >= nyquist {
		return fmt.Errorf("cutoff_freq must be positive and below the Nyquist frequency (%g)", nyquist)
	}
	if order <= 0 {
		return fmt.Errorf("order must be positive")
	}
	return nil
}

func clampSample(x float32) float32 {
	const limit = 1e6
	if x > limit {
		return limit
	}
	if x < -limit {
		return -limit
	}
	return x
}

func isFinite(x float32) bool {
	f := float64(x)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
