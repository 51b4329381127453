package dsp

import (
	"fmt"
	"math"
	"sync/atomic"
)

// BandpassFilter is a Butterworth bandpass built from cascaded biquad
// sections (Direct Form II Transposed). The order must be even: each
// biquad implements a second-order response.
//
// Reconfiguration recomputes the whole coefficient chain and swaps it
// atomically, so a frame pass running concurrently sees either the old or
// the new chain, never a mixture.
type BandpassFilter struct {
	chain atomic.Pointer[biquadChain]
}

// BandpassParams are the tunable parameters of a bandpass filter.
type BandpassParams struct {
	CenterFreq float32
	Bandwidth  float32
	SampleRate uint32
	Order      int
}

type biquadCoeffs struct {
	b0, b1, b2 float32 // feedforward
	a1, a2     float32 // feedback, a0 normalized to 1
}

type biquadState struct {
	z1, z2 float32
}

type biquadChain struct {
	params BandpassParams
	coeffs []biquadCoeffs
	states []biquadState
}

// NewBandpassFilter creates a second-order bandpass centered at centerFreq
// with the given bandwidth, at the default sample rate.
func NewBandpassFilter(centerFreq, bandwidth float32) (*BandpassFilter, error) {
	f := &BandpassFilter{}
	err := f.Update(BandpassParams{
		CenterFreq: centerFreq,
		Bandwidth:  bandwidth,
		SampleRate: DefaultSampleRate,
		Order:      2,
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks the parameter constraints: center frequency below
// Nyquist, positive bandwidth, positive even order.
func (p BandpassParams) Validate() error {
	if p.SampleRate == 0 {
		return fmt.Errorf("sample_rate must be positive")
	}
	nyquist := float32(p.SampleRate) / 2
	if p.CenterFreq <= 0 || p.CenterFreq >= nyquist {
		return fmt.Errorf("center_freq must be positive and below the Nyquist frequency (%g)", nyquist)
	}
	if p.Bandwidth <= 0 {
		return fmt.Errorf("bandwidth must be positive")
	}
	if p.Order <= 0 || p.Order%2 != 0 {
		return fmt.Errorf("order must be a positive even integer")
	}
	return nil
}

// Update validates the parameters, recomputes the biquad chain and swaps
// it in. On validation failure the previous chain is left untouched.
func (f *BandpassFilter) Update(p BandpassParams) error {
	if err := p.Validate(); err != nil {
		return err
	}
	f.chain.Store(computeChain(p))
	return nil
}

// Params returns the parameters of the active coefficient chain.
func (f *BandpassFilter) Params() BandpassParams {
	return f.chain.Load().params
}

// sectionQ distributes Q factors across the cascade so the combined
// response stays Butterworth.
func sectionQ(p BandpassParams, section, nSections int) float64 {
	baseQ := float64(p.CenterFreq) / float64(p.Bandwidth)
	if nSections == 1 {
		return baseQ
	}
	butterworth := 1 / (2 * math.Sin(math.Pi*(2*float64(section)+1)/(4*float64(nSections))))
	return baseQ * butterworth
}

func computeChain(p BandpassParams) *biquadChain {
	nSections := p.Order / 2
	chain := &biquadChain{
		params: p,
		coeffs: make([]biquadCoeffs, 0, nSections),
		states: make([]biquadState, nSections),
	}

	fs := float64(p.SampleRate)
	fc := float64(p.CenterFreq)

	for k := 0; k < nSections; k++ {
		q := sectionQ(p, k, nSections)

		w0 := 2 * math.Pi * fc / fs
		alpha := math.Sin(w0) / (2 * q)

		b0 := alpha
		b2 := -alpha
		a0 := 1 + alpha
		a1 := -2 * math.Cos(w0)
		a2 := 1 - alpha

		chain.coeffs = append(chain.coeffs, biquadCoeffs{
			b0: float32(b0 / a0),
			b1: 0,
			b2: float32(b2 / a0),
			a1: float32(a1 / a0),
			a2: float32(a2 / a0),
		})
	}

	// Gain correction so the cascaded passband stays near unity.
	if nSections > 1 {
		correction := float32(math.Sqrt(float64(nSections)))
		for i := range chain.coeffs {
			chain.coeffs[i].b0 *= correction
			chain.coeffs[i].b2 *= correction
		}
	}

	return chain
}

// Apply processes the signal through the cascade. The chain pointer is
// loaded once per call; states belong to the loaded chain.
func (f *BandpassFilter) Apply(signal []float32) []float32 {
	chain := f.chain.Load()
	out := make([]float32, len(signal))

	for i, x := range signal {
		y := x
		for s := range chain.coeffs {
			c := &chain.coeffs[s]
			st := &chain.states[s]

			yOut := c.b0*y + st.z1
			st.z1 = c.b1*y - c.a1*yOut + st.z2
			st.z2 = c.b2*y - c.a2*yOut
			y = yOut
		}
		out[i] = y
	}
	return out
}

// Reset clears the delay elements of the active chain.
func (f *BandpassFilter) Reset() {
	chain := f.chain.Load()
	for i := range chain.states {
		chain.states[i] = biquadState{}
	}
}
