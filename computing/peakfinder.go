// Package computing implements the analytic stages of the processing
// graph. They are pass-through stages: each consumes a frame, publishes a
// result into the shared analytics scoreboard and forwards the frame
// unchanged.
package computing

import (
	"fmt"
	"sync/atomic"

	"github.com/sctg-development/rust-photoacoustic-sub001/analytics"
	"github.com/sctg-development/rust-photoacoustic-sub001/dsp"
	"github.com/sctg-development/rust-photoacoustic-sub001/errors"
	"github.com/sctg-development/rust-photoacoustic-sub001/frame"
	"github.com/sctg-development/rust-photoacoustic-sub001/node"
)

// TypePeakFinder is the catalog tag of the spectral peak detector.
const TypePeakFinder = "peak_finder"

type peakParams struct {
	freqMin   float64
	freqMax   float64
	threshold float64
	smoothing float64
}

func parsePeakParams(params map[string]any) (*peakParams, error) {
	freqMin, err := node.OptionalFloatParam(params, "frequency_min", 0)
	if err != nil {
		return nil, err
	}
	freqMax, err := node.OptionalFloatParam(params, "frequency_max", 20000)
	if err != nil {
		return nil, err
	}
	threshold, err := node.OptionalFloatParam(params, "detection_threshold", 0)
	if err != nil {
		return nil, err
	}
	smoothing, err := node.OptionalFloatParam(params, "smoothing_factor", 1)
	if err != nil {
		return nil, err
	}

	if freqMin < 0 || freqMax <= freqMin {
		return nil, errors.WrapValidation(
			fmt.Errorf("%w: frequency window [%g, %g]", errors.ErrInvalidConfig, freqMin, freqMax),
			"peak_finder", "validate", "checking frequency window")
	}
	if threshold < 0 {
		return nil, errors.WrapValidation(
			fmt.Errorf("%w: detection_threshold must not be negative", errors.ErrInvalidConfig),
			"peak_finder", "validate", "checking threshold")
	}
	if smoothing <= 0 || smoothing > 1 {
		return nil, errors.WrapValidation(
			fmt.Errorf("%w: smoothing_factor must be in (0, 1]", errors.ErrInvalidConfig),
			"peak_finder", "validate", "checking smoothing")
	}

	return &peakParams{
		freqMin:   freqMin,
		freqMax:   freqMax,
		threshold: threshold,
		smoothing: smoothing,
	}, nil
}

// PeakFinderStage locates the dominant spectral peak inside a frequency
// window and publishes the exponentially smoothed frequency and amplitude
// into the analytics scoreboard.
type PeakFinderStage struct {
	id     string
	shared *analytics.State
	params atomic.Pointer[peakParams]

	// Smoothed trackers, touched only by the pipeline goroutine.
	haveSmoothed bool
	smoothedFreq float64
	smoothedAmp  float64
}

// NewPeakFinderStage builds the stage. Parameters: "frequency_min",
// "frequency_max", "detection_threshold", "smoothing_factor".
func NewPeakFinderStage(id string, params map[string]any, deps node.Dependencies) (node.Stage, error) {
	p, err := parsePeakParams(params)
	if err != nil {
		return nil, err
	}
	if deps.Analytics == nil {
		return nil, errors.WrapValidation(
			fmt.Errorf("%w: analytics scoreboard", errors.ErrMissingConfig),
			"peak_finder", "create", "checking dependencies")
	}

	s := &PeakFinderStage{id: id, shared: deps.Analytics}
	s.params.Store(p)
	return s, nil
}

// ID returns the node id.
func (s *PeakFinderStage) ID() string { return s.id }

// Type returns the catalog tag.
func (s *PeakFinderStage) Type() string { return TypePeakFinder }

// Accepts reports the shapes consumable by this stage.
func (s *PeakFinderStage) Accepts(shape frame.Shape) bool {
	return shape == frame.ShapeSingleChannel || shape == frame.ShapeAnalytic
}

// OutputShape returns the produced shape for an accepted input.
func (s *PeakFinderStage) OutputShape(in frame.Shape) frame.Shape { return in }

// Process analyses the frame spectrum and forwards the frame unchanged.
func (s *PeakFinderStage) Process(f frame.Frame) (frame.Frame, error) {
	if !s.Accepts(f.Shape) {
		return frame.Frame{}, errors.WrapProcessing(
			errors.ErrUnsupportedShape, s.id, "process", "checking input shape")
	}
	if len(f.Samples) == 0 {
		return frame.Frame{}, errors.WrapProcessing(
			errors.ErrEmptyFrame, s.id, "process", "checking samples")
	}

	p := s.params.Load()

	samples := make([]float64, len(f.Samples))
	for i, v := range f.Samples {
		samples[i] = float64(v)
	}
	mags := dsp.MagnitudeSpectrum(samples)
	fftSize := len(mags) * 2

	minBin := int(p.freqMin * float64(fftSize) / float64(f.SampleRate))
	maxBin := int(p.freqMax * float64(fftSize) / float64(f.SampleRate))
	if minBin < 0 {
		minBin = 0
	}
	if maxBin >= len(mags) {
		maxBin = len(mags) - 1
	}
	if minBin > maxBin {
		return f, nil
	}

	peakBin := minBin
	for i := minBin; i <= maxBin; i++ {
		if mags[i] > mags[peakBin] {
			peakBin = i
		}
	}
	if mags[peakBin] < p.threshold {
		return f, nil
	}

	offset, magnitude := dsp.InterpolatePeak(mags, peakBin)
	freq := dsp.BinFrequency(peakBin, fftSize, f.SampleRate) +
		offset*float64(f.SampleRate)/float64(fftSize)

	if s.haveSmoothed {
		s.smoothedFreq = p.smoothing*freq + (1-p.smoothing)*s.smoothedFreq
		s.smoothedAmp = p.smoothing*magnitude + (1-p.smoothing)*s.smoothedAmp
	} else {
		s.smoothedFreq = freq
		s.smoothedAmp = magnitude
		s.haveSmoothed = true
	}

	s.shared.UpdatePeak(s.id, analytics.PeakResult{
		Frequency: float32(s.smoothedFreq),
		Amplitude: float32(s.smoothedAmp),
		Timestamp: f.Timestamp,
	})
	return f, nil
}

// Reconfigure swaps the detection parameters atomically.
func (s *PeakFinderStage) Reconfigure(params map[string]any) (node.Outcome, error) {
	p, err := parsePeakParams(params)
	if err != nil {
		return node.OutcomeError, err
	}
	s.params.Store(p)
	return node.OutcomeApplied, nil
}

// Reset clears the smoothing history.
func (s *PeakFinderStage) Reset() {
	s.haveSmoothed = false
	s.smoothedFreq = 0
	s.smoothedAmp = 0
}
