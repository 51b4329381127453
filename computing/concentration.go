package computing

import (
	"fmt"
	"sync/atomic"

	"github.com/sctg-development/rust-photoacoustic-sub001/analytics"
	"github.com/sctg-development/rust-photoacoustic-sub001/errors"
	"github.com/sctg-development/rust-photoacoustic-sub001/frame"
	"github.com/sctg-development/rust-photoacoustic-sub001/node"
)

// TypeConcentration is the catalog tag of the concentration calculator.
const TypeConcentration = "concentration"

// referenceTemperature is the calibration temperature in Celsius; the
// compensation factor is relative to it.
const referenceTemperature = 25.0

type concentrationParams struct {
	coefficients [5]float64
	minAmplitude float64
	maxPPM       float64
	tempEnabled  bool
	tempCoeff    float64
	temperature  float64
}

func parseConcentrationParams(params map[string]any) (*concentrationParams, error) {
	coeffs, err := node.FloatSliceParam(params, "polynomial_coefficients")
	if err != nil {
		return nil, err
	}
	if len(coeffs) != 5 {
		return nil, errors.WrapValidation(
			fmt.Errorf("%w: polynomial_coefficients needs 5 values (degree 4), got %d",
				errors.ErrInvalidConfig, len(coeffs)),
			"concentration", "validate", "checking polynomial")
	}

	minAmplitude, err := node.OptionalFloatParam(params, "min_amplitude", 0)
	if err != nil {
		return nil, err
	}
	maxPPM, err := node.OptionalFloatParam(params, "max_ppm", 10000)
	if err != nil {
		return nil, err
	}
	if maxPPM <= 0 {
		return nil, errors.WrapValidation(
			fmt.Errorf("%w: max_ppm must be positive", errors.ErrInvalidConfig),
			"concentration", "validate", "checking clamp")
	}

	tempEnabled, err := node.OptionalBoolParam(params, "temperature_compensation", false)
	if err != nil {
		return nil, err
	}
	tempCoeff, err := node.OptionalFloatParam(params, "temperature_coefficient", 0)
	if err != nil {
		return nil, err
	}
	temperature, err := node.OptionalFloatParam(params, "temperature_celsius", referenceTemperature)
	if err != nil {
		return nil, err
	}

	p := &concentrationParams{
		minAmplitude: minAmplitude,
		maxPPM:       maxPPM,
		tempEnabled:  tempEnabled,
		tempCoeff:    tempCoeff,
		temperature:  temperature,
	}
	copy(p.coefficients[:], coeffs)
	return p, nil
}

// ConcentrationStage converts the amplitude published by a named upstream
// peak finder into a gas concentration using a degree-4 calibration
// polynomial, with optional linear temperature compensation and a hard
// clamp. The upstream reference is structural; everything else
// hot-reloads.
type ConcentrationStage struct {
	id           string
	peakFinderID string
	shared       *analytics.State
	params       atomic.Pointer[concentrationParams]
}

// NewConcentrationStage builds the stage. Required parameters:
// "peak_finder_id" and "polynomial_coefficients" (5 values, constant term
// first).
func NewConcentrationStage(id string, params map[string]any, deps node.Dependencies) (node.Stage, error) {
	peakFinderID, err := node.StringParam(params, "peak_finder_id")
	if err != nil {
		return nil, err
	}
	p, err := parseConcentrationParams(params)
	if err != nil {
		return nil, err
	}
	if deps.Analytics == nil {
		return nil, errors.WrapValidation(
			fmt.Errorf("%w: analytics scoreboard", errors.ErrMissingConfig),
			"concentration", "create", "checking dependencies")
	}

	s := &ConcentrationStage{id: id, peakFinderID: peakFinderID, shared: deps.Analytics}
	s.params.Store(p)
	return s, nil
}

// ID returns the node id.
func (s *ConcentrationStage) ID() string { return s.id }

// Type returns the catalog tag.
func (s *ConcentrationStage) Type() string { return TypeConcentration }

// PeakFinderID returns the structural upstream reference.
func (s *ConcentrationStage) PeakFinderID() string { return s.peakFinderID }

// Accepts reports the shapes consumable by this stage.
func (s *ConcentrationStage) Accepts(shape frame.Shape) bool {
	return shape == frame.ShapeSingleChannel || shape == frame.ShapeAnalytic
}

// OutputShape returns the produced shape for an accepted input.
func (s *ConcentrationStage) OutputShape(in frame.Shape) frame.Shape { return in }

// Process reads the upstream peak, computes the concentration and
// forwards the frame unchanged. A missing upstream result or an amplitude
// below the gate is not an error: the stage simply publishes nothing this
// frame.
func (s *ConcentrationStage) Process(f frame.Frame) (frame.Frame, error) {
	if !s.Accepts(f.Shape) {
		return frame.Frame{}, errors.WrapProcessing(
			errors.ErrUnsupportedShape, s.id, "process", "checking input shape")
	}

	peak, ok := s.shared.Peak(s.peakFinderID)
	if !ok {
		return f, nil
	}

	p := s.params.Load()
	amplitude := float64(peak.Amplitude)
	if amplitude < p.minAmplitude {
		return f, nil
	}

	ppm := evalPolynomial(p.coefficients, amplitude)
	if p.tempEnabled {
		ppm *= 1 + p.tempCoeff*(p.temperature-referenceTemperature)
	}
	if ppm < 0 {
		ppm = 0
	}
	if ppm > p.maxPPM {
		ppm = p.maxPPM
	}

	s.shared.UpdateConcentration(s.id, analytics.ConcentrationResult{
		ConcentrationPPM: ppm,
		SourceAmplitude:  peak.Amplitude,
		SourceFrequency:  peak.Frequency,
		PeakFinderID:     s.peakFinderID,
		Timestamp:        f.Timestamp,
	})
	return f, nil
}

// Reconfigure swaps the calibration parameters atomically. Changing the
// upstream peak finder rewires the data dependency and defers to a
// rebuild.
func (s *ConcentrationStage) Reconfigure(params map[string]any) (node.Outcome, error) {
	peakFinderID, err := node.OptionalStringParam(params, "peak_finder_id", s.peakFinderID)
	if err != nil {
		return node.OutcomeError, err
	}
	if peakFinderID != s.peakFinderID {
		return node.OutcomeNotApplicable, nil
	}

	p, err := parseConcentrationParams(params)
	if err != nil {
		return node.OutcomeError, err
	}
	s.params.Store(p)
	return node.OutcomeApplied, nil
}

// Reset is a no-op; the stage keeps no per-frame state.
func (s *ConcentrationStage) Reset() {}

// evalPolynomial evaluates c0 + c1*x + ... + c4*x^4 using Horner's rule.
func evalPolynomial(c [5]float64, x float64) float64 {
	result := c[4]
	for i := 3; i >= 0; i-- {
		result = result*x + c[i]
	}
	return result
}
