package node

import (
	"fmt"
	"sync/atomic"

	"github.com/sctg-development/rust-photoacoustic-sub001/dsp"
	"github.com/sctg-development/rust-photoacoustic-sub001/errors"
	"github.com/sctg-development/rust-photoacoustic-sub001/frame"
)

// TypeDifferential is the catalog tag of the differential stage.
const TypeDifferential = "differential"

// DifferentialStage computes a single differential signal from the two
// acquisition channels. The weighted calculator's weights hot-reload by
// swapping the calculator pointer whole; a calculator kind switch is
// structural and defers to a rebuild.
type DifferentialStage struct {
	base
	calculator atomic.Pointer[dsp.DifferentialCalculator]
}

// NewDifferentialStage builds the stage from an optional "calculator"
// parameter ("simple" or "weighted" with "weight_a"/"weight_b").
func NewDifferentialStage(id string, params map[string]any, deps Dependencies) (Stage, error) {
	calc, err := parseCalculator(params)
	if err != nil {
		return nil, err
	}

	s := &DifferentialStage{base: newBase(id, TypeDifferential, deps)}
	s.calculator.Store(&calc)
	return s, nil
}

func parseCalculator(params map[string]any) (dsp.DifferentialCalculator, error) {
	kind, err := OptionalStringParam(params, "calculator", "simple")
	if err != nil {
		return nil, err
	}

	switch kind {
	case "simple":
		return dsp.NewSimpleDifferential(), nil
	case "weighted":
		wa, err := FloatParam(params, "weight_a")
		if err != nil {
			return nil, err
		}
		wb, err := FloatParam(params, "weight_b")
		if err != nil {
			return nil, err
		}
		return dsp.NewWeightedDifferential(float32(wa), float32(wb)), nil
	default:
		return nil, errors.WrapValidation(
			fmt.Errorf("%w: calculator %q", errors.ErrInvalidConfig, kind),
			"differential", "validate", "parsing calculator")
	}
}

// Calculator returns the active calculator.
func (s *DifferentialStage) Calculator() dsp.DifferentialCalculator {
	return *s.calculator.Load()
}

// Accepts reports the shapes consumable by this stage.
func (s *DifferentialStage) Accepts(shape frame.Shape) bool {
	return shape == frame.ShapeDualChannel
}

// OutputShape returns the produced shape for an accepted input.
func (s *DifferentialStage) OutputShape(frame.Shape) frame.Shape {
	return frame.ShapeSingleChannel
}

// Process computes the differential signal.
func (s *DifferentialStage) Process(f frame.Frame) (frame.Frame, error) {
	if f.Shape != frame.ShapeDualChannel {
		return frame.Frame{}, errors.WrapProcessing(
			errors.ErrUnsupportedShape, s.id, "process", "checking input shape")
	}

	out, err := s.Calculator().Calculate(f.ChannelA, f.ChannelB)
	if err != nil {
		return frame.Frame{}, errors.WrapProcessing(err, s.id, "process", "calculating differential")
	}
	return frame.NewSingleChannel(out, f.SampleRate, f.Sequence, f.Timestamp), nil
}

// Reconfigure updates the weighted calculator's weights in place. The
// simple calculator has no tunable parameters, and switching calculator
// kinds replaces the signal path, so both defer to a rebuild.
func (s *DifferentialStage) Reconfigure(params map[string]any) (Outcome, error) {
	kind, err := OptionalStringParam(params, "calculator", "simple")
	if err != nil {
		return OutcomeError, err
	}
	if kind != s.Calculator().Name() {
		return OutcomeNotApplicable, nil
	}
	if kind == "simple" {
		return OutcomeNotApplicable, nil
	}

	calc, err := parseCalculator(params)
	if err != nil {
		return OutcomeError, err
	}
	s.calculator.Store(&calc)
	return OutcomeApplied, nil
}

// Reset is a no-op; calculators are stateless.
func (s *DifferentialStage) Reset() {}
