package node

import (
	"github.com/sctg-development/rust-photoacoustic-sub001/errors"
	"github.com/sctg-development/rust-photoacoustic-sub001/frame"
)

// TypeInput is the catalog tag of the acquisition entry node.
const TypeInput = "input"

// InputStage is the graph entry point. The producer injects frames into
// the graph at this node; the stage itself validates and forwards them
// unchanged. Acquisition parameters (sample rate, frame size) are
// structural, so every reconfiguration requires a rebuild.
type InputStage struct {
	base
}

// NewInputStage builds the input stage factory product.
func NewInputStage(id string, _ map[string]any, deps Dependencies) (Stage, error) {
	return &InputStage{base: newBase(id, TypeInput, deps)}, nil
}

// Accepts reports the shapes consumable by this stage.
func (s *InputStage) Accepts(shape frame.Shape) bool {
	return shape == frame.ShapeDualChannel
}

// OutputShape returns the produced shape for an accepted input.
func (s *InputStage) OutputShape(in frame.Shape) frame.Shape { return in }

// Process validates the incoming acquisition frame and forwards it.
func (s *InputStage) Process(f frame.Frame) (frame.Frame, error) {
	if f.Shape != frame.ShapeDualChannel {
		return frame.Frame{}, errors.WrapProcessing(
			errors.ErrUnsupportedShape, s.id, "process", "checking input shape")
	}
	if f.Len() == 0 {
		return frame.Frame{}, errors.WrapProcessing(
			errors.ErrEmptyFrame, s.id, "process", "checking frame length")
	}
	return f, nil
}

// Reconfigure always defers to a rebuild.
func (s *InputStage) Reconfigure(map[string]any) (Outcome, error) {
	return OutcomeNotApplicable, nil
}

// Reset is a no-op; the input stage holds no transient state.
func (s *InputStage) Reset() {}
