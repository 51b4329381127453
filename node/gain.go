package node

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/sctg-development/rust-photoacoustic-sub001/errors"
	"github.com/sctg-development/rust-photoacoustic-sub001/frame"
)

// TypeGain is the catalog tag of the amplification stage.
const TypeGain = "gain"

// Gain bounds in decibels. Values outside this range are almost certainly
// configuration mistakes.
const (
	MinGainDB = -60.0
	MaxGainDB = 100.0
)

// GainStage multiplies every sample by a linear gain derived from a
// decibel setting. The gain is stored as raw float bits so a reload can
// swap it atomically while a frame pass is running.
type GainStage struct {
	base
	linearGain atomic.Uint64
}

// NewGainStage builds a gain stage from the "gain_db" parameter.
func NewGainStage(id string, params map[string]any, deps Dependencies) (Stage, error) {
	gainDB, err := FloatParam(params, "gain_db")
	if err != nil {
		return nil, err
	}
	if err := validateGainDB(gainDB); err != nil {
		return nil, err
	}

	s := &GainStage{base: newBase(id, TypeGain, deps)}
	s.setGainDB(gainDB)
	return s, nil
}

func validateGainDB(gainDB float64) error {
	if gainDB < MinGainDB || gainDB > MaxGainDB {
		return errors.WrapValidation(
			fmt.Errorf("%w: gain_db %g outside [%g, %g]",
				errors.ErrInvalidConfig, gainDB, MinGainDB, MaxGainDB),
			"gain", "validate", "checking gain range")
	}
	return nil
}

func (s *GainStage) setGainDB(gainDB float64) {
	linear := math.Pow(10, gainDB/20)
	s.linearGain.Store(math.Float64bits(linear))
}

// LinearGain returns the active linear multiplier.
func (s *GainStage) LinearGain() float64 {
	return math.Float64frombits(s.linearGain.Load())
}

// Accepts reports the shapes consumable by this stage.
func (s *GainStage) Accepts(shape frame.Shape) bool {
	return shape == frame.ShapeDualChannel || shape == frame.ShapeSingleChannel
}

// OutputShape returns the produced shape for an accepted input.
func (s *GainStage) OutputShape(in frame.Shape) frame.Shape { return in }

// Process scales all channels of the frame by the active gain.
func (s *GainStage) Process(f frame.Frame) (frame.Frame, error) {
	gain := float32(s.LinearGain())

	switch f.Shape {
	case frame.ShapeDualChannel:
		f.ChannelA = scaled(f.ChannelA, gain)
		f.ChannelB = scaled(f.ChannelB, gain)
	case frame.ShapeSingleChannel:
		f.Samples = scaled(f.Samples, gain)
	default:
		return frame.Frame{}, errors.WrapProcessing(
			errors.ErrUnsupportedShape, s.id, "process", "checking input shape")
	}
	return f, nil
}

// Reconfigure applies a new gain_db in place.
func (s *GainStage) Reconfigure(params map[string]any) (Outcome, error) {
	gainDB, err := FloatParam(params, "gain_db")
	if err != nil {
		return OutcomeError, err
	}
	if err := validateGainDB(gainDB); err != nil {
		return OutcomeError, err
	}

	s.setGainDB(gainDB)
	s.logger.Info("gain updated", "gain_db", gainDB)
	return OutcomeApplied, nil
}

// Reset is a no-op; the gain stage holds no transient state.
func (s *GainStage) Reset() {}

func scaled(signal []float32, gain float32) []float32 {
	out := make([]float32, len(signal))
	for i, x := range signal {
		out[i] = x * gain
	}
	return out
}
