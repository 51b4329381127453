package node

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/sctg-development/rust-photoacoustic-sub001/errors"
	"github.com/sctg-development/rust-photoacoustic-sub001/frame"
)

// Catalog tags of the channel stages.
const (
	TypeChannelSelector = "channel_selector"
	TypeChannelMixer    = "channel_mixer"
)

// ChannelSelectorStage reduces a dual-channel frame to the configured
// single channel.
type ChannelSelectorStage struct {
	base
	useChannelB atomic.Bool
}

// NewChannelSelectorStage builds a selector from the "target_channel"
// parameter ("ChannelA" or "ChannelB").
func NewChannelSelectorStage(id string, params map[string]any, deps Dependencies) (Stage, error) {
	channel, err := StringParam(params, "target_channel")
	if err != nil {
		return nil, err
	}
	useB, err := parseChannel(channel)
	if err != nil {
		return nil, err
	}

	s := &ChannelSelectorStage{base: newBase(id, TypeChannelSelector, deps)}
	s.useChannelB.Store(useB)
	return s, nil
}

func parseChannel(channel string) (useB bool, err error) {
	switch strings.ToLower(channel) {
	case "channela", "a":
		return false, nil
	case "channelb", "b":
		return true, nil
	default:
		return false, errors.WrapValidation(
			fmt.Errorf("%w: target_channel %q (want \"ChannelA\" or \"ChannelB\")",
				errors.ErrInvalidConfig, channel),
			"channel_selector", "validate", "parsing target channel")
	}
}

// Accepts reports the shapes consumable by this stage.
func (s *ChannelSelectorStage) Accepts(shape frame.Shape) bool {
	return shape == frame.ShapeDualChannel
}

// OutputShape returns the produced shape for an accepted input.
func (s *ChannelSelectorStage) OutputShape(frame.Shape) frame.Shape {
	return frame.ShapeSingleChannel
}

// Process extracts the selected channel.
func (s *ChannelSelectorStage) Process(f frame.Frame) (frame.Frame, error) {
	if f.Shape != frame.ShapeDualChannel {
		return frame.Frame{}, errors.WrapProcessing(
			errors.ErrUnsupportedShape, s.id, "process", "checking input shape")
	}

	samples := f.ChannelA
	if s.useChannelB.Load() {
		samples = f.ChannelB
	}
	return frame.NewSingleChannel(samples, f.SampleRate, f.Sequence, f.Timestamp), nil
}

// Reconfigure switches the selected channel in place.
func (s *ChannelSelectorStage) Reconfigure(params map[string]any) (Outcome, error) {
	channel, err := StringParam(params, "target_channel")
	if err != nil {
		return OutcomeError, err
	}
	useB, err := parseChannel(channel)
	if err != nil {
		return OutcomeError, err
	}

	s.useChannelB.Store(useB)
	return OutcomeApplied, nil
}

// Reset is a no-op; the selector holds no transient state.
func (s *ChannelSelectorStage) Reset() {}

// MixStrategy identifies how the two channels are combined.
type MixStrategy string

// Supported mix strategies.
const (
	MixAdd      MixStrategy = "add"
	MixSubtract MixStrategy = "subtract"
	MixAverage  MixStrategy = "average"
	MixWeighted MixStrategy = "weighted"
)

type mixParams struct {
	strategy MixStrategy
	weightA  float32
	weightB  float32
}

// ChannelMixerStage combines a dual-channel frame into one channel using
// a configurable strategy. All parameters live behind one atomic pointer
// so a reload never exposes a half-updated strategy/weight pair.
type ChannelMixerStage struct {
	base
	params atomic.Pointer[mixParams]
}

// NewChannelMixerStage builds a mixer from "strategy" and, for the
// weighted strategy, "weight_a"/"weight_b".
func NewChannelMixerStage(id string, params map[string]any, deps Dependencies) (Stage, error) {
	mp, err := parseMixParams(params)
	if err != nil {
		return nil, err
	}

	s := &ChannelMixerStage{base: newBase(id, TypeChannelMixer, deps)}
	s.params.Store(mp)
	return s, nil
}

func parseMixParams(params map[string]any) (*mixParams, error) {
	strategy, err := OptionalStringParam(params, "strategy", string(MixAdd))
	if err != nil {
		return nil, err
	}

	mp := &mixParams{strategy: MixStrategy(strategy), weightA: 0.5, weightB: 0.5}
	switch mp.strategy {
	case MixAdd, MixSubtract, MixAverage:
	case MixWeighted:
		wa, err := FloatParam(params, "weight_a")
		if err != nil {
			return nil, err
		}
		wb, err := FloatParam(params, "weight_b")
		if err != nil {
			return nil, err
		}
		mp.weightA = float32(wa)
		mp.weightB = float32(wb)
	default:
		return nil, errors.WrapValidation(
			fmt.Errorf("%w: unknown mix strategy %q", errors.ErrInvalidConfig, strategy),
			"channel_mixer", "validate", "parsing strategy")
	}
	return mp, nil
}

// Accepts reports the shapes consumable by this stage.
func (s *ChannelMixerStage) Accepts(shape frame.Shape) bool {
	return shape == frame.ShapeDualChannel
}

// OutputShape returns the produced shape for an accepted input.
func (s *ChannelMixerStage) OutputShape(frame.Shape) frame.Shape {
	return frame.ShapeSingleChannel
}

// Process mixes the two channels with the active strategy.
func (s *ChannelMixerStage) Process(f frame.Frame) (frame.Frame, error) {
	if f.Shape != frame.ShapeDualChannel {
		return frame.Frame{}, errors.WrapProcessing(
			errors.ErrUnsupportedShape, s.id, "process", "checking input shape")
	}

	p := s.params.Load()
	out := make([]float32, len(f.ChannelA))
	switch p.strategy {
	case MixAdd:
		for i := range out {
			out[i] = f.ChannelA[i] + f.ChannelB[i]
		}
	case MixSubtract:
		for i := range out {
			out[i] = f.ChannelA[i] - f.ChannelB[i]
		}
	case MixAverage:
		for i := range out {
			out[i] = (f.ChannelA[i] + f.ChannelB[i]) / 2
		}
	case MixWeighted:
		for i := range out {
			out[i] = p.weightA*f.ChannelA[i] + p.weightB*f.ChannelB[i]
		}
	}
	return frame.NewSingleChannel(out, f.SampleRate, f.Sequence, f.Timestamp), nil
}

// Reconfigure swaps the whole strategy/weight set atomically.
func (s *ChannelMixerStage) Reconfigure(params map[string]any) (Outcome, error) {
	mp, err := parseMixParams(params)
	if err != nil {
		return OutcomeError, err
	}
	s.params.Store(mp)
	return OutcomeApplied, nil
}

// Reset is a no-op; the mixer holds no transient state.
func (s *ChannelMixerStage) Reset() {}
