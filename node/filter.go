package node

import (
	"fmt"
	"sync/atomic"

	"github.com/sctg-development/rust-photoacoustic-sub001/dsp"
	"github.com/sctg-development/rust-photoacoustic-sub001/errors"
	"github.com/sctg-development/rust-photoacoustic-sub001/frame"
)

// TypeFilter is the catalog tag of the DSP filter stage.
const TypeFilter = "filter"

// Filter kinds accepted by the "filter_type" parameter. Changing the kind
// swaps the whole filter topology, so it is structural and triggers a
// rebuild instead of a hot reload.
const (
	FilterLowpass  = "lowpass"
	FilterHighpass = "highpass"
	FilterBandpass = "bandpass"
)

// Filter targets accepted by the "target_channel" parameter.
const (
	targetBoth int32 = iota
	targetA
	targetB
)

// FilterStage applies a lowpass, highpass or bandpass filter to one or
// both channels. Each signal path owns its filter instance so channel
// histories never mix.
type FilterStage struct {
	base
	kind   string
	target atomic.Int32

	// 0: channel A, 1: channel B, 2: single-channel input
	paths  [3]dsp.Filter
	update func(params map[string]any) error
}

// NewFilterStage builds a filter stage. Parameters: "filter_type",
// optional "target_channel" ("both", "a", "b"), optional "sample_rate",
// and the kind-specific frequency parameters.
func NewFilterStage(id string, params map[string]any, deps Dependencies) (Stage, error) {
	kind, err := StringParam(params, "filter_type")
	if err != nil {
		return nil, err
	}

	s := &FilterStage{base: newBase(id, TypeFilter, deps), kind: kind}

	switch kind {
	case FilterLowpass:
		var filters [3]*dsp.LowpassFilter
		for i := range filters {
			filters[i] = dsp.NewLowpassFilter(1000)
			s.paths[i] = filters[i]
		}
		s.update = func(p map[string]any) error {
			cutoff, rate, order, err := firstOrderParams(p)
			if err != nil {
				return err
			}
			for _, f := range filters {
				if err := f.Update(cutoff, rate, order); err != nil {
					return errors.WrapValidation(err, s.id, "update", "applying lowpass parameters")
				}
			}
			return nil
		}
	case FilterHighpass:
		var filters [3]*dsp.HighpassFilter
		for i := range filters {
			filters[i] = dsp.NewHighpassFilter(1000)
			s.paths[i] = filters[i]
		}
		s.update = func(p map[string]any) error {
			cutoff, rate, order, err := firstOrderParams(p)
			if err != nil {
				return err
			}
			for _, f := range filters {
				if err := f.Update(cutoff, rate, order); err != nil {
					return errors.WrapValidation(err, s.id, "update", "applying highpass parameters")
				}
			}
			return nil
		}
	case FilterBandpass:
		var filters [3]*dsp.BandpassFilter
		for i := range filters {
			f, err := dsp.NewBandpassFilter(2000, 100)
			if err != nil {
				return nil, errors.WrapValidation(err, id, "create", "building bandpass")
			}
			filters[i] = f
			s.paths[i] = f
		}
		s.update = func(p map[string]any) error {
			bp, err := bandpassParams(p)
			if err != nil {
				return err
			}
			for _, f := range filters {
				if err := f.Update(bp); err != nil {
					return errors.WrapValidation(err, s.id, "update", "applying bandpass parameters")
				}
			}
			return nil
		}
	default:
		return nil, errors.WrapValidation(
			fmt.Errorf("%w: filter_type %q", errors.ErrInvalidConfig, kind),
			"filter", "validate", "parsing filter type")
	}

	target, err := filterTarget(params)
	if err != nil {
		return nil, err
	}
	s.target.Store(target)

	if err := s.update(params); err != nil {
		return nil, err
	}
	return s, nil
}

func firstOrderParams(params map[string]any) (cutoff float32, rate uint32, order int, err error) {
	c, err := FloatParam(params, "cutoff_frequency")
	if err != nil {
		return 0, 0, 0, err
	}
	r, err := OptionalIntParam(params, "sample_rate", dsp.DefaultSampleRate)
	if err != nil {
		return 0, 0, 0, err
	}
	o, err := OptionalIntParam(params, "order", 1)
	if err != nil {
		return 0, 0, 0, err
	}
	return float32(c), uint32(r), o, nil
}

func bandpassParams(params map[string]any) (dsp.BandpassParams, error) {
	center, err := FloatParam(params, "center_frequency")
	if err != nil {
		return dsp.BandpassParams{}, err
	}
	bandwidth, err := FloatParam(params, "bandwidth")
	if err != nil {
		return dsp.BandpassParams{}, err
	}
	rate, err := OptionalIntParam(params, "sample_rate", dsp.DefaultSampleRate)
	if err != nil {
		return dsp.BandpassParams{}, err
	}
	order, err := OptionalIntParam(params, "order", 2)
	if err != nil {
		return dsp.BandpassParams{}, err
	}
	return dsp.BandpassParams{
		CenterFreq: float32(center),
		Bandwidth:  float32(bandwidth),
		SampleRate: uint32(rate),
		Order:      order,
	}, nil
}

func filterTarget(params map[string]any) (int32, error) {
	target, err := OptionalStringParam(params, "target_channel", "both")
	if err != nil {
		return 0, err
	}
	switch target {
	case "both":
		return targetBoth, nil
	case "a", "A":
		return targetA, nil
	case "b", "B":
		return targetB, nil
	default:
		return 0, errors.WrapValidation(
			fmt.Errorf("%w: target_channel %q", errors.ErrInvalidConfig, target),
			"filter", "validate", "parsing target channel")
	}
}

// Kind returns the configured filter kind.
func (s *FilterStage) Kind() string { return s.kind }

// Accepts reports the shapes consumable by this stage.
func (s *FilterStage) Accepts(shape frame.Shape) bool {
	return shape == frame.ShapeDualChannel || shape == frame.ShapeSingleChannel
}

// OutputShape returns the produced shape for an accepted input.
func (s *FilterStage) OutputShape(in frame.Shape) frame.Shape { return in }

// Process filters the targeted channels.
func (s *FilterStage) Process(f frame.Frame) (frame.Frame, error) {
	switch f.Shape {
	case frame.ShapeDualChannel:
		target := s.target.Load()
		if target == targetBoth || target == targetA {
			f.ChannelA = s.paths[0].Apply(f.ChannelA)
		}
		if target == targetBoth || target == targetB {
			f.ChannelB = s.paths[1].Apply(f.ChannelB)
		}
	case frame.ShapeSingleChannel:
		f.Samples = s.paths[2].Apply(f.Samples)
	default:
		return frame.Frame{}, errors.WrapProcessing(
			errors.ErrUnsupportedShape, s.id, "process", "checking input shape")
	}
	return f, nil
}

// Reconfigure retunes the filter in place. A filter_type change is
// structural and defers to a rebuild; invalid frequency parameters are
// rejected with the previous coefficients kept live.
func (s *FilterStage) Reconfigure(params map[string]any) (Outcome, error) {
	kind, err := OptionalStringParam(params, "filter_type", s.kind)
	if err != nil {
		return OutcomeError, err
	}
	if kind != s.kind {
		return OutcomeNotApplicable, nil
	}

	target, err := filterTarget(params)
	if err != nil {
		return OutcomeError, err
	}
	if err := s.update(params); err != nil {
		return OutcomeError, err
	}

	s.target.Store(target)
	return OutcomeApplied, nil
}

// Reset clears the filter histories of all signal paths.
func (s *FilterStage) Reset() {
	for _, f := range s.paths {
		f.Reset()
	}
}
