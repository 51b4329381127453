package node

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/sctg-development/rust-photoacoustic-sub001/errors"
	"github.com/sctg-development/rust-photoacoustic-sub001/frame"
	"github.com/sctg-development/rust-photoacoustic-sub001/pkg/buffer"
)

// TypeOutput is the catalog tag of the terminal output stage.
const TypeOutput = "output"

// FrameSummary is the lightweight per-frame document published to NATS
// and served over the websocket stream.
type FrameSummary struct {
	Sequence   uint64  `json:"sequence"`
	Timestamp  int64   `json:"timestamp_ns"`
	SampleRate uint32  `json:"sample_rate"`
	Samples    int     `json:"samples"`
	RMS        float64 `json:"rms"`
	PeakAbs    float64 `json:"peak_abs"`
}

// OutputStage terminates a processing branch: it keeps the latest frame
// for API consumers, buffers a short history, and optionally publishes a
// per-frame summary to a NATS subject. Publish failures are contained
// here and never abort the frame.
type OutputStage struct {
	base
	deps    Dependencies
	latest  atomic.Pointer[frame.Frame]
	history *buffer.Ring[FrameSummary]
	subject atomic.Pointer[string]
}

// NewOutputStage builds the stage from optional "buffer_size" (summary
// history length) and "nats_subject" parameters.
func NewOutputStage(id string, params map[string]any, deps Dependencies) (Stage, error) {
	size, err := OptionalIntParam(params, "buffer_size", 16)
	if err != nil {
		return nil, err
	}
	if size < 1 {
		return nil, errors.WrapValidation(
			fmt.Errorf("%w: buffer_size must be positive", errors.ErrInvalidConfig),
			"output", "validate", "checking buffer size")
	}
	subject, err := OptionalStringParam(params, "nats_subject", "")
	if err != nil {
		return nil, err
	}

	s := &OutputStage{
		base:    newBase(id, TypeOutput, deps),
		deps:    deps,
		history: buffer.NewRing[FrameSummary](size),
	}
	s.subject.Store(&subject)
	return s, nil
}

// Accepts reports the shapes consumable by this stage.
func (s *OutputStage) Accepts(shape frame.Shape) bool {
	return shape == frame.ShapeSingleChannel || shape == frame.ShapeAnalytic
}

// OutputShape returns the produced shape for an accepted input.
func (s *OutputStage) OutputShape(in frame.Shape) frame.Shape { return in }

// Process records the frame and forwards it unchanged.
func (s *OutputStage) Process(f frame.Frame) (frame.Frame, error) {
	clone := f.Clone()
	s.latest.Store(&clone)

	summary := summarize(f)
	s.history.Push(summary)

	if subject := *s.subject.Load(); subject != "" && s.deps.NATS != nil {
		if err := s.deps.NATS.PublishJSON(subject, summary); err != nil {
			s.logger.Warn("output publish failed", "subject", subject, "error", err)
		}
	}
	return f, nil
}

// Latest returns a copy of the most recent frame seen by this stage.
func (s *OutputStage) Latest() (frame.Frame, bool) {
	f := s.latest.Load()
	if f == nil {
		return frame.Frame{}, false
	}
	return f.Clone(), true
}

// History returns the buffered frame summaries, oldest first.
func (s *OutputStage) History() []FrameSummary {
	return s.history.Snapshot()
}

// Reconfigure resizes the history and switches the publish subject in
// place.
func (s *OutputStage) Reconfigure(params map[string]any) (Outcome, error) {
	size, err := OptionalIntParam(params, "buffer_size", s.history.Capacity())
	if err != nil {
		return OutcomeError, err
	}
	if size < 1 {
		return OutcomeError, errors.WrapValidation(
			fmt.Errorf("%w: buffer_size must be positive", errors.ErrInvalidConfig),
			s.id, "update", "checking buffer size")
	}
	subject, err := OptionalStringParam(params, "nats_subject", *s.subject.Load())
	if err != nil {
		return OutcomeError, err
	}

	if size != s.history.Capacity() {
		s.history.Resize(size)
	}
	s.subject.Store(&subject)
	return OutcomeApplied, nil
}

// Reset drops the buffered history and the latest frame.
func (s *OutputStage) Reset() {
	s.history.Clear()
	s.latest.Store(nil)
}

func summarize(f frame.Frame) FrameSummary {
	samples := f.Samples
	if f.Shape == frame.ShapeDualChannel {
		samples = f.ChannelA
	}

	var sum, peak float64
	for _, x := range samples {
		v := float64(x)
		sum += v * v
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	rms := 0.0
	if len(samples) > 0 {
		rms = math.Sqrt(sum / float64(len(samples)))
	}

	return FrameSummary{
		Sequence:   f.Sequence,
		Timestamp:  f.Timestamp.UnixNano(),
		SampleRate: f.SampleRate,
		Samples:    len(samples),
		RMS:        rms,
		PeakAbs:    peak,
	}
}
