// Package frame defines the payload passed between stages of a processing
// graph. A frame is either a dual-channel acquisition buffer, a
// single-channel buffer produced by a transform stage, or an analytic
// pass-through emitted after spectral analysis.
package frame

import (
	"fmt"
	"time"
)

// Shape identifies the payload variant a stage accepts or produces.
type Shape int

const (
	// ShapeDualChannel is the raw acquisition format: two synchronized
	// sample buffers of equal length.
	ShapeDualChannel Shape = iota
	// ShapeSingleChannel is a single sample buffer, produced by channel
	// selection, mixing or differential stages.
	ShapeSingleChannel
	// ShapeAnalytic is a processed-signal pass-through carrying the final
	// samples plus free-form analysis metadata.
	ShapeAnalytic
)

// String returns the shape name used in descriptors and error messages.
func (s Shape) String() string {
	switch s {
	case ShapeDualChannel:
		return "dual_channel"
	case ShapeSingleChannel:
		return "single_channel"
	case ShapeAnalytic:
		return "analytic"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

// Frame is the per-traversal payload. Exactly the fields implied by Shape
// are populated: ChannelA/ChannelB for dual-channel, Samples for
// single-channel and analytic, Metadata for analytic only.
type Frame struct {
	Shape    Shape
	ChannelA []float32
	ChannelB []float32
	Samples  []float32
	Metadata map[string]string

	SampleRate uint32
	Sequence   uint64
	Timestamp  time.Time
}

// NewDualChannel builds a dual-channel frame. Both buffers must have equal
// length; the caller retains no ownership expectations on the slices.
func NewDualChannel(a, b []float32, sampleRate uint32, seq uint64, ts time.Time) (Frame, error) {
	if len(a) != len(b) {
		return Frame{}, fmt.Errorf("channel length mismatch: %d vs %d", len(a), len(b))
	}
	return Frame{
		Shape:      ShapeDualChannel,
		ChannelA:   a,
		ChannelB:   b,
		SampleRate: sampleRate,
		Sequence:   seq,
		Timestamp:  ts,
	}, nil
}

// NewSingleChannel builds a single-channel frame.
func NewSingleChannel(samples []float32, sampleRate uint32, seq uint64, ts time.Time) Frame {
	return Frame{
		Shape:      ShapeSingleChannel,
		Samples:    samples,
		SampleRate: sampleRate,
		Sequence:   seq,
		Timestamp:  ts,
	}
}

// ToAnalytic converts a single-channel frame into an analytic pass-through,
// preserving samples and timing and attaching metadata.
func (f Frame) ToAnalytic(metadata map[string]string) Frame {
	out := f
	out.Shape = ShapeAnalytic
	if metadata == nil {
		metadata = make(map[string]string)
	}
	out.Metadata = metadata
	return out
}

// Len returns the number of samples per channel.
func (f Frame) Len() int {
	if f.Shape == ShapeDualChannel {
		return len(f.ChannelA)
	}
	return len(f.Samples)
}

// Clone returns a deep copy. Stages that buffer frames beyond one traversal
// must clone to avoid aliasing the producer's buffers.
func (f Frame) Clone() Frame {
	out := f
	if f.ChannelA != nil {
		out.ChannelA = append([]float32(nil), f.ChannelA...)
	}
	if f.ChannelB != nil {
		out.ChannelB = append([]float32(nil), f.ChannelB...)
	}
	if f.Samples != nil {
		out.Samples = append([]float32(nil), f.Samples...)
	}
	if f.Metadata != nil {
		out.Metadata = make(map[string]string, len(f.Metadata))
		for k, v := range f.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
