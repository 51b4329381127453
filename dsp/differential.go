package dsp

import "fmt"

// DifferentialCalculator computes a differential signal from two
// synchronized channels. Implementations must be safe for reuse across
// frames but are only called from the pipeline goroutine.
type DifferentialCalculator interface {
	Calculate(channelA, channelB []float32) ([]float32, error)
	Name() string
}

// SimpleDifferential subtracts channel B from channel A sample by sample.
// This is the default calculator; it has no tunable parameters.
type SimpleDifferential struct{}

// NewSimpleDifferential returns the default A-B calculator.
func NewSimpleDifferential() *SimpleDifferential {
	return &SimpleDifferential{}
}

// Calculate returns a[i] - b[i] for every sample.
func (s *SimpleDifferential) Calculate(channelA, channelB []float32) ([]float32, error) {
	if len(channelA) != len(channelB) {
		return nil, fmt.Errorf("channel length mismatch: %d vs %d", len(channelA), len(channelB))
	}
	out := make([]float32, len(channelA))
	for i := range channelA {
		out[i] = channelA[i] - channelB[i]
	}
	return out, nil
}

// Name identifies the calculator in status documents.
func (s *SimpleDifferential) Name() string {
	return "simple"
}

// WeightedDifferential computes wa*a[i] - wb*b[i], useful when the two
// acquisition cells have different sensitivities.
type WeightedDifferential struct {
	WeightA float32
	WeightB float32
}

// NewWeightedDifferential returns a calculator with the given channel
// weights.
func NewWeightedDifferential(weightA, weightB float32) *WeightedDifferential {
	return &WeightedDifferential{WeightA: weightA, WeightB: weightB}
}

// Calculate returns wa*a[i] - wb*b[i] for every sample.
func (w *WeightedDifferential) Calculate(channelA, channelB []float32) ([]float32, error) {
	if len(channelA) != len(channelB) {
		return nil, fmt.Errorf("channel length mismatch: %d vs %d", len(channelA), len(channelB))
	}
	out := make([]float32, len(channelA))
	for i := range channelA {
		out[i] = w.WeightA*channelA[i] - w.WeightB*channelB[i]
	}
	return out, nil
}

// Name identifies the calculator in status documents.
func (w *WeightedDifferential) Name() string {
	return "weighted"
}
