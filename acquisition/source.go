// Package acquisition produces dual-channel frames and pushes them into
// the processing engine at a configured cadence.
package acquisition

import (
	"math"
	"math/rand"
	"time"

	"github.com/sctg-development/rust-photoacoustic-sub001/config"
	"github.com/sctg-development/rust-photoacoustic-sub001/frame"
)

// Source yields acquisition frames in sequence order.
type Source interface {
	// Next produces the next dual-channel frame.
	Next() (frame.Frame, error)
	// SampleRate returns the source sample rate in Hz.
	SampleRate() uint32
}

// SimulatedSource synthesizes a photoacoustic measurement: channel A
// carries the resonant signal plus noise, channel B the reference cell
// with the same noise floor and an attenuated signal. Seeded, so a given
// configuration reproduces the same stream.
type SimulatedSource struct {
	cfg   config.AcquisitionConfig
	rng   *rand.Rand
	seq   uint64
	phase float64
}

// referenceAttenuation is how much of the signal leaks into the
// reference channel.
const referenceAttenuation = 0.1

// NewSimulatedSource creates a deterministic source from the acquisition
// configuration.
func NewSimulatedSource(cfg config.AcquisitionConfig) *SimulatedSource {
	return &SimulatedSource{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Simulation.Seed)),
	}
}

// SampleRate returns the configured sample rate.
func (s *SimulatedSource) SampleRate() uint32 { return s.cfg.SampleRate }

// Next synthesizes one frame. Phase is continuous across frames so the
// signal has no frame-boundary discontinuities.
func (s *SimulatedSource) Next() (frame.Frame, error) {
	sim := s.cfg.Simulation
	n := s.cfg.FrameSize
	step := 2 * math.Pi * sim.SignalFrequency / float64(s.cfg.SampleRate)

	a := make([]float32, n)
	b := make([]float32, n)
	for i := 0; i < n; i++ {
		signal := sim.Amplitude * math.Sin(s.phase)
		noiseA := sim.NoiseLevel * (2*s.rng.Float64() - 1)
		noiseB := sim.NoiseLevel * (2*s.rng.Float64() - 1)

		a[i] = float32(signal + noiseA)
		b[i] = float32(referenceAttenuation*signal + noiseB)

		s.phase += step
		if s.phase > 2*math.Pi {
			s.phase -= 2 * math.Pi
		}
	}

	s.seq++
	return frame.NewDualChannel(a, b, s.cfg.SampleRate, s.seq, time.Now())
}
