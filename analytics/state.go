// Package analytics provides the shared scoreboard between computing
// stages (producers) and action stages (consumers). Computing stages
// publish their latest results keyed by their node id; action stages read
// whatever is current. Writes are last-writer-wins per key with no
// cross-key ordering guarantee.
package analytics

import (
	"sync"
	"time"
)

// PeakResult is the latest output of a peak finder stage.
type PeakResult struct {
	Frequency float32   `json:"frequency"`
	Amplitude float32   `json:"amplitude"`
	Timestamp time.Time `json:"timestamp"`
	SourceID  string    `json:"source_node_id"`
}

// ConcentrationResult is the latest output of a concentration stage.
type ConcentrationResult struct {
	ConcentrationPPM float64   `json:"concentration_ppm"`
	SourceAmplitude  float32   `json:"source_amplitude"`
	SourceFrequency  float32   `json:"source_frequency"`
	PeakFinderID     string    `json:"peak_finder_id"`
	Timestamp        time.Time `json:"timestamp"`
	SourceID         string    `json:"source_node_id"`
}

// Snapshot is a point-in-time copy of the scoreboard, used by the gateway
// for introspection and streaming.
type Snapshot struct {
	Peaks          map[string]PeakResult          `json:"peaks"`
	Concentrations map[string]ConcentrationResult `json:"concentrations"`
	LastUpdate     time.Time                      `json:"last_update"`
}

// State is the concurrent scoreboard. One instance is shared by reference
// among all computing and action stages of a graph instance and cleared
// on rebuild.
type State struct {
	mu             sync.RWMutex
	peaks          map[string]PeakResult
	concentrations map[string]ConcentrationResult
	lastUpdate     time.Time
}

// NewState creates an empty scoreboard.
func NewState() *State {
	return &State{
		peaks:          make(map[string]PeakResult),
		concentrations: make(map[string]ConcentrationResult),
	}
}

// UpdatePeak publishes a peak result under the producing node's id.
func (s *State) UpdatePeak(nodeID string, result PeakResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result.SourceID = nodeID
	s.peaks[nodeID] = result
	s.lastUpdate = result.Timestamp
}

// Peak returns the latest peak result for a node id.
func (s *State) Peak(nodeID string) (PeakResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.peaks[nodeID]
	return r, ok
}

// UpdateConcentration publishes a concentration result under the producing
// node's id.
func (s *State) UpdateConcentration(nodeID string, result ConcentrationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result.SourceID = nodeID
	s.concentrations[nodeID] = result
	s.lastUpdate = result.Timestamp
}

// Concentration returns the latest concentration result for a node id.
func (s *State) Concentration(nodeID string) (ConcentrationResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.concentrations[nodeID]
	return r, ok
}

// Snapshot returns a copy of the whole scoreboard.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Peaks:          make(map[string]PeakResult, len(s.peaks)),
		Concentrations: make(map[string]ConcentrationResult, len(s.concentrations)),
		LastUpdate:     s.lastUpdate,
	}
	for k, v := range s.peaks {
		snap.Peaks[k] = v
	}
	for k, v := range s.concentrations {
		snap.Concentrations[k] = v
	}
	return snap
}

// Clear wipes the scoreboard. Called when the owning graph is rebuilt so
// stale analytics never survive a topology change.
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.peaks = make(map[string]PeakResult)
	s.concentrations = make(map[string]ConcentrationResult)
	s.lastUpdate = time.Time{}
}
