package config

import (
	"sync"

	"github.com/sctg-development/rust-photoacoustic-sub001/graph"
)

// Update is the notification sent to store subscribers after a commit.
type Update struct {
	Revision uint64
	Config   *Config
}

// Store owns the active configuration. Writes go through the reload
// dispatcher only; any goroutine may read. Every commit bumps a
// monotonic revision and notifies subscribers without blocking.
type Store struct {
	mu          sync.RWMutex
	cfg         *Config
	revision    uint64
	subscribers []chan Update
}

// NewStore creates a store holding the initial configuration at
// revision 1.
func NewStore(cfg *Config) *Store {
	return &Store{cfg: cfg, revision: 1}
}

// Current returns the active configuration and its revision. The
// returned pointer is shared: treat it as immutable.
func (s *Store) Current() (*Config, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg, s.revision
}

// Revision returns the current revision.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// GraphDescriptor returns the active graph descriptor.
func (s *Store) GraphDescriptor() graph.Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Graph
}

// Replace commits a new configuration, bumps the revision and notifies
// subscribers. Only the dispatcher calls this, after validation.
func (s *Store) Replace(cfg *Config) uint64 {
	s.mu.Lock()
	s.cfg = cfg
	s.revision++
	revision := s.revision
	subscribers := make([]chan Update, len(s.subscribers))
	copy(subscribers, s.subscribers)
	s.mu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- Update{Revision: revision, Config: cfg}:
		default:
			// Subscriber is behind; it will catch up on the next read.
		}
	}
	return revision
}

// ReplaceGraph commits a configuration identical to the current one
// except for the graph descriptor.
func (s *Store) ReplaceGraph(desc graph.Descriptor) uint64 {
	s.mu.RLock()
	next := *s.cfg
	s.mu.RUnlock()

	next.Graph = desc
	return s.Replace(&next)
}

// OnChange subscribes to configuration commits. The channel is buffered;
// a slow subscriber misses intermediate revisions, never blocks a
// commit.
func (s *Store) OnChange() <-chan Update {
	ch := make(chan Update, 1)

	s.mu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.mu.Unlock()
	return ch
}
