package store

import (
	"sync/atomic"
	"time"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
)

// Store publishes the current Snapshot. Readers never block: each search
// takes one snapshot and uses it throughout, so a concurrent Replace never
// shows a half-loaded corpus.
type Store struct {
	current  atomic.Pointer[Snapshot]
	loadedAt atomic.Pointer[time.Time]
}

// New returns a store holding an empty snapshot.
func New() *Store {
	s := &Store{}
	s.Replace(nil)
	return s
}

// Snapshot returns the current snapshot.
func (s *Store) Snapshot() *Snapshot { return s.current.Load() }

// Replace swaps in a snapshot of rs and returns it.
func (s *Store) Replace(rs []*fhir.Resource) *Snapshot {
	snap := NewSnapshot(rs)
	now := time.Now().UTC()
	s.current.Store(snap)
	s.loadedAt.Store(&now)
	return snap
}

// LoadedAt reports when the current snapshot was published.
func (s *Store) LoadedAt() time.Time { return *s.loadedAt.Load() }
