package storage

import (
	"sync"

	"TrafficFeeds/internal/domain"
	"TrafficFeeds/internal/ports"
)

// MemorySnapshotStore holds the latest published snapshot. Nothing is persisted.
type MemorySnapshotStore struct {
	mu     sync.RWMutex
	latest domain.Snapshot
	ok     bool
}

var _ ports.SnapshotStore = (*MemorySnapshotStore)(nil)

// NewMemorySnapshotStore builds an empty store.
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{}
}

// Publish replaces the held snapshot unless it is older than the one already held.
func (s *MemorySnapshotStore) Publish(snap domain.Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ok && snap.Generation < s.latest.Generation {
		return false
	}
	s.latest = snap
	s.ok = true
	return true
}

// Latest returns the held snapshot, or false before the first publish.
func (s *MemorySnapshotStore) Latest() (domain.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.ok
}
