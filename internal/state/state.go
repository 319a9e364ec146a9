// Package state persists the scene between runs.
//
// A [Store] holds exactly one [scene.Snapshot]. The driver loads it once at
// startup and saves it after every emitted line. Missing or unreadable state
// is never fatal: Load reports ok=false and the scene starts fresh.
package state

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/verona/internal/scene"
)

// Store loads and saves the persisted scene.
// Implementations must be safe for concurrent use.
type Store interface {
	// Load returns the saved snapshot. ok is false when nothing usable has
	// been saved yet; a non-nil error means the store itself is unreachable.
	Load(ctx context.Context) (snap scene.Snapshot, ok bool, err error)

	// Save replaces the saved snapshot.
	Save(ctx context.Context, snap scene.Snapshot) error
}

// Compile-time interface checks.
var (
	_ Store = (*MemStore)(nil)
	_ Store = (*FileStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// MemStore keeps the snapshot in process memory. It is used when no
// persistence is configured.
type MemStore struct {
	mu   sync.Mutex
	snap scene.Snapshot
	ok   bool
}

// Load implements [Store].
func (m *MemStore) Load(context.Context) (scene.Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.snap), m.ok, nil
}

// Save implements [Store].
func (m *MemStore) Save(_ context.Context, snap scene.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap, m.ok = clone(snap), true
	return nil
}

func clone(s scene.Snapshot) scene.Snapshot {
	s.OnStage = slices.Clone(s.OnStage)
	if s.LastSentence != nil {
		last := *s.LastSentence
		s.LastSentence = &last
	}
	return s
}
