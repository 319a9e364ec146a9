package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/verona/pkg/markov"
	"github.com/MrWong99/verona/pkg/markov/badgerstore"
)

// Built-in storage backend names.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// BackendNames lists the storage backends registered by [NewRegistry].
// Used by [Validate] to warn about unrecognised backend names.
var BackendNames = []string{BackendMemory, BackendBadger}

// ErrBackendNotRegistered is returned by [Registry.CreateBackend] when no
// factory has been registered under the requested backend name.
var ErrBackendNotRegistered = errors.New("config: storage backend not registered")

// BackendFactory opens a transition-table backend from its configuration.
type BackendFactory func(StorageConfig) (markov.Backend, error)

// Registry maps storage backend names to their constructor functions. It is
// safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]BackendFactory
}

// NewRegistry returns a [Registry] with the built-in backends registered:
// "memory" (process memory) and "badger" (embedded BadgerDB under
// storage.dir, or in memory when the directory is empty).
func NewRegistry() *Registry {
	r := &Registry{backends: make(map[string]BackendFactory)}
	r.RegisterBackend(BackendMemory, func(StorageConfig) (markov.Backend, error) {
		return markov.NewMemBackend(), nil
	})
	r.RegisterBackend(BackendBadger, func(c StorageConfig) (markov.Backend, error) {
		db, err := badgerstore.Open(badgerstore.Options{Dir: c.Dir, InMemory: c.Dir == ""})
		if err != nil {
			return nil, err
		}
		return db, nil
	})
	return r
}

// RegisterBackend registers a backend factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterBackend(name string, factory BackendFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = factory
}

// CreateBackend instantiates the backend registered under cfg.Backend.
// Returns [ErrBackendNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateBackend(cfg StorageConfig) (markov.Backend, error) {
	r.mu.RLock()
	factory, ok := r.backends[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotRegistered, cfg.Backend)
	}
	b, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: open %s backend: %w", cfg.Backend, err)
	}
	return b, nil
}

// Backends returns the registered backend names, sorted.
func (r *Registry) Backends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for n := range r.backends {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
