package markov

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// ErrNotFound is returned by [Store.Edges] when the word has no outgoing
// edges.
var ErrNotFound = errors.New("markov: word not found")

// Edge is one weighted transition out of a word.
type Edge struct {
	Word  string `msgpack:"w"`
	Count int64  `msgpack:"c"`
}

// Entry is the complete, ordered edge list of one word.
type Entry struct {
	Word  string
	Edges []Edge
}

// Store persists the transition table of a single model. Edge order must be
// preserved exactly as written: sampling walks edges in stored order.
//
// Implementations must be safe for concurrent reads once Load has returned.
type Store interface {
	// Edges returns the outgoing edges of word, or [ErrNotFound].
	Edges(ctx context.Context, word string) ([]Edge, error)

	// Load replaces the whole table with entries.
	Load(ctx context.Context, entries []Entry) error

	// Close releases resources held by this store.
	Close() error
}

// Backend hands out isolated stores, one per model.
type Backend interface {
	// Namespace returns the store for the model called name. Calling it
	// twice with the same name returns stores over the same data.
	Namespace(name string) Store

	// Close releases the backend and all of its namespaces.
	Close() error
}

// Compile-time interface checks.
var (
	_ Store   = (*MemStore)(nil)
	_ Backend = (*MemBackend)(nil)
)

// MemStore is an in-memory [Store]. The zero value is ready to use.
type MemStore struct {
	mu    sync.RWMutex
	edges map[string][]Edge
}

// NewMemStore returns an empty [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{edges: make(map[string][]Edge)}
}

// Edges implements [Store.Edges].
func (s *MemStore) Edges(_ context.Context, word string) ([]Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.edges[word]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// Load implements [Store.Load].
func (s *MemStore) Load(_ context.Context, entries []Entry) error {
	m := make(map[string][]Edge, len(entries))
	for _, e := range entries {
		m[e.Word] = slices.Clone(e.Edges)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges = m
	return nil
}

// Close implements [Store.Close]. It is a no-op.
func (s *MemStore) Close() error { return nil }

// MemBackend keeps every namespace in process memory.
type MemBackend struct {
	mu     sync.Mutex
	stores map[string]*MemStore
}

// NewMemBackend returns an empty [MemBackend].
func NewMemBackend() *MemBackend {
	return &MemBackend{stores: make(map[string]*MemStore)}
}

// Namespace implements [Backend.Namespace].
func (b *MemBackend) Namespace(name string) Store {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.stores[name]
	if !ok {
		s = NewMemStore()
		b.stores[name] = s
	}
	return s
}

// Close implements [Backend.Close].
func (b *MemBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stores = make(map[string]*MemStore)
	return nil
}
