// Package badgerstore keeps transition tables in an embedded BadgerDB
// database. Each model lives under its own key prefix; a word's edge list is
// stored as a single msgpack-encoded value so its order survives the round
// trip.
//
// A prefix is the uvarint length of the namespace name followed by the name,
// so no namespace's key space can contain another's whatever the names hold.
package badgerstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/MrWong99/verona/pkg/markov"
)

// Compile-time interface checks.
var (
	_ markov.Backend = (*DB)(nil)
	_ markov.Store   = (*Store)(nil)
)

// Options configures [Open].
type Options struct {
	// Dir is the directory for BadgerDB data files. Required unless InMemory.
	Dir string

	// InMemory runs BadgerDB without touching disk.
	InMemory bool

	// Logger receives badger's own log output. Nil routes warnings and
	// errors to slog and drops the rest.
	Logger badger.Logger
}

// DB is a [markov.Backend] over one BadgerDB instance.
type DB struct {
	db *badger.DB

	// loadMu serialises Store.Load: DropPrefix blocks every write to the
	// database while it runs, so concurrent loads would fail with
	// badger.ErrBlockedWrites.
	loadMu sync.Mutex
}

// Open opens (or creates) the database described by opts.
func Open(opts Options) (*DB, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("badgerstore: Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithDir("").WithValueDir("").WithInMemory(true)
	}
	if opts.Logger != nil {
		dbOpts = dbOpts.WithLogger(opts.Logger)
	} else {
		dbOpts = dbOpts.WithLogger(slogLogger{})
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open: %w", err)
	}
	return &DB{db: db}, nil
}

// Namespace implements [markov.Backend.Namespace].
func (d *DB) Namespace(name string) markov.Store {
	prefix := binary.AppendUvarint(nil, uint64(len(name)))
	return &Store{owner: d, prefix: append(prefix, name...)}
}

// Close implements [markov.Backend.Close].
func (d *DB) Close() error {
	return d.db.Close()
}

// Store is the [markov.Store] for one namespace of a [DB].
type Store struct {
	owner  *DB
	prefix []byte
}

func (s *Store) key(word string) []byte {
	k := make([]byte, 0, len(s.prefix)+len(word))
	k = append(k, s.prefix...)
	return append(k, word...)
}

// Edges implements [markov.Store.Edges].
func (s *Store) Edges(ctx context.Context, word string) ([]markov.Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var edges []markov.Edge
	err := s.owner.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(word))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &edges)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, markov.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badgerstore: get %q: %w", word, err)
	}
	return edges, nil
}

// Load implements [markov.Store.Load]. Existing data under the namespace is
// dropped first. Loads into namespaces of the same [DB] run one at a time.
func (s *Store) Load(ctx context.Context, entries []markov.Entry) error {
	s.owner.loadMu.Lock()
	defer s.owner.loadMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.owner.db.DropPrefix(s.prefix); err != nil {
		return fmt.Errorf("badgerstore: drop prefix: %w", err)
	}

	wb := s.owner.db.NewWriteBatch()
	defer wb.Cancel()
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		val, err := msgpack.Marshal(e.Edges)
		if err != nil {
			return fmt.Errorf("badgerstore: encode %q: %w", e.Word, err)
		}
		if err := wb.Set(s.key(e.Word), val); err != nil {
			return fmt.Errorf("badgerstore: set %q: %w", e.Word, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("badgerstore: flush: %w", err)
	}
	return nil
}

// Close implements [markov.Store.Close]. The owning [DB] closes the database.
func (s *Store) Close() error { return nil }

// slogLogger forwards badger warnings and errors to slog.
type slogLogger struct{}

func (slogLogger) Errorf(f string, v ...any) {
	slog.Error("badger: " + fmt.Sprintf(f, v...))
}

func (slogLogger) Warningf(f string, v ...any) {
	slog.Warn("badger: " + fmt.Sprintf(f, v...))
}

func (slogLogger) Infof(string, ...any)  {}
func (slogLogger) Debugf(string, ...any) {}
