package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/verona/internal/scene"
)

// Schema is the SQL DDL for the scene_state table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS scene_state (
    scene_id      TEXT PRIMARY KEY,
    on_stage      TEXT[] NOT NULL DEFAULT '{}',
    lines_since   INTEGER NOT NULL DEFAULT 0,
    last_sentence TEXT,
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] keeping one row per scene in PostgreSQL, so that
// several bots can share a database.
type PostgresStore struct {
	db      DB
	sceneID string
}

// NewPostgresStore creates a store for sceneID over db. The caller is
// responsible for calling [PostgresStore.Migrate] to ensure the schema exists.
func NewPostgresStore(db DB, sceneID string) *PostgresStore {
	return &PostgresStore{db: db, sceneID: sceneID}
}

// OpenPostgres connects a pool to dsn, verifies it with a ping, and migrates
// the schema. The returned pool must be closed by the caller.
func OpenPostgres(ctx context.Context, dsn, sceneID string) (*PostgresStore, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("state: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("state: ping postgres: %w", err)
	}
	s := NewPostgresStore(pool, sceneID)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool, nil
}

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("state: migrate: %w", err)
	}
	return nil
}

// Load implements [Store].
func (s *PostgresStore) Load(ctx context.Context) (scene.Snapshot, bool, error) {
	const query = `
		SELECT on_stage, lines_since, last_sentence
		FROM scene_state
		WHERE scene_id = $1`

	var snap scene.Snapshot
	err := s.db.QueryRow(ctx, query, s.sceneID).Scan(&snap.OnStage, &snap.LinesSinceDirection, &snap.LastSentence)
	if errors.Is(err, pgx.ErrNoRows) {
		return scene.Snapshot{}, false, nil
	}
	if err != nil {
		return scene.Snapshot{}, false, fmt.Errorf("state: load scene %q: %w", s.sceneID, err)
	}
	return snap, true, nil
}

// Save implements [Store].
func (s *PostgresStore) Save(ctx context.Context, snap scene.Snapshot) error {
	const query = `
		INSERT INTO scene_state (scene_id, on_stage, lines_since, last_sentence, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (scene_id) DO UPDATE SET
			on_stage      = EXCLUDED.on_stage,
			lines_since   = EXCLUDED.lines_since,
			last_sentence = EXCLUDED.last_sentence,
			updated_at    = now()`

	onStage := snap.OnStage
	if onStage == nil {
		onStage = []string{}
	}
	if _, err := s.db.Exec(ctx, query, s.sceneID, onStage, snap.LinesSinceDirection, snap.LastSentence); err != nil {
		return fmt.Errorf("state: save scene %q: %w", s.sceneID, err)
	}
	return nil
}

// Ping reports whether the database is reachable, for readiness checks.
func (s *PostgresStore) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("state: ping: %w", err)
	}
	return nil
}
