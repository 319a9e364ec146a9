package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/MrWong99/verona/internal/scene"
)

// FileStore keeps the snapshot in a JSON file:
//
//	{"onStage":["Romeo","Juliet"],"linesSinceLastStageDirection":2,"lastSentence":"..."}
//
// Writes go to a temporary file in the same directory which then replaces the
// target, so a crash mid-write leaves the previous snapshot intact.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store for the file at path. The file need not exist.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file path.
func (s *FileStore) Path() string { return s.path }

// Load implements [Store]. A missing file and a malformed one both report
// ok=false; the latter is logged.
func (s *FileStore) Load(context.Context) (scene.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return scene.Snapshot{}, false, nil
	}
	if err != nil {
		return scene.Snapshot{}, false, fmt.Errorf("state: read %q: %w", s.path, err)
	}

	var snap scene.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("state: saved scene is malformed, starting fresh", "path", s.path, "err", err)
		return scene.Snapshot{}, false, nil
	}
	return snap, true, nil
}

// Save implements [Store].
func (s *FileStore) Save(_ context.Context, snap scene.Snapshot) error {
	if snap.OnStage == nil {
		snap.OnStage = []string{}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("state: encode: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("state: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("state: write %q: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("state: close %q: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("state: replace %q: %w", s.path, err)
	}
	return nil
}
