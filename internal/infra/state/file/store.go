// Package file implements the repair-state repository as a single JSON
// document on disk, replaced atomically on every save.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rotatarr/rotatarr/internal/core/domain"
)

// Store persists repair state to a JSON file. A missing or unparsable
// file degrades to empty state: losing cooldown memory only means
// re-testing indexers that were cooling down, never data corruption.
type Store struct {
	path string
	log  *slog.Logger
}

// NewStore creates a file-backed store at the given path.
func NewStore(path string) *Store {
	return &Store{path: path, log: slog.Default()}
}

// Load reads the state document. It never fails: unreadable state is
// logged and treated as empty.
func (s *Store) Load(ctx context.Context) (map[string]domain.RepairState, error) {
	states := make(map[string]domain.RepairState)

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return states, nil
	}
	if err != nil {
		s.log.Warn("Unable to read indexer state, starting empty", "path", s.path, "error", err)
		return states, nil
	}

	if err := json.Unmarshal(data, &states); err != nil {
		s.log.Warn("Indexer state file is unparsable, starting empty", "path", s.path, "error", err)
		return make(map[string]domain.RepairState), nil
	}
	return states, nil
}

// Save writes the whole document with atomic replace (temp file + rename)
// so a crash mid-write never leaves a partial record set readable.
func (s *Store) Save(ctx context.Context, states map[string]domain.RepairState) error {
	data, err := json.Marshal(states)
	if err != nil {
		return fmt.Errorf("marshal indexer state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".indexer_state-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
