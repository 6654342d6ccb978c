// Package file implements codeact.Checkpointer as one JSON document per
// checkpoint under <dir>/<session>/<id>.json.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	codeact "github.com/nevindra/codeact"
)

// Store is a directory of checkpoints.
type Store struct {
	dir string
}

var _ codeact.Checkpointer = (*Store)(nil)

// New returns a Store rooted at dir. The directory is created on first Save.
func New(dir string) *Store { return &Store{dir: dir} }

func (s *Store) sessionDir(session string) (string, error) {
	if session == "" || session == "." || session == ".." || strings.ContainsAny(session, `/\`) {
		return "", fmt.Errorf("file: invalid session name %q", session)
	}
	return filepath.Join(s.dir, session), nil
}

// Save writes cp atomically: a temp file is renamed into place.
func (s *Store) Save(_ context.Context, cp codeact.Checkpoint) error {
	dir, err := s.sessionDir(cp.Session)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("file: create dir: %w", err)
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("file: encode checkpoint: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("file: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("file: write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file: write checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, cp.ID+".json")); err != nil {
		return fmt.Errorf("file: rename checkpoint: %w", err)
	}
	return nil
}

// LoadLatest reads the checkpoint whose file name sorts last.
func (s *Store) LoadLatest(_ context.Context, session string) (codeact.Checkpoint, error) {
	dir, err := s.sessionDir(session)
	if err != nil {
		return codeact.Checkpoint{}, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return codeact.Checkpoint{}, codeact.ErrNoCheckpoint
	}
	if err != nil {
		return codeact.Checkpoint{}, fmt.Errorf("file: read dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return codeact.Checkpoint{}, codeact.ErrNoCheckpoint
	}
	slices.Sort(names)
	data, err := os.ReadFile(filepath.Join(dir, names[len(names)-1]))
	if err != nil {
		return codeact.Checkpoint{}, fmt.Errorf("file: read checkpoint: %w", err)
	}
	var cp codeact.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return codeact.Checkpoint{}, fmt.Errorf("file: decode %s: %w", names[len(names)-1], err)
	}
	return cp, nil
}

// Clear removes the session directory.
func (s *Store) Clear(_ context.Context, session string) error {
	dir, err := s.sessionDir(session)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("file: clear: %w", err)
	}
	return nil
}
