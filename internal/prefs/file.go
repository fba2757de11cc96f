/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// FileStore keeps every player's duration in one JSON document, rewritten
// atomically on each change.
type FileStore struct {
	fs   afero.Fs
	path string

	mu sync.Mutex
}

func NewFileStore(fs afero.Fs, path string) *FileStore {
	return &FileStore{
		fs:   fs,
		path: path,
	}
}

func (s *FileStore) readLocked() (map[string]int, error) {
	values := make(map[string]int)

	data, err := afero.ReadFile(s.fs, s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return values, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}

	if len(data) == 0 {
		return values, nil
	}

	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse preferences: %w", err)
	}

	return values, nil
}

func (s *FileStore) Duration(_ context.Context, player string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.readLocked()
	if err != nil {
		return 0, err
	}

	v, ok := values[player]
	if !ok {
		return 0, ErrNotFound
	}

	return v, nil
}

func (s *FileStore) SetDuration(_ context.Context, player string, seconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.readLocked()
	if err != nil {
		return err
	}
	values[player] = seconds

	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create preferences directory: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}

	if err := s.fs.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace preferences: %w", err)
	}

	return nil
}

func (s *FileStore) Close() error { return nil }
