package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var (
	// ErrNoState means nothing has been persisted yet.
	ErrNoState = errors.New("no persisted session state")

	// ErrCorruptState means a state file exists but cannot be used.
	ErrCorruptState = errors.New("persisted session state is unreadable")
)

// StateStore persists the single storage-state slot.
type StateStore interface {
	// Load returns the persisted state, ErrNoState, or an error wrapping
	// ErrCorruptState.
	Load() ([]byte, error)

	// Save replaces the persisted state.
	Save(state []byte) error

	// Location describes where state lives, for logs.
	Location() string
}

// FileStateStore keeps storage state in a JSON file.
type FileStateStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStateStore creates a store backed by path.
func NewFileStateStore(path string) *FileStateStore {
	return &FileStateStore{path: path}
}

// Load reads the state file. The blob is otherwise opaque; only its
// JSON shape is checked.
func (s *FileStateStore) Load() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoState
		}
		return nil, fmt.Errorf("%w: %w", ErrCorruptState, err)
	}

	var shape map[string]json.RawMessage
	if err := json.Unmarshal(data, &shape); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptState, s.path, err)
	}

	return data, nil
}

// Save overwrites the state file atomically.
func (s *FileStateStore) Save(state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Create directory if it doesn't exist
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, state, 0600); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to write temp state file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp state file: %w", err)
	}

	return nil
}

// Location returns the file path.
func (s *FileStateStore) Location() string {
	return s.path
}
