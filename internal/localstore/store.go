package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// CurrentVersion is the schema version written with every record.
const CurrentVersion = 1

// ErrNotFound is returned when no record exists under a key.
var ErrNotFound = errors.New("localstore: key not found")

// envelope wraps the stored payload with a schema version so future
// field additions do not require ad hoc migration of raw JSON.
type envelope struct {
	Version int             `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// Store is a durable JSON key-value store, one file per key under a
// directory. It is the server-side analog of the browser's durable
// key-value storage: writes are last-write-wins across processes.
type Store struct {
	dir string
	mu  sync.Mutex
}

// New creates the backing directory if needed and returns a store.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Get unmarshals the record under key into v.
// Legacy records written without a version envelope are accepted as-is.
func (s *Store) Get(key string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read %q: %w", key, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Version > 0 {
		if env.Version > CurrentVersion {
			return fmt.Errorf("record %q has unsupported version %d", key, env.Version)
		}
		return json.Unmarshal(env.Data, v)
	}

	// Pre-versioning format: the payload was stored bare.
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return nil
}

// Set persists v under key. The full record is replaced atomically so a
// crash mid-write never leaves a truncated file behind.
func (s *Store) Set(key string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}
	raw, err := json.Marshal(envelope{Version: CurrentVersion, Data: data})
	if err != nil {
		return fmt.Errorf("failed to encode envelope for %q: %w", key, err)
	}

	path := s.path(key)
	tmp, err := os.CreateTemp(s.dir, key+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %q: %w", key, err)
	}
	return nil
}

// Delete removes the record under key. Missing keys are a no-op.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

func (s *Store) path(key string) string {
	// Keys are fixed identifiers like "cart"; sanitize anyway so a bad
	// key cannot escape the store directory.
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, key)
	return filepath.Join(s.dir, safe+".json")
}
