package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrCacheMiss indicates that no session has been persisted yet.
// It is the normal empty-cache condition, not a failure.
var ErrCacheMiss = errors.New("session cache miss")

// Store persists a session between runs.
type Store interface {
	// Load returns the persisted session, ErrCacheMiss when none exists, or a
	// *StoreError when the backing data cannot be read or decoded.
	Load(ctx context.Context) (*Session, error)

	// Save persists the session, replacing any previous one.
	Save(ctx context.Context, s *Session) error
}

// StoreError describes a failed read or write of the session cache.
type StoreError struct {
	Op       string // "load" or "save"
	Location string
	Err      error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("session store %s %s: %v", e.Op, e.Location, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// FileStore keeps the session as an indented JSON array on disk.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the file at path.
func NewFileStore(path string) *FileStore {
	if path == "" {
		panic("session file path cannot be empty")
	}
	return &FileStore{path: path}
}

// Path returns the backing file location.
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the session file.
func (f *FileStore) Load(_ context.Context) (*Session, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cacheMisses.WithLabelValues(backendFile).Inc()
			return nil, ErrCacheMiss
		}
		cacheErrors.WithLabelValues(backendFile, "load").Inc()
		return nil, &StoreError{Op: "load", Location: f.path, Err: err}
	}

	s, err := decode(data)
	if err != nil {
		cacheErrors.WithLabelValues(backendFile, "load").Inc()
		return nil, &StoreError{Op: "load", Location: f.path, Err: err}
	}

	cacheHits.WithLabelValues(backendFile).Inc()
	return s, nil
}

// Save writes the session file atomically with owner-only permissions.
func (f *FileStore) Save(_ context.Context, s *Session) error {
	if s == nil {
		return &StoreError{Op: "save", Location: f.path, Err: errors.New("session cannot be nil")}
	}

	data, err := encode(s)
	if err != nil {
		cacheErrors.WithLabelValues(backendFile, "save").Inc()
		return &StoreError{Op: "save", Location: f.path, Err: err}
	}

	if err := writeFileAtomic(f.path, data); err != nil {
		cacheErrors.WithLabelValues(backendFile, "save").Inc()
		return &StoreError{Op: "save", Location: f.path, Err: err}
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func encode(s *Session) ([]byte, error) {
	cookies := s.Cookies
	if cookies == nil {
		cookies = []Cookie{}
	}
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*Session, error) {
	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	for i, c := range cookies {
		if c.Name == "" {
			return nil, fmt.Errorf("cookie %d has no name", i)
		}
	}
	return New(cookies...), nil
}
