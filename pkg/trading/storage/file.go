package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// lockRetry is how often a blocked FileStore retries the file lock
const lockRetry = 10 * time.Millisecond

// FileStore is a MemoryStore whose tables are written to a JSON file on
// every commit. The file is replaced atomically.
//
// Every read and transaction holds a lock on path+".lock" and reloads the
// file first, so several processes can share one store. Transactions take
// the lock exclusively.
type FileStore struct {
	*MemoryStore
	path string
	lock *flock.Flock
}

// NewFileStore opens or creates a file-backed store at path
func NewFileStore(path string) (*FileStore, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	fs := &FileStore{
		MemoryStore: NewMemoryStore(),
		path:        path,
		lock:        flock.New(path + ".lock"),
	}

	// Fail fast on a corrupt file
	release, err := fs.sync(context.Background(), false)
	if err != nil {
		return nil, err
	}
	release()

	fs.persist = fs.write
	fs.MemoryStore.sync = fs.sync
	return fs, nil
}

// Path returns the backing file
func (s *FileStore) Path() string {
	return s.path
}

// sync locks the lock file and reloads the tables from disk
func (s *FileStore) sync(ctx context.Context, exclusive bool) (func(), error) {
	var (
		locked bool
		err    error
	)
	if exclusive {
		locked, err = s.lock.TryLockContext(ctx, lockRetry)
	} else {
		locked, err = s.lock.TryRLockContext(ctx, lockRetry)
	}
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", s.lock.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("lock %s: not acquired", s.lock.Path())
	}
	release := func() { _ = s.lock.Unlock() }

	st, err := s.load()
	if err != nil {
		release()
		return nil, err
	}
	s.data = st
	return release, nil
}

// load decodes the backing file. A missing file is an empty store.
func (s *FileStore) load() (*state, error) {
	st := newState()
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return st, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.path, err)
	}
	st.init()
	return st, nil
}

func (s *FileStore) write(st *state) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}

	// Write to temp file first, then rename (atomic)
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}

	return os.Rename(tmpPath, s.path)
}

// DefaultPath returns the default store file under the user's home
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(homeDir, ".signaldesk", "data", "store.json"), nil
}
