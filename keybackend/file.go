package keybackend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/flowstate/flowcloud"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// lockRetryDelay is how often Append retries a lock held by another process.
const lockRetryDelay = 10 * time.Millisecond

// FileStore persists access keys in a JSON file of the form
//
//	{
//	  "docs/report.pdf": [
//	    {"token": "9f86d081884c7d659a2f", "issued_at": "2024-05-01T10:00:00Z"}
//	  ]
//	}
//
// Entries written as bare token strings are also accepted.
//
// Appends hold an exclusive lock on a sibling "<file>.lock" for the whole
// read-modify-write, so the server and the admin CLI can append to the same
// file. The new content is written through a temp file in the same
// directory and renamed into place; readers never see a torn file.
type FileStore struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

// NewFileStore creates a file-backed key store. The file is created on the
// first Append; its directory must exist.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, lock: flock.New(LockPath(path))}
}

// LockPath returns the lock file guarding appends to a keys file.
func LockPath(path string) string {
	return path + ".lock"
}

// Path returns the keys file location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Keys(ctx context.Context, path string) ([]flowcloud.AccessKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := LoadKeysFromFile(s.path)
	if err != nil {
		return nil, err
	}

	return all[path], nil
}

func (s *FileStore) Append(ctx context.Context, path string, key flowcloud.AccessKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock keys file: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock keys file: %s is held by another process", LockPath(s.path))
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			slog.Warn("failed to unlock keys file", "path", s.path, "err", err)
		}
	}()

	all, err := LoadKeysFromFile(s.path)
	if err != nil {
		return err
	}

	all[path] = append(all[path], key)

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("encode keys file: %w", err)
	}

	return writeFileAtomic(s.path, append(data, '\n'))
}

// LoadKeysFromFile reads every path's keys from a keys file.
// A missing or empty file yields an empty map.
func LoadKeysFromFile(path string) (map[string][]flowcloud.AccessKey, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path is from trusted config file
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string][]flowcloud.AccessKey), nil
		}
		return nil, fmt.Errorf("read keys file: %w", err)
	}

	keys := make(map[string][]flowcloud.AccessKey)
	if len(bytes.TrimSpace(data)) == 0 {
		return keys, nil
	}

	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("parse keys file %s: %w: %w", path, ErrCorruptFile, err)
	}
	if keys == nil {
		keys = make(map[string][]flowcloud.AccessKey)
	}

	return keys, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".t%s", uuid.New().String()))

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600) //nolint:gosec // tmp is derived from trusted config path
	if err != nil {
		return fmt.Errorf("create temp keys file: %w", err)
	}

	success := false
	defer func() {
		if !success {
			if rmErr := os.Remove(tmp); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				slog.Warn("failed to remove tmp keys file", "err", rmErr)
			}
		}
	}()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write temp keys file: %w", err)
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync temp keys file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp keys file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace keys file: %w", err)
	}

	success = true
	return nil
}
