// Package blob stores PDF payloads on the filesystem, one file per
// paper ID.
package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Store provides thread-safe access to the PDF directory. Writes are
// serialized by an exclusive lock; reads take a shared lock so a reader
// never observes a partial write. Two tasks must not Save the same ID
// concurrently; the engine's single-flight discipline guarantees that.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// NewStore creates a Store rooted at dir, creating the directory if
// needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the root directory of the store.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(id uuid.UUID) string {
	return filepath.Join(s.dir, id.String()+".pdf")
}

// Save durably writes the blob for the given ID, overwriting any prior
// content. The write goes to a temp file first and is renamed into
// place so a crash cannot leave a truncated blob behind.
func (s *Store) Save(id uuid.UUID, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, id.String()+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp blob: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing blob %s: %w", id, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing blob %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing blob %s: %w", id, err)
	}

	if err := os.Rename(tmpName, s.path(id)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming blob %s: %w", id, err)
	}
	return nil
}

// Read returns the blob for the given ID, or (nil, nil) when no blob
// exists. A missing blob is a normal condition: the PDF simply has not
// been downloaded yet.
func (s *Store) Read(id uuid.UUID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading blob %s: %w", id, err)
	}
	return data, nil
}

// Delete removes the blob for the given ID, reporting whether one
// existed. Best-effort: a missing blob is not an error.
func (s *Store) Delete(id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(id))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("removing blob %s: %w", id, err)
	}
	return true, nil
}

// Exists reports whether a blob is present for the given ID.
func (s *Store) Exists(id uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(s.path(id))
	return err == nil
}

// Size returns the blob's size in bytes and whether it exists.
func (s *Store) Size(id uuid.UUID) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, err := os.Stat(s.path(id))
	if err != nil {
		return 0, false
	}
	return info.Size(), true
}

// SHA256Hex returns the lowercase hex SHA-256 digest of data. The same
// primitive tags uploads and verifies downloads.
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
