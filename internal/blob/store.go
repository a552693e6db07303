// Package blob provides the content-addressable store backing document bytes.
//
// Keys are opaque strings. The filesystem layout produced by NewKey is an
// implementation detail of this package; callers persist the key and never
// interpret it.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a key has no stored bytes.
var ErrNotFound = errors.New("blob not found")

// Store is the contract the rest of the engine depends on.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	Size(ctx context.Context, key string) (int64, error)
}

// NewKey builds a storage key for a tenant's document. Layout:
// documents/<tenant>/<yyyy>/<mm>/<uuid>.<ext>
func NewKey(tenantID uuid.UUID, ext string) string {
	now := time.Now().UTC()
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	return fmt.Sprintf("documents/%s/%04d/%02d/%s.%s",
		tenantID, now.Year(), int(now.Month()), uuid.New(), ext)
}

// HashBytes returns the hex SHA-256 of data, the content hash stored on
// Document rows.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FSStore stores blobs on the local filesystem under a root directory.
type FSStore struct {
	root string
}

// NewFSStore creates a filesystem store rooted at root, creating it if
// needed.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FSStore{root: root}, nil
}

// path maps a key onto the filesystem, rejecting traversal outside the root.
func (s *FSStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

// Exists reports whether the key has stored bytes.
func (s *FSStore) Exists(ctx context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Read returns the stored bytes for a key.
func (s *FSStore) Read(ctx context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Write stores bytes under a key. The write is staged to a temp file and
// renamed so readers never observe a partial blob.
func (s *FSStore) Write(ctx context.Context, key string, data []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".blob-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, p)
}

// Delete removes the stored bytes for a key. Deleting a missing key is not an
// error.
func (s *FSStore) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Size returns the byte size of a stored blob.
func (s *FSStore) Size(ctx context.Context, key string) (int64, error) {
	p, err := s.path(key)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return info.Size(), nil
}

// WriteTemp materializes bytes into a temp file for subprocess backends that
// take a path. The caller removes the file when done.
func WriteTemp(dir, pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", err
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}
