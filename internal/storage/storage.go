// Package storage keeps uploaded document files.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidKey is returned for keys escaping the store root.
var ErrInvalidKey = errors.New("storage: invalid key")

// BlobStore stores opaque files under generated keys.
type BlobStore interface {
	Put(ctx context.Context, ownerID uint, ext string, r io.Reader) (key string, size int64, err error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// FS is a BlobStore on the local filesystem. Keys look like "<ownerID>/<uuid><ext>".
type FS struct {
	root string
}

// NewFS creates the root directory if needed.
func NewFS(root string) (*FS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &FS{root: root}, nil
}

func (s *FS) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.root, clean), nil
}

// Put writes r to a new key. A partial file is removed when the copy fails.
func (s *FS) Put(ctx context.Context, ownerID uint, ext string, r io.Reader) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	dir := strconv.FormatUint(uint64(ownerID), 10)
	if err := os.MkdirAll(filepath.Join(s.root, dir), 0o755); err != nil {
		return "", 0, err
	}
	key := dir + "/" + uuid.NewString() + strings.ToLower(ext)
	full, err := s.path(key)
	if err != nil {
		return "", 0, err
	}
	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(full)
		return "", 0, err
	}
	return key, n, nil
}

func (s *FS) Open(_ context.Context, key string) (io.ReadCloser, error) {
	full, err := s.path(key)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

// Delete removes key; a missing file is not an error.
func (s *FS) Delete(_ context.Context, key string) error {
	full, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
