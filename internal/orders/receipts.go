package orders

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// DiskReceiptStore keeps receipt files in a local directory.
type DiskReceiptStore struct {
	dir string
}

// NewDiskReceiptStore creates dir if needed.
func NewDiskReceiptStore(dir string) (*DiskReceiptStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("orders: receipt dir: %w", err)
	}
	return &DiskReceiptStore{dir: dir}, nil
}

// Save writes body under filename.
func (s *DiskReceiptStore) Save(ctx context.Context, filename string, body io.Reader) error {
	path, err := s.path(filename)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}

// Remove deletes filename; a missing file is not an error.
func (s *DiskReceiptStore) Remove(ctx context.Context, filename string) error {
	path, err := s.path(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Open returns the stored file.
func (s *DiskReceiptStore) Open(ctx context.Context, filename string) (io.ReadCloser, error) {
	path, err := s.path(filename)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("receipt %s: %w", filename, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *DiskReceiptStore) path(filename string) (string, error) {
	if filename == "" || filename == "." || filename == ".." || filepath.Base(filename) != filename {
		return "", fmt.Errorf("receipt filename %q: %w", filename, ErrValidation)
	}
	return filepath.Join(s.dir, filename), nil
}
