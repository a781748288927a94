package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"
)

// FSStore stores content as files below a root directory.
type FSStore struct {
	fs     afero.Fs
	root   string
	logger hclog.Logger
}

var _ Store = (*FSStore)(nil)

// NewFSStore returns a store rooted at root on fsys. Pass afero.NewOsFs() for
// the real filesystem.
func NewFSStore(fsys afero.Fs, root string, logger hclog.Logger) (*FSStore, error) {
	if fsys == nil {
		return nil, fmt.Errorf("filesystem is required")
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if err := fsys.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("error creating content root %q: %w", root, err)
	}

	return &FSStore{
		fs:     fsys,
		root:   root,
		logger: logger.Named("fs-store"),
	}, nil
}

// Name returns the backend name.
func (s *FSStore) Name() string {
	return "local"
}

// Fs exposes the underlying filesystem.
func (s *FSStore) Fs() afero.Fs {
	return s.fs
}

// Path returns the filesystem path for key.
func (s *FSStore) Path(key string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(k)), nil
}

// Put writes the content to a temporary file and renames it into place so a
// reader never observes partial content.
func (s *FSStore) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	p, err := s.Path(key)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	dir := filepath.Dir(p)
	if err := s.fs.MkdirAll(dir, 0o750); err != nil {
		return 0, fmt.Errorf("error creating directory %q: %w", dir, err)
	}

	tmp := filepath.Join(dir, ".upload-"+uuid.NewString())
	f, err := s.fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return 0, fmt.Errorf("error creating file: %w", err)
	}

	n, err := io.Copy(f, r)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		if rmErr := s.fs.Remove(tmp); rmErr != nil {
			s.logger.Warn("error removing partial upload", "path", tmp, "error", rmErr)
		}
		return 0, fmt.Errorf("error writing content: %w", err)
	}

	if err := s.fs.Rename(tmp, p); err != nil {
		_ = s.fs.Remove(tmp)
		return 0, fmt.Errorf("error moving content into place: %w", err)
	}

	s.logger.Debug("stored content", "key", key, "bytes", n)
	return n, nil
}

// Open opens the content for reading.
func (s *FSStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := s.Path(key)
	if err != nil {
		return nil, err
	}

	f, err := s.fs.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("error opening content: %w", err)
	}
	return f, nil
}

// Delete removes the content file.
func (s *FSStore) Delete(ctx context.Context, key string) error {
	p, err := s.Path(key)
	if err != nil {
		return err
	}

	if err := s.fs.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("error removing content: %w", err)
	}
	return nil
}
