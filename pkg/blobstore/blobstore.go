// Package blobstore stores the binary content of case documents. The local
// backend writes to a filesystem through afero; the s3 backend writes to any
// S3-compatible object store.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/iancoleman/strcase"
)

// ErrNotFound is returned when the requested content does not exist.
var ErrNotFound = errors.New("content not found")

// Store is durable storage for document content.
type Store interface {
	// Put writes r under key and returns the number of bytes written. The
	// content is durable when Put returns without error.
	Put(ctx context.Context, key string, r io.Reader) (int64, error)

	// Open returns a reader for the content under key, or ErrNotFound.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the content under key, or returns ErrNotFound.
	Delete(ctx context.Context, key string) error

	// Name identifies the backend in logs.
	Name() string
}

// NewKey builds the storage key for a new document: dated folders followed
// by the document ID and a normalised form of its name.
func NewKey(id uuid.UUID, name string, now time.Time) string {
	base := id.String()
	if slug := slugify(name); slug != "" {
		base += "-" + slug
	}
	return path.Join("documents", now.Format("2006"), now.Format("01"), base)
}

func slugify(name string) string {
	slug := strcase.ToSnake(strings.TrimSpace(name))
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, slug)
	for strings.Contains(slug, "__") {
		slug = strings.ReplaceAll(slug, "__", "_")
	}
	slug = strings.Trim(slug, "_")
	if len(slug) > 64 {
		slug = strings.TrimRight(slug[:64], "_")
	}
	return slug
}

// cleanKey validates a key and returns it in canonical form.
func cleanKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty content key")
	}
	cleaned := path.Clean("/" + key)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(key, "/") || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid content key %q", key)
	}
	return cleaned, nil
}
