// Package remote defines the store a local tree is synced into. Paths given
// to a Transport are slash separated and relative to the transport's root.
package remote

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"time"
)

type Transport interface {
	// EnsureDir creates every missing segment of dir. Existing
	// directories are not an error.
	EnsureDir(ctx context.Context, dir string) error

	// Upload creates the parent directories of path and writes r to it,
	// replacing any existing file.
	Upload(ctx context.Context, r io.Reader, path string) error

	// Delete removes the file at path. A missing file yields an error
	// for which IsNotFound is true.
	Delete(ctx context.Context, path string) error

	List(ctx context.Context, dir string) ([]Entry, error)

	// Download opens the file at path. A missing file yields an error for
	// which IsNotFound is true.
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	Close() error
}

type Entry struct {
	Name    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

func IsNotFound(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// NotFound wraps err so that IsNotFound reports true for it.
func NotFound(op, path string, err error) error {
	return &fs.PathError{
		Op:   op,
		Path: path,
		Err:  &notFoundError{err},
	}
}

type notFoundError struct {
	cause error
}

func (e *notFoundError) Error() string {
	if e.cause == nil {
		return fs.ErrNotExist.Error()
	}
	return e.cause.Error()
}

func (e *notFoundError) Is(target error) bool {
	return target == fs.ErrNotExist
}

func (e *notFoundError) Unwrap() error {
	return e.cause
}
