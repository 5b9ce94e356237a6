// Package blobstore moves chunk files into durable storage and reads them back
// by handle. Handles are opaque strings prefixed with the channel scheme.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Handle is a durable reference to one stored object ("fs:..." or "tg:...").
type Handle string

func (h Handle) Scheme() string {
	s, _, _ := strings.Cut(string(h), ":")
	return s
}

func (h Handle) key() string {
	_, k, _ := strings.Cut(string(h), ":")
	return k
}

// Channel is a size-constrained storage backend.
type Channel interface {
	Name() string
	// MaxObjectSize is the largest object the channel accepts; 0 means unlimited.
	MaxObjectSize() int64
	Upload(ctx context.Context, name, path string) (Handle, error)
	// Open reads length bytes starting at offset. A negative length reads to the end.
	Open(ctx context.Context, h Handle, offset, length int64) (io.ReadCloser, error)
	Stat(ctx context.Context, h Handle) (int64, error)
	Delete(ctx context.Context, h Handle) error
	// LocalPath returns a filesystem path for the object when the channel keeps one.
	LocalPath(h Handle) (string, bool)
}

func wrongScheme(want string, h Handle) error {
	return fmt.Errorf("blobstore: handle %q is not a %s handle", h, want)
}

type readCloser struct {
	io.Reader
	io.Closer
}
