// Package storage holds attachment bytes. Records live in the database;
// a blob and its record are tied together only by the storage key.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrInvalidKey   = errors.New("invalid storage key")
)

type BlobInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

type BlobStore interface {
	// Put stores r under key. On error, including context cancellation,
	// nothing remains stored under key.
	Put(ctx context.Context, key string, r io.Reader, contentType string) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete returns ErrBlobNotFound when nothing is stored under key.
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]BlobInfo, error)
	Ping(ctx context.Context) error
}

// ValidateKey rejects keys that could escape the store's namespace.
func ValidateKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// contextReader stops a copy as soon as ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	return io.Copy(dst, contextReader{ctx: ctx, r: src})
}
