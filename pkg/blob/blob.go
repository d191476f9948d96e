// Package blob stores the raw bytes of uploaded files.
package blob

import (
	"context"
	"io"
	"path"
	"strings"
)

// Store keeps upload files by key.
type Store interface {
	Put(ctx context.Context, key string, data io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scheme() string
}

// Key builds the storage key of an upload file.
func Key(uploadID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return path.Join("uploads", uploadID+ext)
}
