package blob

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	skerrors "github.com/skuflow/skuflow/pkg/errors"
)

// Local keeps blobs under a root directory.
type Local struct {
	root string
}

// NewLocal creates the root directory if needed.
func NewLocal(root string) (*Local, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, skerrors.Wrap(err, skerrors.CodeBlob, "failed to resolve blob root")
	}
	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, skerrors.Wrap(err, skerrors.CodeBlob, "failed to create blob root").WithContext("path", absRoot)
	}
	return &Local{root: absRoot}, nil
}

// Scheme returns "file".
func (s *Local) Scheme() string {
	return "file"
}

// Put writes data to key atomically.
func (s *Local) Put(ctx context.Context, key string, data io.Reader) error {
	fullPath, err := s.fullPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return skerrors.Wrap(err, skerrors.CodeBlob, "failed to create directory").WithContext("key", key)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".blob-*")
	if err != nil {
		return skerrors.Wrap(err, skerrors.CodeBlob, "failed to create file").WithContext("key", key)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: data}); err != nil {
		tmp.Close()
		return skerrors.Wrap(err, skerrors.CodeBlob, "failed to write data").WithContext("key", key)
	}
	if err := tmp.Close(); err != nil {
		return skerrors.Wrap(err, skerrors.CodeBlob, "failed to close file").WithContext("key", key)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return skerrors.Wrap(err, skerrors.CodeBlob, "failed to commit file").WithContext("key", key)
	}
	return nil
}

// Get returns a reader for the blob.
func (s *Local) Get(_ context.Context, key string) (io.ReadCloser, error) {
	fullPath, err := s.fullPath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if os.IsNotExist(err) {
		return nil, skerrors.FileNotFound(key)
	}
	if err != nil {
		return nil, skerrors.Wrap(err, skerrors.CodeBlob, "failed to open file").WithContext("key", key)
	}
	return f, nil
}

// Delete removes a blob. Missing blobs are not an error.
func (s *Local) Delete(_ context.Context, key string) error {
	fullPath, err := s.fullPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return skerrors.Wrap(err, skerrors.CodeBlob, "failed to delete file").WithContext("key", key)
	}
	return nil
}

// Exists checks if a blob exists.
func (s *Local) Exists(_ context.Context, key string) (bool, error) {
	fullPath, err := s.fullPath(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(fullPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, skerrors.Wrap(err, skerrors.CodeBlob, "failed to stat file").WithContext("key", key)
	}
	return true, nil
}

func (s *Local) fullPath(key string) (string, error) {
	p := filepath.Join(s.root, filepath.FromSlash(key))
	if p != s.root && !strings.HasPrefix(p, s.root+string(filepath.Separator)) {
		return "", skerrors.New(skerrors.CodeBlob, "key escapes blob root").WithContext("key", key)
	}
	return p, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
