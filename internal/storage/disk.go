package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Disk stores blobs under a root directory.  Keys are slash-separated
// paths relative to the root.
type Disk struct {
	root   string
	policy Policy
}

func NewDisk(root string, policy Policy) (*Disk, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Disk{root: abs, policy: policy}, nil
}

func (d *Disk) path(key string) (string, error) {
	p := filepath.FromSlash(key)
	if !filepath.IsLocal(p) {
		return "", fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return filepath.Join(d.root, p), nil
}

func (d *Disk) Put(_ context.Context, r io.Reader, contentType, filename string) (string, int64, error) {
	if err := d.policy.Check(contentType); err != nil {
		return "", 0, err
	}
	key := newKey(filename)
	target, err := d.path(key)
	if err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", 0, err
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", 0, err
	}

	n, err := copyCapped(f, r, d.policy.MaxBytes)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// never leave a partial file behind
		_ = os.Remove(target)
		return "", 0, err
	}
	return key, n, nil
}

func (d *Disk) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := d.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return f, err
}

// Delete removes the blob.  A missing blob is not an error.
func (d *Disk) Delete(_ context.Context, key string) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
