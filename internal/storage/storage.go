// Package storage keeps attachment blobs on local disk or in an
// S3-compatible bucket.  Both backends enforce the same policy: the
// content type is checked before any byte is written and the body is
// cut off one byte past the size limit, leaving nothing behind.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/grievance-portal/internal/config"
)

var (
	ErrContentType = errors.New("content type not allowed")
	ErrTooLarge    = errors.New("file too large")
	ErrNotFound    = errors.New("blob not found")
)

// Blob is implemented by Disk and S3.
type Blob interface {
	Put(ctx context.Context, r io.Reader, contentType, filename string) (key string, size int64, err error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Policy is the upload admission rule shared by every backend.
type Policy struct {
	MaxBytes int64
	allowed  map[string]bool
}

func NewPolicy(maxBytes int64, allowed []string) Policy {
	p := Policy{MaxBytes: maxBytes, allowed: make(map[string]bool, len(allowed))}
	for _, ct := range allowed {
		p.allowed[strings.ToLower(strings.TrimSpace(ct))] = true
	}
	return p
}

// Check reports ErrContentType unless contentType, without parameters,
// is on the allow-list.
func (p Policy) Check(contentType string) error {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil || !p.allowed[strings.ToLower(mt)] {
		return fmt.Errorf("%w: %q", ErrContentType, contentType)
	}
	return nil
}

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.UploadConfig) (Blob, error) {
	policy := NewPolicy(cfg.MaxBytes, cfg.AllowedTypes)
	switch cfg.Backend {
	case "disk":
		return NewDisk(cfg.Dir, policy)
	case "s3":
		return NewS3(ctx, cfg.S3, policy)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// newKey returns a date-partitioned random key such as
// 2026/03/01/5b1f...e2.pdf.
func newKey(filename string) string {
	d := time.Now().UTC()
	return fmt.Sprintf("%04d/%02d/%02d/%s%s", d.Year(), d.Month(), d.Day(), uuid.New(), safeExt(filename))
}

// safeExt keeps a short alphanumeric extension and drops anything else.
func safeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

// copyCapped copies at most max bytes from r to w.  It reads one extra byte
// to detect overflow and reports ErrTooLarge in that case.
func copyCapped(w io.Writer, r io.Reader, max int64) (int64, error) {
	n, err := io.Copy(w, io.LimitReader(r, max+1))
	if err != nil {
		return n, err
	}
	if n > max {
		return n, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, max)
	}
	return n, nil
}
