package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iliyamo/grievance-portal/internal/model"
	"github.com/iliyamo/grievance-portal/internal/repository"
	"github.com/iliyamo/grievance-portal/internal/storage"
)

// FileService manages attachments.  Blob storage failures after the
// record write are logged and never fail the request.
type FileService struct {
	files      FileStore
	grievances GrievanceStore
	blobs      storage.Blob
	log        *slog.Logger
	now        func() time.Time
}

func NewFileService(f FileStore, g GrievanceStore, blobs storage.Blob, log *slog.Logger) *FileService {
	return &FileService{
		files:      f,
		grievances: g,
		blobs:      blobs,
		log:        log.With("component", "files"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// UploadInput describes an incoming attachment.
type UploadInput struct {
	Filename    string
	ContentType string
	Body        io.Reader
	GrievanceID *uint64
}

// Upload stores the blob and its record.  When a grievance is named the
// caller must be allowed to act on it.  Content type and size errors
// come straight from the storage backend.
func (s *FileService) Upload(ctx context.Context, who model.User, in UploadInput) (model.FileUpload, error) {
	if in.GrievanceID != nil {
		if _, err := s.grievance(ctx, who, *in.GrievanceID); err != nil {
			return model.FileUpload{}, err
		}
	}
	name := cleanFilename(in.Filename)
	contentType := mediaType(in.ContentType)

	key, size, err := s.blobs.Put(ctx, in.Body, contentType, name)
	if err != nil {
		return model.FileUpload{}, err
	}
	f := model.FileUpload{
		UserID:      who.ID,
		GrievanceID: in.GrievanceID,
		Filename:    name,
		StorageKey:  key,
		ContentType: contentType,
		Size:        size,
		CreatedAt:   s.now(),
	}
	if err := s.files.Insert(ctx, &f); err != nil {
		if derr := s.blobs.Delete(ctx, key); derr != nil {
			s.log.Warn("remove orphaned blob", "key", key, "err", derr)
		}
		return model.FileUpload{}, err
	}
	s.log.Info("file uploaded", "file_id", f.ID, "size", size)
	return f, nil
}

// Open returns the record and a reader for the blob.  The caller closes
// the reader.
func (s *FileService) Open(ctx context.Context, who model.User, id uint64) (model.FileUpload, io.ReadCloser, error) {
	f, err := s.load(ctx, who, id)
	if err != nil {
		return model.FileUpload{}, nil, err
	}
	rc, err := s.blobs.Open(ctx, f.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.FileUpload{}, nil, ErrNotFound
		}
		return model.FileUpload{}, nil, err
	}
	return f, rc, nil
}

// Delete removes the record, then the blob.  A blob that cannot be
// removed is only logged.
func (s *FileService) Delete(ctx context.Context, who model.User, id uint64) error {
	f, err := s.load(ctx, who, id)
	if err != nil {
		return err
	}
	if err := s.files.Delete(ctx, f.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if err := s.blobs.Delete(ctx, f.StorageKey); err != nil {
		s.log.Warn("remove blob", "file_id", f.ID, "key", f.StorageKey, "err", err)
	}
	return nil
}

// ListForGrievance returns the attachments of a grievance the caller may see.
func (s *FileService) ListForGrievance(ctx context.Context, who model.User, grievanceID uint64) ([]model.FileUpload, error) {
	if _, err := s.grievance(ctx, who, grievanceID); err != nil {
		return nil, err
	}
	return s.files.ListByGrievance(ctx, grievanceID)
}

func (s *FileService) load(ctx context.Context, who model.User, id uint64) (model.FileUpload, error) {
	f, err := s.files.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.FileUpload{}, ErrNotFound
		}
		return model.FileUpload{}, err
	}
	if err := AuthorizeResourceAccess(who, f.UserID); err != nil {
		return model.FileUpload{}, err
	}
	return f, nil
}

func (s *FileService) grievance(ctx context.Context, who model.User, id uint64) (model.Grievance, error) {
	g, err := s.grievances.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Grievance{}, ErrNotFound
		}
		return model.Grievance{}, err
	}
	if err := AuthorizeResourceAccess(who, g.StudentID); err != nil {
		return model.Grievance{}, err
	}
	return g, nil
}

// cleanFilename keeps the base name of a client-supplied path.
// mediaType drops parameters such as charset from a part header.  A value
// that does not parse is passed through for the storage policy to reject.
func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType
	}
	return mt
}

// maxFilenameBytes bounds stored names to the file_uploads.filename column.
const maxFilenameBytes = 255

func cleanFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	name = strings.ToValidUTF8(name, "_")
	// keep the tail so the extension survives, starting on a rune boundary
	if len(name) > maxFilenameBytes {
		start := len(name) - maxFilenameBytes
		for start < len(name) && !utf8.RuneStart(name[start]) {
			start++
		}
		name = name[start:]
	}
	return name
}
