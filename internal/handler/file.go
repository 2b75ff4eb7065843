package handler

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/grievance-portal/internal/service"
)

// FileHandler serves attachment upload, download and removal.
type FileHandler struct {
	Files *service.FileService
}

func NewFileHandler(f *service.FileService) *FileHandler {
	return &FileHandler{Files: f}
}

// Upload streams the multipart "file" part straight into blob storage.
// The owning grievance comes from ?grievance_id= or a grievance_id
// field sent before the file part.
func (h *FileHandler) Upload(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return writeError(c, err)
	}
	var gid *uint64
	if v := c.QueryParam("grievance_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil || id == 0 {
			return badRequest(c, "invalid grievance_id")
		}
		gid = &id
	}

	// MultipartReader instead of FormFile: the file is never buffered in
	// memory or spooled to a temp file before the size and type checks.
	mr, err := c.Request().MultipartReader()
	if err != nil {
		return badRequest(c, "multipart body expected")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 60*time.Second)
	defer cancel()

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return badRequest(c, "file: cannot be blank.")
		}
		if err != nil {
			return badRequest(c, "malformed multipart body")
		}
		// Parts are consumed in order, so a grievance_id field only counts
		// when it precedes the file part.
		switch part.FormName() {
		case "grievance_id":
			raw, err := io.ReadAll(io.LimitReader(part, 32))
			_ = part.Close()
			if err != nil {
				return badRequest(c, "invalid grievance_id")
			}
			id, err := strconv.ParseUint(string(raw), 10, 64)
			if err != nil || id == 0 {
				return badRequest(c, "invalid grievance_id")
			}
			gid = &id
		case "file":
			// the declared type is checked against the allow-list; parameters
			// such as charset are dropped before it is stored
			ct := part.Header.Get(echo.HeaderContentType)
			if ct == "" {
				ct = echo.MIMEOctetStream
			}
			f, err := h.Files.Upload(ctx, who, service.UploadInput{
				Filename:    part.FileName(),
				ContentType: ct,
				Body:        part,
				GrievanceID: gid,
			})
			_ = part.Close()
			if err != nil {
				return writeError(c, err)
			}
			return c.JSON(http.StatusCreated, f)
		default:
			// unknown fields are skipped
			_ = part.Close()
		}
	}
}

// Download streams the blob with its stored content type.
func (h *FileHandler) Download(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return writeError(c, err)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid file id")
	}
	f, rc, err := h.Files.Open(c.Request().Context(), who, id)
	if err != nil {
		return writeError(c, err)
	}
	defer rc.Close()

	// FormatMediaType quotes or RFC 2231-encodes the stored name as needed
	c.Response().Header().Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": f.Filename}))
	c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(f.Size, 10))
	return c.Stream(http.StatusOK, f.ContentType, rc)
}

// Delete removes the record first and then the blob.  A blob that cannot
// be removed is logged and the request still succeeds.
func (h *FileHandler) Delete(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return writeError(c, err)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid file id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	if err := h.Files.Delete(ctx, who, id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
