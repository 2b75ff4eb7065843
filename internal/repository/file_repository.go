package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/grievance-portal/internal/model"
)

// FileRepo stores attachment metadata.  The blob itself lives in the
// storage backend under StorageKey.
type FileRepo struct{ DB *sql.DB }

func NewFileRepo(db *sql.DB) *FileRepo { return &FileRepo{DB: db} }

const fileColumns = "id,user_id,grievance_id,filename,storage_key,content_type,file_size,created_at"

func (r *FileRepo) Insert(ctx context.Context, f *model.FileUpload) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO file_uploads (user_id, grievance_id, filename, storage_key, content_type, file_size, created_at) VALUES (?,?,?,?,?,?,?)",
		f.UserID, nullID(f.GrievanceID), f.Filename, f.StorageKey, f.ContentType, f.Size, f.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	f.ID = uint64(id)
	return nil
}

func (r *FileRepo) GetByID(ctx context.Context, id uint64) (model.FileUpload, error) {
	f, err := scanFile(r.DB.QueryRowContext(ctx,
		"SELECT "+fileColumns+" FROM file_uploads WHERE id=? LIMIT 1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.FileUpload{}, ErrNotFound
	}
	return f, err
}

// ListByGrievance returns attachments of a grievance in upload order.
func (r *FileRepo) ListByGrievance(ctx context.Context, grievanceID uint64) ([]model.FileUpload, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+fileColumns+" FROM file_uploads WHERE grievance_id=? ORDER BY id", grievanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.FileUpload{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *FileRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM file_uploads WHERE id=?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanFile(s rowScanner) (model.FileUpload, error) {
	var (
		f           model.FileUpload
		grievanceID sql.NullInt64
	)
	err := s.Scan(&f.ID, &f.UserID, &grievanceID, &f.Filename, &f.StorageKey, &f.ContentType, &f.Size, &f.CreatedAt)
	if err != nil {
		return model.FileUpload{}, err
	}
	f.GrievanceID = idPtr(grievanceID)
	return f, nil
}
