package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/grievance-portal/internal/model"
)

// GrievanceFilter narrows List.  Zero values mean "any".
type GrievanceFilter struct {
	StudentID uint64
	Status    model.Status
}

type GrievanceRepo struct{ DB *sql.DB }

func NewGrievanceRepo(db *sql.DB) *GrievanceRepo { return &GrievanceRepo{DB: db} }

const grievanceColumns = "id,student_id,dept_id,title,category,description,status,handler_id,resolution,created_at,updated_at,version"

// Insert stores g and sets its ID.
func (r *GrievanceRepo) Insert(ctx context.Context, g *model.Grievance) error {
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO grievances (student_id, dept_id, title, category, description, status, handler_id, resolution, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		g.StudentID, nullID(g.DeptID), g.Title, g.Category, g.Description, string(g.Status),
		nullID(g.HandlerID), nullString(g.Resolution), g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	g.ID = uint64(id)
	g.Version = 0
	return nil
}

// GetByID fetches a grievance by id.
func (r *GrievanceRepo) GetByID(ctx context.Context, id uint64) (model.Grievance, error) {
	g, err := scanGrievance(r.DB.QueryRowContext(ctx,
		"SELECT "+grievanceColumns+" FROM grievances WHERE id=? LIMIT 1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Grievance{}, ErrNotFound
	}
	return g, err
}

// List returns grievances matching f, newest first.
func (r *GrievanceRepo) List(ctx context.Context, f GrievanceFilter) ([]model.Grievance, error) {
	var (
		where []string
		args  []any
	)
	if f.StudentID != 0 {
		where = append(where, "student_id=?")
		args = append(args, f.StudentID)
	}
	if f.Status != "" {
		where = append(where, "status=?")
		args = append(args, string(f.Status))
	}
	q := "SELECT " + grievanceColumns + " FROM grievances"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC"

	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Grievance{}
	for rows.Next() {
		g, err := scanGrievance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Update writes the mutable fields of g in one statement, provided nobody
// has written the row since g was read (g.Version still matches).  On
// success g.Version is advanced; a lost race yields ErrConflict.
func (r *GrievanceRepo) Update(ctx context.Context, g *model.Grievance) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE grievances SET status=?, handler_id=?, resolution=?, updated_at=?, version=version+1 WHERE id=? AND version=?",
		string(g.Status), nullID(g.HandlerID), nullString(g.Resolution), g.UpdatedAt, g.ID, g.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	g.Version++
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrievance(s rowScanner) (model.Grievance, error) {
	var (
		g          model.Grievance
		status     string
		deptID     sql.NullInt64
		handlerID  sql.NullInt64
		resolution sql.NullString
		createdAt  time.Time
		updatedAt  time.Time
	)
	err := s.Scan(&g.ID, &g.StudentID, &deptID, &g.Title, &g.Category, &g.Description,
		&status, &handlerID, &resolution, &createdAt, &updatedAt, &g.Version)
	if err != nil {
		return model.Grievance{}, err
	}
	g.Status = model.Status(status)
	g.DeptID = idPtr(deptID)
	g.HandlerID = idPtr(handlerID)
	if resolution.Valid {
		g.Resolution = &resolution.String
	}
	g.CreatedAt, g.UpdatedAt = createdAt, updatedAt
	return g, nil
}

func idPtr(n sql.NullInt64) *uint64 {
	if !n.Valid {
		return nil
	}
	v := uint64(n.Int64)
	return &v
}
