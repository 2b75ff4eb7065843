package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/grievance-portal/internal/model"
)

type DepartmentRepo struct{ DB *sql.DB }

func NewDepartmentRepo(db *sql.DB) *DepartmentRepo { return &DepartmentRepo{DB: db} }

// Insert stores d and sets its ID.  A taken name yields ErrDuplicate.
func (r *DepartmentRepo) Insert(ctx context.Context, d *model.Department) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO departments (name, created_at) VALUES (?,?)", d.Name, d.CreatedAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	d.ID = uint64(id)
	return nil
}

func (r *DepartmentRepo) GetByID(ctx context.Context, id uint64) (model.Department, error) {
	var d model.Department
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,name,created_at FROM departments WHERE id=? LIMIT 1", id).Scan(&d.ID, &d.Name, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Department{}, ErrNotFound
	}
	return d, err
}

// List returns all departments ordered by name.
func (r *DepartmentRepo) List(ctx context.Context) ([]model.Department, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT id,name,created_at FROM departments ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Department{}
	for rows.Next() {
		var d model.Department
		if err := rows.Scan(&d.ID, &d.Name, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
