package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/grievance-portal/internal/model"
	"github.com/iliyamo/grievance-portal/internal/repository"
)

type DepartmentService struct {
	departments DepartmentStore
	now         func() time.Time
}

func NewDepartmentService(d DepartmentStore) *DepartmentService {
	return &DepartmentService{departments: d, now: func() time.Time { return time.Now().UTC() }}
}

// Create adds a department.  Admins only; names are unique.
func (s *DepartmentService) Create(ctx context.Context, who model.User, name string) (model.Department, error) {
	if err := RequireAdmin(who); err != nil {
		return model.Department{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Department{}, invalid("name is required")
	}
	d := model.Department{Name: name, CreatedAt: s.now()}
	if err := s.departments.Insert(ctx, &d); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return model.Department{}, invalid("department %q already exists", name)
		}
		return model.Department{}, err
	}
	return d, nil
}

func (s *DepartmentService) List(ctx context.Context) ([]model.Department, error) {
	return s.departments.List(ctx)
}
