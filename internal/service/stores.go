package service

import (
	"context"

	"github.com/iliyamo/grievance-portal/internal/model"
	"github.com/iliyamo/grievance-portal/internal/queue"
	"github.com/iliyamo/grievance-portal/internal/repository"
)

// The stores below are satisfied by the SQL repositories and by the
// in-memory adapter.  Each call is atomic.

type UserStore interface {
	Insert(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id uint64) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
}

type GrievanceStore interface {
	Insert(ctx context.Context, g *model.Grievance) error
	GetByID(ctx context.Context, id uint64) (model.Grievance, error)
	List(ctx context.Context, f repository.GrievanceFilter) ([]model.Grievance, error)
	// Update applies g only while the stored row is still at g.Version,
	// and advances g.Version.  Otherwise it returns repository.ErrConflict.
	Update(ctx context.Context, g *model.Grievance) error
}

type FileStore interface {
	Insert(ctx context.Context, f *model.FileUpload) error
	GetByID(ctx context.Context, id uint64) (model.FileUpload, error)
	ListByGrievance(ctx context.Context, grievanceID uint64) ([]model.FileUpload, error)
	Delete(ctx context.Context, id uint64) error
}

type DepartmentStore interface {
	Insert(ctx context.Context, d *model.Department) error
	GetByID(ctx context.Context, id uint64) (model.Department, error)
	List(ctx context.Context) ([]model.Department, error)
}

// Notifier schedules delivery of a lifecycle event.  It must return
// without waiting for delivery.
type Notifier interface {
	Dispatch(ev queue.Event)
}
