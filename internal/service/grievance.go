package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/iliyamo/grievance-portal/internal/model"
	"github.com/iliyamo/grievance-portal/internal/queue"
	"github.com/iliyamo/grievance-portal/internal/repository"
)

// GrievanceService owns every status, handler and resolution change.
// Each change that alters the status hands exactly one event to the
// notifier; writes that leave the status unchanged hand none, except
// assignment which always notifies the new handler.
type GrievanceService struct {
	grievances  GrievanceStore
	users       UserStore
	departments DepartmentStore
	notifier    Notifier
	adminEmail  string
	log         *slog.Logger
	now         func() time.Time
}

func NewGrievanceService(g GrievanceStore, u UserStore, d DepartmentStore, n Notifier, adminEmail string, log *slog.Logger) *GrievanceService {
	return &GrievanceService{
		grievances:  g,
		users:       u,
		departments: d,
		notifier:    n,
		adminEmail:  adminEmail,
		log:         log.With("component", "grievance"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput is a new grievance as submitted by a student.
type CreateInput struct {
	Title       string
	Category    string
	Description string
	DeptID      *uint64
}

// Create stores a grievance owned by who in the Submitted state and
// notifies the student and the admin.
func (s *GrievanceService) Create(ctx context.Context, who model.User, in CreateInput) (model.Grievance, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return model.Grievance{}, invalid("title is required")
	}
	if in.DeptID != nil {
		if _, err := s.departments.GetByID(ctx, *in.DeptID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return model.Grievance{}, invalid("department %d does not exist", *in.DeptID)
			}
			return model.Grievance{}, err
		}
	}

	now := s.now()
	g := model.Grievance{
		StudentID:   who.ID,
		DeptID:      in.DeptID,
		Title:       title,
		Category:    strings.TrimSpace(in.Category),
		Description: in.Description,
		Status:      model.StatusSubmitted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.grievances.Insert(ctx, &g); err != nil {
		return model.Grievance{}, err
	}

	ev := s.event(queue.KindCreated, g, who)
	ev.AdminEmail = s.adminEmail
	s.notifier.Dispatch(ev)
	s.log.Info("grievance created", "grievance_id", g.ID, "student_id", who.ID)
	return g, nil
}

// load fetches a grievance and checks who may act on it.  A missing
// grievance is reported before a permission problem.
func (s *GrievanceService) load(ctx context.Context, who model.User, id uint64) (model.Grievance, error) {
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

func (s *GrievanceService) Get(ctx context.Context, who model.User, id uint64) (model.Grievance, error) {
	return s.load(ctx, who, id)
}

// List returns the caller's grievances, or every grievance for an admin.
// status filters when not empty.
func (s *GrievanceService) List(ctx context.Context, who model.User, status model.Status) ([]model.Grievance, error) {
	if status != "" && !status.Valid() {
		return nil, invalid("unknown status %q", status)
	}
	f := repository.GrievanceFilter{Status: status}
	if !who.IsAdmin {
		f.StudentID = who.ID
	}
	return s.grievances.List(ctx, f)
}

// UpdateStatus moves the grievance to next.  Moving to the current status
// is accepted and changes nothing.  Backward moves and any move out of
// Closed are rejected.
func (s *GrievanceService) UpdateStatus(ctx context.Context, who model.User, id uint64, next model.Status) (model.Grievance, error) {
	if !next.Valid() {
		return model.Grievance{}, invalid("unknown status %q", next)
	}
	g, err := s.load(ctx, who, id)
	if err != nil {
		return model.Grievance{}, err
	}
	prev := g.Status
	if prev.Terminal() {
		return model.Grievance{}, ErrTerminalState
	}
	if next == prev {
		return g, nil
	}
	if !prev.CanMoveTo(next) {
		return model.Grievance{}, ErrInvalidTransition
	}

	g.Status = next
	g.UpdatedAt = s.now()
	if err := s.save(ctx, &g); err != nil {
		return model.Grievance{}, err
	}

	ev := s.event(queue.KindStatusChanged, g, s.student(ctx, who, g))
	ev.OldStatus, ev.NewStatus = string(prev), string(next)
	s.notifier.Dispatch(ev)
	s.log.Info("grievance status changed", "grievance_id", g.ID, "from", prev, "to", next)
	return g, nil
}

// Assign sets the handler.  Admins only; the status does not change.
func (s *GrievanceService) Assign(ctx context.Context, who model.User, id, handlerID uint64) (model.Grievance, error) {
	if err := RequireAdmin(who); err != nil {
		return model.Grievance{}, err
	}
	g, err := s.load(ctx, who, id)
	if err != nil {
		return model.Grievance{}, err
	}
	if g.Status.Terminal() {
		return model.Grievance{}, ErrTerminalState
	}
	handler, err := s.users.GetByID(ctx, handlerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Grievance{}, invalid("handler %d does not exist", handlerID)
		}
		return model.Grievance{}, err
	}
	if !handler.IsActive {
		return model.Grievance{}, invalid("handler %d is not active", handlerID)
	}

	g.HandlerID = &handler.ID
	g.UpdatedAt = s.now()
	if err := s.save(ctx, &g); err != nil {
		return model.Grievance{}, err
	}

	ev := s.event(queue.KindAssigned, g, s.student(ctx, who, g))
	ev.HandlerEmail, ev.HandlerName = handler.Email, handler.DisplayName()
	s.notifier.Dispatch(ev)
	s.log.Info("grievance assigned", "grievance_id", g.ID, "handler_id", handler.ID)
	return g, nil
}

// Resolve forces the Resolved status and records resolution verbatim; an
// empty text is allowed.  Resolving an already resolved grievance only
// replaces the text.
func (s *GrievanceService) Resolve(ctx context.Context, who model.User, id uint64, resolution string) (model.Grievance, error) {
	g, err := s.load(ctx, who, id)
	if err != nil {
		return model.Grievance{}, err
	}
	prev := g.Status
	if prev.Terminal() {
		return model.Grievance{}, ErrTerminalState
	}

	g.Status = model.StatusResolved
	g.Resolution = &resolution
	g.UpdatedAt = s.now()
	if err := s.save(ctx, &g); err != nil {
		return model.Grievance{}, err
	}

	if prev != model.StatusResolved {
		ev := s.event(queue.KindResolved, g, s.student(ctx, who, g))
		ev.OldStatus, ev.NewStatus = string(prev), string(g.Status)
		ev.Resolution = resolution
		s.notifier.Dispatch(ev)
	}
	s.log.Info("grievance resolved", "grievance_id", g.ID, "from", prev)
	return g, nil
}

// save writes g back.  Any write to the row since g was loaded, including
// one that touched a different field, makes this one fail with ErrConflict.
func (s *GrievanceService) save(ctx context.Context, g *model.Grievance) error {
	if err := s.grievances.Update(ctx, g); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// student returns the owner of g, reusing who when it is the owner.
func (s *GrievanceService) student(ctx context.Context, who model.User, g model.Grievance) model.User {
	if who.ID == g.StudentID {
		return who
	}
	u, err := s.users.GetByID(ctx, g.StudentID)
	if err != nil {
		s.log.Warn("load grievance owner", "grievance_id", g.ID, "err", err)
		return model.User{ID: g.StudentID}
	}
	return u
}

// event snapshots g and its owner into a value the notifier can keep.
func (s *GrievanceService) event(kind queue.Kind, g model.Grievance, owner model.User) queue.Event {
	return queue.Event{
		Kind:         kind,
		GrievanceID:  g.ID,
		Title:        g.Title,
		StudentEmail: owner.Email,
		StudentName:  owner.DisplayName(),
		OccurredAt:   g.UpdatedAt,
	}
}
