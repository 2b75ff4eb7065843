// Package memory provides map-backed record stores with the same
// behaviour and sentinel errors as the SQL repositories.  Records are
// copied in and out so callers never share memory with the store.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/iliyamo/grievance-portal/internal/model"
	"github.com/iliyamo/grievance-portal/internal/repository"
)

// Store holds every table behind a single lock.
type Store struct {
	mu          sync.RWMutex
	users       map[uint64]model.User
	grievances  map[uint64]model.Grievance
	files       map[uint64]model.FileUpload
	departments map[uint64]model.Department
	seq         uint64
}

func New() *Store {
	return &Store{
		users:       make(map[uint64]model.User),
		grievances:  make(map[uint64]model.Grievance),
		files:       make(map[uint64]model.FileUpload),
		departments: make(map[uint64]model.Department),
	}
}

func (s *Store) next() uint64 {
	s.seq++
	return s.seq
}

// Users returns the user table view.
func (s *Store) Users() *Users { return &Users{s} }

// Grievances returns the grievance table view.
func (s *Store) Grievances() *Grievances { return &Grievances{s} }

// Files returns the attachment table view.
func (s *Store) Files() *Files { return &Files{s} }

// Departments returns the department table view.
func (s *Store) Departments() *Departments { return &Departments{s} }

type Users struct{ s *Store }

func (r *Users) Insert(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.users {
		if other.Email == u.Email {
			return repository.ErrEmailExists
		}
	}
	u.ID = r.s.next()
	r.s.users[u.ID] = *u
	return nil
}

func (r *Users) GetByID(_ context.Context, id uint64) (model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (r *Users) GetByEmail(_ context.Context, email string) (model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

type Grievances struct{ s *Store }

func (r *Grievances) Insert(_ context.Context, g *model.Grievance) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g.ID = r.s.next()
	g.Version = 0
	r.s.grievances[g.ID] = cloneGrievance(*g)
	return nil
}

func (r *Grievances) GetByID(_ context.Context, id uint64) (model.Grievance, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	g, ok := r.s.grievances[id]
	if !ok {
		return model.Grievance{}, repository.ErrNotFound
	}
	return cloneGrievance(g), nil
}

func (r *Grievances) List(_ context.Context, f repository.GrievanceFilter) ([]model.Grievance, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []model.Grievance{}
	for _, g := range r.s.grievances {
		if f.StudentID != 0 && g.StudentID != f.StudentID {
			continue
		}
		if f.Status != "" && g.Status != f.Status {
			continue
		}
		out = append(out, cloneGrievance(g))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *Grievances) Update(_ context.Context, g *model.Grievance) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.grievances[g.ID]
	if !ok || cur.Version != g.Version {
		return repository.ErrConflict
	}
	cur.Status = g.Status
	cur.HandlerID = g.HandlerID
	cur.Resolution = g.Resolution
	cur.UpdatedAt = g.UpdatedAt
	cur.Version++
	r.s.grievances[g.ID] = cloneGrievance(cur)
	g.Version = cur.Version
	return nil
}

type Files struct{ s *Store }

func (r *Files) Insert(_ context.Context, f *model.FileUpload) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f.ID = r.s.next()
	r.s.files[f.ID] = cloneFile(*f)
	return nil
}

func (r *Files) GetByID(_ context.Context, id uint64) (model.FileUpload, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	f, ok := r.s.files[id]
	if !ok {
		return model.FileUpload{}, repository.ErrNotFound
	}
	return cloneFile(f), nil
}

func (r *Files) ListByGrievance(_ context.Context, grievanceID uint64) ([]model.FileUpload, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []model.FileUpload{}
	for _, f := range r.s.files {
		if f.GrievanceID != nil && *f.GrievanceID == grievanceID {
			out = append(out, cloneFile(f))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Files) Delete(_ context.Context, id uint64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.files[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.files, id)
	return nil
}

type Departments struct{ s *Store }

func (r *Departments) Insert(_ context.Context, d *model.Department) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.departments {
		if other.Name == d.Name {
			return repository.ErrDuplicate
		}
	}
	d.ID = r.s.next()
	r.s.departments[d.ID] = *d
	return nil
}

func (r *Departments) GetByID(_ context.Context, id uint64) (model.Department, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	d, ok := r.s.departments[id]
	if !ok {
		return model.Department{}, repository.ErrNotFound
	}
	return d, nil
}

func (r *Departments) List(_ context.Context) ([]model.Department, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]model.Department, 0, len(r.s.departments))
	for _, d := range r.s.departments {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func cloneID(p *uint64) *uint64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneGrievance(g model.Grievance) model.Grievance {
	g.DeptID = cloneID(g.DeptID)
	g.HandlerID = cloneID(g.HandlerID)
	if g.Resolution != nil {
		r := *g.Resolution
		g.Resolution = &r
	}
	return g
}

func cloneFile(f model.FileUpload) model.FileUpload {
	f.GrievanceID = cloneID(f.GrievanceID)
	return f
}
