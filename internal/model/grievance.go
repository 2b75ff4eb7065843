package model

import "time"

// Status is the lifecycle state of a grievance.
type Status string

const (
	StatusSubmitted   Status = "submitted"
	StatusUnderReview Status = "under_review"
	StatusInProgress  Status = "in_progress"
	StatusResolved    Status = "resolved"
	StatusClosed      Status = "closed"
)

// statusOrder ranks states so that forward and lateral moves can be told
// apart from backward ones.
var statusOrder = map[Status]int{
	StatusSubmitted:   0,
	StatusUnderReview: 1,
	StatusInProgress:  2,
	StatusResolved:    3,
	StatusClosed:      4,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusOrder[s]
	return ok
}

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool { return s == StatusClosed }

// CanMoveTo reports whether an explicit status update from s to next is
// permitted: forward or lateral moves only, never out of a terminal state.
func (s Status) CanMoveTo(next Status) bool {
	if !s.Valid() || !next.Valid() || s.Terminal() {
		return false
	}
	return statusOrder[next] >= statusOrder[s]
}

// Grievance records a complaint filed by a student.  Status, HandlerID and
// Resolution only change through the grievance service so that every
// transition is observed exactly once.
//
// Fields:
//  ID          – primary key identifier.
//  StudentID   – owning identity.
//  DeptID      – optional department reference.
//  Title       – short summary.
//  Category    – free-form category label.
//  Description – free text body.
//  Status      – lifecycle state.
//  HandlerID   – optional assigned staff identity.
//  Resolution  – resolution text, set when resolved.
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last update timestamp.
//  Version     – write counter used to detect concurrent updates.
type Grievance struct {
	ID          uint64    `json:"id"`
	StudentID   uint64    `json:"student_id"`
	DeptID      *uint64   `json:"dept_id"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	HandlerID   *uint64   `json:"handler_id"`
	Resolution  *string   `json:"resolution"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Version     uint64    `json:"-"`
}

// FileUpload describes an attachment stored in blob storage.  StorageKey
// is the backend-specific location returned by the store.
type FileUpload struct {
	ID          uint64    `json:"id"`
	UserID      uint64    `json:"user_id"`
	GrievanceID *uint64   `json:"grievance_id,omitempty"`
	Filename    string    `json:"filename"`
	StorageKey  string    `json:"-"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"file_size"`
	CreatedAt   time.Time `json:"created_at"`
}
