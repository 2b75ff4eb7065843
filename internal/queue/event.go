// Package queue defines grievance lifecycle events and the in-process
// worker pool that consumes them.
package queue

import "time"

// Kind names the lifecycle transition an Event reports.
type Kind string

const (
	KindCreated       Kind = "grievance.created"
	KindStatusChanged Kind = "grievance.status_changed"
	KindAssigned      Kind = "grievance.assigned"
	KindResolved      Kind = "grievance.resolved"
)

// Event is a value snapshot taken when the transition happened.  It
// contains enough information for consumers to notify recipients
// without querying the primary database, and it is never mutated after
// it has been enqueued.
type Event struct {
	Kind         Kind      `json:"kind"`
	GrievanceID  uint64    `json:"grievance_id"`
	Title        string    `json:"title"`
	StudentEmail string    `json:"student_email"`
	StudentName  string    `json:"student_name"`
	AdminEmail   string    `json:"admin_email,omitempty"`
	OldStatus    string    `json:"old_status,omitempty"`
	NewStatus    string    `json:"new_status,omitempty"`
	HandlerEmail string    `json:"handler_email,omitempty"`
	HandlerName  string    `json:"handler_name,omitempty"`
	Resolution   string    `json:"resolution,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
