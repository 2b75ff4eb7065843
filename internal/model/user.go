package model

import "time"

// User represents an identity record as stored in the `users` table.
// Each field corresponds to a column in the database.  Email is the
// unique lookup key and is compared case-sensitively.  PasswordHash is
// a bcrypt hash and never leaves the service.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique email address.
//  FullName     – optional display name used in notifications.
//  PasswordHash – bcrypt hashed password.
//  IsActive     – whether the account may authenticate.
//  IsAdmin      – whether the account has administrator privileges.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	FullName     string    // users.full_name
	PasswordHash string    // users.password_hash
	IsActive     bool      // users.is_active
	IsAdmin      bool      // users.is_admin
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// DisplayName returns the name used to greet the user in messages.
func (u User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Email
}

// Department represents a row in the `departments` table.  Grievances
// may optionally reference a department.
type Department struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
