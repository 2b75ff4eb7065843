// Package repository holds the SQL-backed record stores.  Queries use `?`
// placeholders and run unchanged on MySQL and SQLite.  Timestamps are
// supplied by the caller rather than by the database so both dialects
// store identical values.
//
// The sentinel values below let higher layers tell failure scenarios
// apart without inspecting driver errors.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when no row matches the lookup.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when registering an email already in use.
var ErrEmailExists = errors.New("email already exists")

// ErrDuplicate is returned when a unique column other than email collides.
var ErrDuplicate = errors.New("duplicate")

// ErrConflict is returned when an update cannot be applied because the
// row changed since it was read.  Handlers translate this into 409.
var ErrConflict = errors.New("conflict")

// isDuplicate reports whether err is a unique-key violation from either
// supported driver.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// nullID maps an optional id to a driver value.
func nullID(id *uint64) any {
	if id == nil {
		return nil
	}
	return *id
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
