// Package service holds the business rules of the portal: credential
// checks, the login throttle, ownership checks and the grievance
// lifecycle.  Handlers translate the errors declared here into HTTP
// statuses in one place.
package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrUnauthenticated    = errors.New("could not validate credentials")
	ErrInvalidCredentials = errors.New("incorrect email or password")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrRateLimited        = errors.New("too many login attempts")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrTerminalState      = errors.New("grievance is closed")
	ErrConflict           = errors.New("grievance was modified concurrently")
)

// ValidationError carries a message safe to show to the caller.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string        { return e.Msg }
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// RateLimitError is returned by Login while the identity is throttled.
type RateLimitError struct{ RetryAfter time.Duration }

func (e *RateLimitError) Error() string        { return ErrRateLimited.Error() }
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }
