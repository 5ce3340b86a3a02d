package remote

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrAlreadyRegistered  = errors.New("user already registered")
	ErrSignupDisabled     = errors.New("signups not allowed")
	ErrEmailNotConfirmed  = errors.New("email not confirmed")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrNotFound           = errors.New("not found")
	ErrMultipleRows       = errors.New("multiple rows returned for a single-row query")
)

// Error is a failure reported by the hosted service. Kind, when set, is one
// of the sentinels above so callers can use errors.Is.
type Error struct {
	Op      string
	Status  int
	Code    string
	Message string
	Kind    error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (status %d, code %s)", e.Op, e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Message, e.Status)
}

func (e *Error) Unwrap() error {
	return e.Kind
}
