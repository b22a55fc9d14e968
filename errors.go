package authcore

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is the uniform rejection for refresh and validation
	// failures. Callers deliberately cannot distinguish an unknown token
	// from a consumed or revoked one.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials rejects a login with a bad username or password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRefreshRateLimited rejects refresh attempts past the per-subject
	// failure budget.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrStoreUnavailable signals a transient backend failure. The request
	// may be retried; no partial state was committed.
	ErrStoreUnavailable = errors.New("token store unavailable")
	// ErrConflict is reserved for concurrent-modification rejections
	// surfaced by future store backends.
	ErrConflict = errors.New("conflict")
	// ErrEngineNotReady is returned when an operation runs before Build
	// completed or after Close.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ValidationError rejects malformed input before any backend work. Unlike
// ErrUnauthorized it names the offending field; validation failures carry
// no security signal.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func validationErr(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
