// Package apperr defines the failure classes shared by the service layer and
// their mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrInvalidCredentials is returned by login for both an unknown username and
// a wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// FieldError describes one rejected input field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError reports malformed input.
type ValidationError struct {
	Fields []FieldError
}

// Invalid builds a ValidationError for a single field.
func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Reason: reason}}}
}

// Add appends a field failure.
func (e *ValidationError) Add(field, reason string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
}

// OrNil returns nil when no field failed so callers can return it directly.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Reason)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ConflictError reports a uniqueness violation.
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Field, e.Value)
}

// AuthReason enumerates why a request was not authorized.
type AuthReason int

const (
	// Unauthenticated means no token was presented.
	Unauthenticated AuthReason = iota
	// Expired means the session existed but its expiry has passed.
	Expired
	// Forbidden means the caller is authenticated but does not own the resource.
	Forbidden
	// SessionNotFound means the presented token matches no session.
	SessionNotFound
)

func (r AuthReason) String() string {
	switch r {
	case Unauthenticated:
		return "unauthenticated"
	case Expired:
		return "session expired"
	case Forbidden:
		return "forbidden"
	case SessionNotFound:
		return "session not found"
	default:
		return "unknown"
	}
}

// AuthError is returned by the auth gate and by owner checks.
type AuthError struct {
	Reason AuthReason
}

func (e *AuthError) Error() string { return e.Reason.String() }

// NewAuthError is a shorthand for &AuthError{Reason: reason}.
func NewAuthError(reason AuthReason) *AuthError {
	return &AuthError{Reason: reason}
}

// NotFoundError reports a missing resource.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	if e.Key == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.Key)
}

// StorageError wraps a failure of the persistence layer.
type StorageError struct {
	Op  string
	Err error
}

// Storage wraps err unless it is nil or already a StorageError.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsUnauthenticated reports whether err means the caller has no valid session.
func IsUnauthenticated(err error) bool {
	var ae *AuthError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.Reason != Forbidden
}

// Status maps err onto an HTTP status code.
func Status(err error) int {
	var (
		ve *ValidationError
		ce *ConflictError
		ae *AuthError
		ne *NotFoundError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity
	case errors.As(err, &ce):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.As(err, &ae):
		if ae.Reason == Forbidden {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case errors.As(err, &ne):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Code returns a stable machine-readable code for err.
func Code(err error) string {
	var (
		ve *ValidationError
		ce *ConflictError
		ae *AuthError
		ne *NotFoundError
	)
	switch {
	case errors.As(err, &ve):
		return "validation_error"
	case errors.As(err, &ce):
		return "conflict"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.As(err, &ae):
		switch ae.Reason {
		case Expired:
			return "session_expired"
		case Forbidden:
			return "forbidden"
		case SessionNotFound:
			return "session_not_found"
		default:
			return "unauthenticated"
		}
	case errors.As(err, &ne):
		return "not_found"
	default:
		return "internal_error"
	}
}
