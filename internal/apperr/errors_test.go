package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
		code string
	}{
		{"validation", Invalid("limit", "must be between 1 and 100"), http.StatusUnprocessableEntity, "validation_error"},
		{"conflict", &ConflictError{Field: "username", Value: "alice"}, http.StatusConflict, "conflict"},
		{"credentials", ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{"unauthenticated", NewAuthError(Unauthenticated), http.StatusUnauthorized, "unauthenticated"},
		{"expired", NewAuthError(Expired), http.StatusUnauthorized, "session_expired"},
		{"session missing", NewAuthError(SessionNotFound), http.StatusUnauthorized, "session_not_found"},
		{"forbidden", NewAuthError(Forbidden), http.StatusForbidden, "forbidden"},
		{"not found", &NotFoundError{Resource: "song"}, http.StatusNotFound, "not_found"},
		{"storage", Storage("insert", errors.New("boom")), http.StatusInternalServerError, "internal_error"},
		{"wrapped", fmt.Errorf("login: %w", ErrInvalidCredentials), http.StatusUnauthorized, "invalid_credentials"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Status(tc.err))
			assert.Equal(t, tc.code, Code(tc.err))
		})
	}
}

func TestIsUnauthenticated(t *testing.T) {
	assert.True(t, IsUnauthenticated(NewAuthError(Expired)))
	assert.True(t, IsUnauthenticated(fmt.Errorf("gate: %w", NewAuthError(SessionNotFound))))
	assert.False(t, IsUnauthenticated(NewAuthError(Forbidden)))
	assert.False(t, IsUnauthenticated(ErrInvalidCredentials))
}

func TestStorageWrapsOnce(t *testing.T) {
	base := errors.New("connection reset")
	err := Storage("get session", Storage("query", base))
	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "query", se.Op)
	assert.ErrorIs(t, err, base)
	assert.NoError(t, Storage("noop", nil))
}

func TestValidationErrorOrNil(t *testing.T) {
	v := &ValidationError{}
	assert.NoError(t, v.OrNil())
	v.Add("username", "too short")
	v.Add("password", "missing digit")
	require.Error(t, v.OrNil())
	assert.Contains(t, v.Error(), "username: too short")
	assert.Contains(t, v.Error(), "password: missing digit")
}
