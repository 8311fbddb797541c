package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs_DistinguishesSentinelsSharingACode(t *testing.T) {
	db := ErrDatabaseUnavailable.WithCause(fmt.Errorf("sql: database is closed"))

	assert.True(t, Is(db, ErrDatabaseUnavailable))
	assert.False(t, Is(db, ErrStorageUnavailable))
	assert.False(t, Is(ErrStorageUnavailable.WithCause(fmt.Errorf("lock")), ErrDatabaseUnavailable))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(db))
}

func TestToErrorResponse(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"invalid signature", ErrInvalidSignature, http.StatusForbidden, "The temporary link is invalid or has expired."},
		{"too many requests", ErrTooManyRequests("Too Many Attempts."), http.StatusTooManyRequests, "Too Many Attempts."},
		{"unauthenticated", ErrUnauthenticated, http.StatusUnauthorized, "Unauthenticated."},
		{"database hidden", ErrDatabaseUnavailable, http.StatusServiceUnavailable, "An unexpected error occurred"},
		{"plain error", fmt.Errorf("boom"), http.StatusInternalServerError, "An unexpected error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
			assert.Equal(t, tt.message, ToErrorResponse(tt.err).Message)
		})
	}
}

func TestErrTooManyRequests_Code(t *testing.T) {
	err := ErrTooManyRequests("Too Many Requests.")
	assert.Equal(t, CodeRateLimitExceeded, err.Code())
}
