package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCode_HTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code Code
		want int
	}{
		{InvalidArgument, http.StatusBadRequest},
		{Unauthenticated, http.StatusUnauthorized},
		{PermissionDenied, http.StatusForbidden},
		{AlreadyExists, http.StatusConflict},
		{NotFound, http.StatusNotFound},
		{ResourceExhausted, http.StatusTooManyRequests},
		{Internal, http.StatusInternalServerError},
		{Code("something_else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.code), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.code.HTTPStatus())
		})
	}
}

func TestCodeFromStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, InvalidArgument, CodeFromStatus(http.StatusBadRequest))
	assert.Equal(t, InvalidArgument, CodeFromStatus(http.StatusRequestEntityTooLarge))
	assert.Equal(t, Unauthenticated, CodeFromStatus(http.StatusUnauthorized))
	assert.Equal(t, NotFound, CodeFromStatus(http.StatusMethodNotAllowed))
	assert.Equal(t, ResourceExhausted, CodeFromStatus(http.StatusTooManyRequests))
	assert.Equal(t, Internal, CodeFromStatus(http.StatusBadGateway))
}

func TestAsAndCodeOf(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	wrapped := fmt.Errorf("load user: %w", Wrap(cause, NotFound, "user not found"))

	ae, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, NotFound, ae.Code)
	assert.Equal(t, "user not found", ae.Message)
	assert.ErrorIs(t, wrapped, cause)

	assert.Equal(t, Internal, CodeOf(errors.New("plain")))
	assert.Equal(t, Code(""), CodeOf(nil))
	assert.True(t, Is(InternalError(cause), Internal))
	assert.Equal(t, "internal server error", InternalError(cause).Message)
}
