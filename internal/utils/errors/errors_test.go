package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("Error returns message", func(t *testing.T) {
		err := &AppError{Code: "TEST_ERROR", Message: "test error message"}
		assert.Equal(t, "test error message", err.Error())
	})

	t.Run("Error includes wrapped error", func(t *testing.T) {
		err := &AppError{Code: "TEST_ERROR", Message: "test error message", Err: errors.New("wrapped error")}
		assert.Contains(t, err.Error(), "test error message")
		assert.Contains(t, err.Error(), "wrapped error")
	})

	t.Run("Unwrap returns wrapped error", func(t *testing.T) {
		wrapped := errors.New("wrapped error")
		err := &AppError{Code: "TEST_ERROR", Message: "test message", Err: wrapped}
		assert.Equal(t, wrapped, err.Unwrap())
	})

	t.Run("Is matches by code", func(t *testing.T) {
		err := Conflict("ILLEGAL_TRANSITION", "payment already settled")
		assert.True(t, errors.Is(err, &AppError{Code: "ILLEGAL_TRANSITION"}))
		assert.False(t, errors.Is(err, &AppError{Code: "OTHER"}))
		assert.True(t, errors.Is(err, ErrConflict))
	})
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		code   string
		status int
		base   error
	}{
		{"not found", NotFound("payment intent"), "NOT_FOUND", http.StatusNotFound, ErrNotFound},
		{"unauthorized", Unauthorized(""), "UNAUTHORIZED", http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", Forbidden(""), "FORBIDDEN", http.StatusForbidden, ErrForbidden},
		{"bad request", BadRequest("bad body"), "BAD_REQUEST", http.StatusBadRequest, ErrBadRequest},
		{"unprocessable", Unprocessable("PLAN_UNAVAILABLE", "plan unavailable"), "PLAN_UNAVAILABLE", http.StatusUnprocessableEntity, ErrUnprocessable},
		{"conflict", Conflict("ILLEGAL_TRANSITION", "settled"), "ILLEGAL_TRANSITION", http.StatusConflict, ErrConflict},
		{"rate limited", RateLimited(""), "RATE_LIMITED", http.StatusTooManyRequests, ErrRateLimited},
		{"unavailable", ServiceUnavailable("PROVIDER_UNAVAILABLE", ""), "PROVIDER_UNAVAILABLE", http.StatusServiceUnavailable, ErrServiceUnavail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.StatusCode)
			assert.NotEmpty(t, tt.err.Message)
			assert.True(t, errors.Is(tt.err, tt.base))
		})
	}

	t.Run("not found names the resource", func(t *testing.T) {
		assert.Equal(t, "payment intent not found", NotFound("payment intent").Message)
	})

	t.Run("internal hides the cause", func(t *testing.T) {
		cause := errors.New("pq: connection refused")
		err := Internal(cause)
		assert.Equal(t, "internal server error", err.ToResponse().Error.Message)
		assert.ErrorIs(t, err, cause)
	})
}

func TestAppError_Retryable(t *testing.T) {
	assert.False(t, BadRequest("x").Retryable())
	assert.False(t, Unauthorized("").Retryable())
	assert.False(t, Conflict("C", "x").Retryable())
	assert.True(t, ServiceUnavailable("S", "").Retryable())
	assert.True(t, Internal(nil).Retryable())
}

func TestAppError_ToResponse(t *testing.T) {
	err := NotFound("payment intent").WithDetails(map[string]any{"id": "abc"})
	resp := err.ToResponse()

	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Equal(t, "payment intent not found", resp.Error.Message)
	assert.Equal(t, "abc", resp.Error.Details["id"])
}

func TestGetStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"app error", Conflict("C", "x"), http.StatusConflict},
		{"wrapped app error", fmt.Errorf("handler: %w", RateLimited("")), http.StatusTooManyRequests},
		{"not found sentinel", ErrNotFound, http.StatusNotFound},
		{"unauthorized sentinel", ErrUnauthorized, http.StatusUnauthorized},
		{"forbidden sentinel", ErrForbidden, http.StatusForbidden},
		{"bad request sentinel", ErrBadRequest, http.StatusBadRequest},
		{"unprocessable sentinel", ErrUnprocessable, http.StatusUnprocessableEntity},
		{"conflict sentinel", ErrConflict, http.StatusConflict},
		{"rate limited sentinel", ErrRateLimited, http.StatusTooManyRequests},
		{"unavailable sentinel", ErrServiceUnavail, http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetStatusCode(tt.err))
		})
	}
}
