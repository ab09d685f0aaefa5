package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			appErr:   New("InvalidAmount", "amount must be a positive integer", http.StatusBadRequest),
			expected: "[InvalidAmount] amount must be a positive integer",
		},
		{
			name:     "with wrapped error",
			appErr:   Wrap("Internal", "DB error", http.StatusInternalServerError, fmt.Errorf("connection refused")),
			expected: "[Internal] DB error: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap("Internal", "wrapped", http.StatusInternalServerError, inner)

	assert.True(t, errors.Is(appErr, inner))
}

func TestAppError_IsNilUnwrap(t *testing.T) {
	appErr := New("InvalidAmount", "test", http.StatusBadRequest)
	assert.Nil(t, appErr.Unwrap())
}

func TestAuthErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"MissingApiKey", ErrMissingApiKey(), "MissingApiKey", http.StatusUnauthorized},
		{"InvalidApiKey", ErrInvalidApiKey(), "InvalidApiKey", http.StatusUnauthorized},
		{"NotApproved", ErrNotApproved(), "NotApproved", http.StatusForbidden},
		{"RequestExpired", ErrRequestExpired(), "RequestExpired", http.StatusUnauthorized},
		{"ReplayDetected", ErrReplayDetected(), "ReplayDetected", http.StatusConflict},
		{"InvalidSignature", ErrInvalidSignature(), "InvalidSignature", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestAuthorizationErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"IpNotAllowed", ErrIpNotAllowed(), "IpNotAllowed", http.StatusForbidden},
		{"Forbidden", ErrForbidden(), "Forbidden", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestStateErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"NotFound", ErrNotFound("Invoice"), "NotFound", http.StatusNotFound},
		{"Conflict", ErrConflict("already settled"), "Conflict", http.StatusConflict},
		{"NoSuffixAvailable", ErrNoSuffixAvailable(), "NoSuffixAvailable", http.StatusUnprocessableEntity},
		{"Contention", ErrContention(), "Contention", http.StatusConflict},
		{"RateLimit", ErrRateLimit(), "RateLimit", http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestErrNotFound_IncludesEntity(t *testing.T) {
	err := ErrNotFound("Invoice")
	assert.Contains(t, err.Message, "Invoice")
}

func TestErrUpstreamUnavailable_WrapsCause(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := ErrUpstreamUnavailable(cause)
	assert.Equal(t, "UpstreamUnavailable", err.Code)
	assert.Equal(t, http.StatusBadGateway, err.HTTPStatus)
	assert.True(t, errors.Is(err, cause))
}

func TestInternalError(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := InternalError(cause)
	assert.Equal(t, "Internal", err.Code)
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus)
}
