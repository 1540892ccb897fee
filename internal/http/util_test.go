package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dineflow/internal/domain"
	"dineflow/internal/repository"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrUnauthenticated, http.StatusUnauthorized, "UNAUTHENTICATED"},
		{fmt.Errorf("wrap: %w", domain.ErrPermissionDenied), http.StatusForbidden, "PERMISSION_DENIED"},
		{domain.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{domain.ErrVersionConflict, http.StatusConflict, "VERSION_CONFLICT"},
		{domain.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
		{domain.ErrItemsUnavailable, http.StatusUnprocessableEntity, "ITEMS_UNAVAILABLE"},
		{domain.ErrTableUnavailable, http.StatusUnprocessableEntity, "TABLE_UNAVAILABLE"},
		{domain.ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT"},
		{domain.ErrLockTimeout, http.StatusServiceUnavailable, "LOCK_TIMEOUT"},
		{domain.ErrConflict, http.StatusConflict, "CONFLICT"},
		{fmt.Errorf("insert: %w", &repository.UniqueViolationError{Constraint: "orders_order_number_key"}), http.StatusConflict, "CONFLICT"},
		{fmt.Errorf("commit: %w", repository.ErrSerialization), http.StatusConflict, "CONFLICT"},
		{fmt.Errorf("count: %w", repository.ErrInvalidValue), http.StatusBadRequest, "INVALID_INPUT"},
		{errors.New("pq: connection reset"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		status, body := statusFor(tc.err)
		assert.Equal(t, tc.status, status, tc.code)
		assert.Equal(t, tc.code, body.Code)
		assert.Equal(t, tc.code == "LOCK_TIMEOUT" || tc.code == "CONFLICT", body.Retryable, tc.code)
	}

	_, body := statusFor(errors.New("secret dsn in message"))
	assert.Equal(t, "internal server error", body.Message)
}

func TestWriteError_RetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, zap.NewNop(), domain.ErrLockTimeout)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), `"retryable":true`)
}

func TestPathParam(t *testing.T) {
	id, rest := pathParam("/api/v1/orders/o1/status", "/api/v1/orders/")
	assert.Equal(t, "o1", id)
	assert.Equal(t, "status", rest)

	id, rest = pathParam("/api/v1/orders/o1", "/api/v1/orders/")
	assert.Equal(t, "o1", id)
	assert.Empty(t, rest)

	id, _ = pathParam("/other", "/api/v1/orders/")
	assert.Empty(t, id)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.5:4312"
	assert.Equal(t, "10.0.0.5", clientIP(r))

	r.Header.Set("X-Real-IP", "172.16.0.1")
	assert.Equal(t, "172.16.0.1", clientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(r))
}

func TestParseTime(t *testing.T) {
	got, err := parseTime("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseTime("2025-01-02")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), *got)

	got, err = parseTime("2025-01-02T08:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, 8, got.Hour())

	_, err = parseTime("02/01/2025")
	assert.Error(t, err)
}

func TestParseInt(t *testing.T) {
	assert.Equal(t, 20, parseInt("", 20))
	assert.Equal(t, 20, parseInt("x", 20))
	assert.Equal(t, 5, parseInt("5", 20))
}

func TestRequestLogger_RecoversPanic(t *testing.T) {
	h := RequestLogger(zap.NewNop(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL")
}
