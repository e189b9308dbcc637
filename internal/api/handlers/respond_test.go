package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Togather-Foundation/eventdesk/internal/auth"
	"github.com/Togather-Foundation/eventdesk/internal/domain/events"
	"github.com/Togather-Foundation/eventdesk/internal/domain/users"
	"github.com/Togather-Foundation/eventdesk/internal/media"
	"github.com/Togather-Foundation/eventdesk/internal/validation"
	"github.com/stretchr/testify/require"
)

func TestWriteError_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", validation.Error{Field: "title", Message: "is required"}, http.StatusBadRequest},
		{"filter", events.FilterError{Field: "limit", Message: "must be at most 100"}, http.StatusBadRequest},
		{"past date", events.ErrDateNotFuture, http.StatusBadRequest},
		{"duplicate registration", events.ErrAlreadyRegistered, http.StatusBadRequest},
		{"bad banner", media.ErrUnsupportedType, http.StatusBadRequest},
		{"missing body", ErrMissingBody, http.StatusBadRequest},
		{"oversized json", &http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge},
		{"credentials", fmt.Errorf("login: %w", users.ErrInvalidCredentials), http.StatusUnauthorized},
		{"token", auth.ErrInvalidToken, http.StatusUnauthorized},
		{"forbidden", events.ErrForbidden, http.StatusForbidden},
		{"admin signup", users.ErrAdminSignupDisabled, http.StatusForbidden},
		{"not found", events.ErrNotFound, http.StatusNotFound},
		{"conflict", users.ErrEmailTaken, http.StatusConflict},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil), tt.err, "production")
			require.Equal(t, tt.status, rec.Code)
			require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestWriteError_HidesInternalDetailInProduction(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: password=hunter2"), "production")

	require.NotContains(t, rec.Body.String(), "hunter2")
}

func TestWriteError_ValidationCarriesField(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, httptest.NewRequest(http.MethodPost, "/", nil), validation.Error{Field: "date", Message: "must be an RFC 3339 date-time"}, "production")

	var body struct {
		Errors map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "must be an RFC 3339 date-time", body.Errors["date"])
}
