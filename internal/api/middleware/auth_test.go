package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Togather-Foundation/eventdesk/internal/auth"
	"github.com/Togather-Foundation/eventdesk/internal/domain/users"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type stubActors struct {
	users map[string]*users.User
	err   error
}

func (s stubActors) ValidateActor(_ context.Context, id string) (*users.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.users[id], nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func bearer(t *testing.T, m *auth.JWTManager, subject, role string) string {
	t.Helper()
	token, _, err := m.Generate(subject, subject+"@example.com", role)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestAuthenticate(t *testing.T) {
	manager := auth.NewJWTManager(testSecret, time.Hour, "eventdesk")
	actors := stubActors{users: map[string]*users.User{
		"alice": {ID: "alice", Email: "alice@example.com", Role: auth.RoleAdmin},
	}}

	var seen auth.Identity
	handler := Authenticate(manager, actors, "test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.IdentityFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"actor deleted", bearer(t, manager, "ghost", "user"), http.StatusUnauthorized},
		{"valid", bearer(t, manager, "alice", "user"), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			require.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusUnauthorized {
				require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			}
		})
	}

	// stored role wins over the role claimed in the token
	require.Equal(t, auth.RoleAdmin, seen.Role)
	require.Equal(t, "alice", seen.UserID)
}

func TestAuthenticate_ExpiredToken(t *testing.T) {
	manager := auth.NewJWTManager(testSecret, -time.Minute, "eventdesk")
	actors := stubActors{users: map[string]*users.User{"alice": {ID: "alice", Role: auth.RoleUser}}}
	handler := Authenticate(manager, actors, "test")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", bearer(t, manager, "alice", "user"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticate_StoreFailureIs500(t *testing.T) {
	manager := auth.NewJWTManager(testSecret, time.Hour, "eventdesk")
	handler := Authenticate(manager, stubActors{err: errors.New("db down")}, "test")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", bearer(t, manager, "alice", "user"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAuthorize(t *testing.T) {
	adminOnly := Authorize(auth.RequireRoles(auth.RoleAdmin), "test")(okHandler())
	anyRole := Authorize(auth.Authenticated(), "test")(okHandler())

	serve := func(h http.Handler, identity *auth.Identity) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/events", nil)
		if identity != nil {
			req = req.WithContext(auth.WithIdentity(req.Context(), *identity))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	user := &auth.Identity{UserID: "u", Role: auth.RoleUser}
	admin := &auth.Identity{UserID: "a", Role: auth.RoleAdmin}

	require.Equal(t, http.StatusUnauthorized, serve(adminOnly, nil))
	require.Equal(t, http.StatusForbidden, serve(adminOnly, user))
	require.Equal(t, http.StatusOK, serve(adminOnly, admin))
	require.Equal(t, http.StatusOK, serve(anyRole, user))
	require.Equal(t, http.StatusOK, serve(anyRole, admin))
}
