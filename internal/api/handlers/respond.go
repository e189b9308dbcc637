// Package handlers implements the HTTP endpoints of the API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Togather-Foundation/eventdesk/internal/api/problem"
	"github.com/Togather-Foundation/eventdesk/internal/auth"
	"github.com/Togather-Foundation/eventdesk/internal/domain/events"
	"github.com/Togather-Foundation/eventdesk/internal/domain/users"
	"github.com/Togather-Foundation/eventdesk/internal/media"
	"github.com/Togather-Foundation/eventdesk/internal/validation"
	"github.com/rs/zerolog"
)

// ErrMissingBody is returned when a request carries neither a JSON document
// nor any multipart field.
var ErrMissingBody = errors.New("request body is required")

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps domain errors onto problem responses. Unknown errors are
// 500 with the detail hidden outside development and test.
func writeError(w http.ResponseWriter, r *http.Request, err error, env string) {
	var (
		validationErr validation.Error
		filterErr     events.FilterError
		maxBytesErr   *http.MaxBytesError
	)

	switch {
	case errors.As(err, &validationErr):
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Validation Failed", err, env,
			problem.WithDetail(validationErr.Error()),
			problem.WithErrors(map[string]any{validationErr.Field: validationErr.Message}))
	case errors.As(err, &filterErr):
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid Query", err, env,
			problem.WithDetail(filterErr.Error()))
	case errors.Is(err, events.ErrDateNotFuture),
		errors.Is(err, events.ErrAlreadyRegistered),
		errors.Is(err, media.ErrUnsupportedType),
		errors.Is(err, media.ErrTooLarge),
		errors.Is(err, ErrMissingBody),
		errors.Is(err, errMalformedBody),
		errors.Is(err, users.ErrPasswordTooLong):
		problem.Write(w, r, http.StatusBadRequest, problem.TypeBadRequest, "Bad Request", err, env,
			problem.WithDetail(err.Error()))
	case errors.As(err, &maxBytesErr):
		problem.Write(w, r, http.StatusRequestEntityTooLarge, problem.TypeTooLarge, "Payload Too Large", err, env,
			problem.WithDetail("request body too large"))
	case errors.Is(err, users.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, users.ErrUserNotFound):
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", err, env,
			problem.WithDetail(unauthorizedDetail(err)))
	case errors.Is(err, events.ErrForbidden),
		errors.Is(err, users.ErrAdminSignupDisabled):
		problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Forbidden", err, env,
			problem.WithDetail(err.Error()))
	case errors.Is(err, events.ErrNotFound),
		errors.Is(err, media.ErrNotFound):
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Not Found", err, env,
			problem.WithDetail(err.Error()))
	case errors.Is(err, users.ErrEmailTaken):
		problem.Write(w, r, http.StatusConflict, problem.TypeConflict, "Conflict", err, env,
			problem.WithDetail(err.Error()))
	default:
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeInternal, "Internal Server Error", err, env)
	}
}

// Login failures share one detail string whatever the cause.
func unauthorizedDetail(err error) string {
	if errors.Is(err, users.ErrInvalidCredentials) {
		return users.ErrInvalidCredentials.Error()
	}
	return "authentication required"
}

// identity returns the authenticated actor. Routes using it sit behind
// Authenticate, so a missing identity is a wiring fault.
func identity(w http.ResponseWriter, r *http.Request, env string) (auth.Identity, bool) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		writeError(w, r, auth.ErrMissingToken, env)
		return auth.Identity{}, false
	}
	return id, true
}

func loggerFrom(r *http.Request) *zerolog.Logger {
	return zerolog.Ctx(r.Context())
}
