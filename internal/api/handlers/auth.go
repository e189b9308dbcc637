package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Togather-Foundation/eventdesk/internal/domain/users"
)

type AuthHandler struct {
	Service *users.Service
	Env     string
}

func NewAuthHandler(service *users.Service, env string) *AuthHandler {
	return &AuthHandler{Service: service, Env: env}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input users.RegisterInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	session, err := h.Service.Register(r.Context(), input)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// Login answers every credential failure, including a malformed body, with
// the same 401 payload.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input users.LoginInput
	if err := decodeBody(r, &input); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, err, h.Env)
			return
		}
		writeError(w, r, fmt.Errorf("%w: %v", users.ErrInvalidCredentials, err), h.Env)
		return
	}
	session, err := h.Service.Login(r.Context(), input)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	profile, err := h.Service.Profile(r.Context(), actor.UserID)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrMissingBody
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	return nil
}
