package handlers

import (
	"net/http"
	"strings"

	"github.com/Togather-Foundation/eventdesk/internal/domain/events"
	"github.com/Togather-Foundation/eventdesk/internal/media"
)

type EventsHandler struct {
	Service  *events.Service
	Ingestor *media.Ingestor
	Env      string
}

func NewEventsHandler(service *events.Service, ingestor *media.Ingestor, env string) *EventsHandler {
	return &EventsHandler{Service: service, Ingestor: ingestor, Env: env}
}

func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := events.ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	page, err := h.Service.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *EventsHandler) Get(w http.ResponseWriter, r *http.Request) {
	event, err := h.Service.Get(r.Context(), pathID(r))
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *EventsHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	decoded, err := decodeEventInput(r, h.Ingestor)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}

	event, err := h.Service.Create(r.Context(), decoded.Input, actor.UserID, decoded.BannerFile)
	if err != nil {
		discardBanner(r, h.Ingestor, decoded.BannerFile)
		writeError(w, r, err, h.Env)
		return
	}
	w.Header().Set("Location", "/api/v1/events/"+event.ID)
	writeJSON(w, http.StatusCreated, event)
}

func (h *EventsHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	// Refuse before the body is read so a multipart banner is never stored.
	if err := h.Service.AuthorizeUpdate(r.Context(), pathID(r), actor); err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	decoded, err := decodeEventInput(r, h.Ingestor)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}

	event, err := h.Service.Update(r.Context(), pathID(r), decoded.Input, actor, decoded.BannerFile)
	if err != nil {
		discardBanner(r, h.Ingestor, decoded.BannerFile)
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *EventsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	if err := h.Service.Remove(r.Context(), pathID(r), actor); err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *EventsHandler) Register(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	event, err := h.Service.RegisterAttendee(r.Context(), pathID(r), actor.UserID)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func pathID(r *http.Request) string {
	return strings.TrimSpace(r.PathValue("id"))
}
