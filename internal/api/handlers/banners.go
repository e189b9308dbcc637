package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/Togather-Foundation/eventdesk/internal/media"
)

// BannersHandler serves stored banner images by generated name.
type BannersHandler struct {
	Store media.Store
	Env   string
}

func NewBannersHandler(store media.Store, env string) *BannersHandler {
	return &BannersHandler{Store: store, Env: env}
}

func (h *BannersHandler) Serve(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !media.ValidName(name) {
		writeError(w, r, media.ErrNotFound, h.Env)
		return
	}

	body, info, err := h.Store.Open(r.Context(), name)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	defer body.Close()

	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	// generated names are never reused
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")

	if seeker, ok := body.(io.ReadSeeker); ok {
		http.ServeContent(w, r, name, info.ModTime, seeker)
		return
	}
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		loggerFrom(r).Warn().Err(err).Str("banner", name).Msg("banner stream interrupted")
	}
}
