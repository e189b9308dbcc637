// Package problem writes RFC 7807 problem+json responses.
package problem

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
)

const contentType = "application/problem+json"

const typeBase = "https://eventdesk.dev/problems/"

// Problem type URIs.
const (
	TypeBadRequest     = typeBase + "bad-request"
	TypeValidation     = typeBase + "validation-error"
	TypeUnauthorized   = typeBase + "unauthorized"
	TypeForbidden      = typeBase + "forbidden"
	TypeNotFound       = typeBase + "not-found"
	TypeConflict       = typeBase + "conflict"
	TypeTooLarge       = typeBase + "payload-too-large"
	TypeRateLimited    = typeBase + "rate-limited"
	TypeInternal       = typeBase + "internal-error"
	TypeUnavailable    = typeBase + "service-unavailable"
	TypeMethodNotAllow = typeBase + "method-not-allowed"
)

type ProblemDetails struct {
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Status    int            `json:"status"`
	Detail    string         `json:"detail,omitempty"`
	Instance  string         `json:"instance,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
	Errors    map[string]any `json:"errors,omitempty"`
}

type Option func(*ProblemDetails)

func WithDetail(detail string) Option {
	return func(p *ProblemDetails) {
		p.Detail = detail
	}
}

func WithInstance(instance string) Option {
	return func(p *ProblemDetails) {
		p.Instance = instance
	}
}

func WithErrors(errs map[string]any) Option {
	return func(p *ProblemDetails) {
		p.Errors = errs
	}
}

func WithRequestID(id string) Option {
	return func(p *ProblemDetails) {
		p.RequestID = id
	}
}

// Write logs err (warn for 4xx, error for 5xx) and writes the problem. When
// no detail was supplied, err's text is exposed only in development and test.
func Write(w http.ResponseWriter, r *http.Request, status int, typ, title string, err error, env string, opts ...Option) {
	p := ProblemDetails{
		Type:   typ,
		Title:  title,
		Status: status,
	}
	for _, opt := range opts {
		opt(&p)
	}

	if p.Detail == "" && err != nil {
		if env == "development" || env == "test" {
			p.Detail = err.Error()
		} else {
			p.Detail = http.StatusText(status)
		}
	}
	if p.Instance == "" && r != nil {
		p.Instance = r.URL.Path
	}

	if err != nil && r != nil {
		logger := zerolog.Ctx(r.Context())
		event := logger.Warn()
		if status >= 500 {
			event = logger.Error()
		}
		event.Err(err).
			Int("status", status).
			Str("type", typ).
			Str("path", r.URL.Path).
			Str("method", r.Method).
			Msg(title)
	}

	WriteProblem(w, p)
}

func WriteProblem(w http.ResponseWriter, p ProblemDetails) {
	payload, err := json.Marshal(p)
	if err != nil {
		fallback := fmt.Sprintf(`{"type":"about:blank","title":%q,"status":500}`, http.StatusText(http.StatusInternalServerError))
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(fallback))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(p.Status)
	_, _ = w.Write(payload)
}
