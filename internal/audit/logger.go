// Package audit records mutations of users and events as structured log entries.
package audit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Entry is a single audit record.
type Entry struct {
	Timestamp    time.Time
	Action       string
	Actor        string
	ResourceType string
	ResourceID   string
	IPAddress    string
	Status       string
	Details      map[string]string
}

// Logger writes audit entries through zerolog with component=audit.
// A nil *Logger discards entries.
type Logger struct {
	log zerolog.Logger
}

func NewLogger(base zerolog.Logger) *Logger {
	return &Logger{log: base.With().Str("component", "audit").Logger()}
}

func (l *Logger) Log(ctx context.Context, entry Entry) {
	if l == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.IPAddress == "" {
		entry.IPAddress = ClientIP(ctx)
	}
	if entry.Status == "" {
		entry.Status = StatusSuccess
	}

	evt := l.log.Info()
	if entry.Status == StatusFailure {
		evt = l.log.Warn()
	}
	evt = evt.Time("at", entry.Timestamp).
		Str("action", entry.Action).
		Str("actor", entry.Actor).
		Str("status", entry.Status)
	if entry.ResourceType != "" {
		evt = evt.Str("resource_type", entry.ResourceType)
	}
	if entry.ResourceID != "" {
		evt = evt.Str("resource_id", entry.ResourceID)
	}
	if entry.IPAddress != "" {
		evt = evt.Str("ip", entry.IPAddress)
	}
	if id := RequestID(ctx); id != "" {
		evt = evt.Str("request_id", id)
	}
	if len(entry.Details) > 0 {
		evt = evt.Fields(toFields(entry.Details))
	}
	evt.Msg("audit")
}

func (l *Logger) LogSuccess(ctx context.Context, action, actor, resourceType, resourceID string, details map[string]string) {
	l.Log(ctx, Entry{
		Action:       action,
		Actor:        actor,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Status:       StatusSuccess,
		Details:      details,
	})
}

func (l *Logger) LogFailure(ctx context.Context, action, actor, resourceType, resourceID string, details map[string]string) {
	l.Log(ctx, Entry{
		Action:       action,
		Actor:        actor,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Status:       StatusFailure,
		Details:      details,
	})
}

func toFields(details map[string]string) map[string]any {
	fields := make(map[string]any, len(details))
	for k, v := range details {
		fields[k] = v
	}
	return fields
}

type clientIPKey struct{}
type requestIDKey struct{}

// WithRequest stores the caller's address and request id so entries logged
// deeper in the call stack can carry them.
func WithRequest(ctx context.Context, r *http.Request, requestID string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, extractClientIP(r))
	if requestID != "" {
		ctx = context.WithValue(ctx, requestIDKey{}, requestID)
	}
	return ctx
}

func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func ClientIP(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
