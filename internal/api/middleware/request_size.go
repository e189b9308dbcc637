package middleware

import (
	"net/http"
	"strings"
)

const (
	// JSONMaxBodySize bounds JSON and other non-multipart bodies.
	JSONMaxBodySize int64 = 1 << 20
	// MultipartMaxBodySize leaves room for a 5 MiB banner plus form fields.
	MultipartMaxBodySize int64 = 6 << 20
)

// RequestSize wraps the body in http.MaxBytesReader, choosing the limit from
// the request's Content-Type. Handlers see *http.MaxBytesError on overflow.
func RequestSize(jsonMax, multipartMax int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && r.Body != http.NoBody {
				limit := jsonMax
				if isMultipart(r) {
					limit = multipartMax
				}
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// DefaultRequestSize applies JSONMaxBodySize and MultipartMaxBodySize.
func DefaultRequestSize() func(http.Handler) http.Handler {
	return RequestSize(JSONMaxBodySize, MultipartMaxBodySize)
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/")
}
