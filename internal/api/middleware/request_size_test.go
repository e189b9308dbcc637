package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestSize(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		bodySize    int
		wantErr     bool
	}{
		{"json within limit", "application/json", 512, false},
		{"json at limit", "application/json", 1024, false},
		{"json over limit", "application/json", 1025, true},
		{"multipart uses larger limit", "multipart/form-data; boundary=x", 2000, false},
		{"multipart over limit", "multipart/form-data; boundary=x", 4097, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var readErr error
			handler := RequestSize(1024, 4096)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, readErr = io.ReadAll(r.Body)
			}))
			req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(make([]byte, tt.bodySize)))
			req.Header.Set("Content-Type", tt.contentType)
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if !tt.wantErr {
				require.NoError(t, readErr)
				return
			}
			var maxErr *http.MaxBytesError
			require.True(t, errors.As(readErr, &maxErr))
		})
	}
}
