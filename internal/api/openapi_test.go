package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Togather-Foundation/eventdesk/internal/media"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestOpenAPIHandler_DocumentsEveryRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	OpenAPIHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/openapi.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var doc struct {
		Paths map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))

	for _, rt := range routes(Dependencies{Ingestor: media.NewIngestor(media.NewFilesystemStore(t.TempDir()), zerolog.Nop())}) {
		path := strings.TrimPrefix(rt.pattern, "/api/v1")
		ops, ok := doc.Paths[path]
		require.True(t, ok, "missing path %s", path)
		_, ok = ops[strings.ToLower(rt.method)]
		require.True(t, ok, "missing %s %s", rt.method, path)
	}
}
