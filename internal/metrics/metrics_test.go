package metrics

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	require.NotPanics(t, func() {
		Init("v1.0.0", "abc123", "2026-01-30")
		Init("v1.0.0", "abc123", "2026-01-30")
	})
	require.Equal(t, float64(1), testutil.ToFloat64(AppInfo.WithLabelValues("v1.0.0", "abc123", "2026-01-30")))
}

func TestHTTPMiddlewareNormalizesPathLabel(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	wrapped := HTTPMiddleware(handler)

	counter := HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/events/{id}", "404")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"01HX0000000000000000000001", "01HX0000000000000000000002"} {
		req := httptest.NewRequest("GET", "/api/v1/events/"+id, nil)
		wrapped.ServeHTTP(httptest.NewRecorder(), req)
	}

	require.Equal(t, before+2, testutil.ToFloat64(counter))
}

func TestHTTPMiddlewareStatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{"OK", http.StatusOK},
		{"Not Found", http.StatusNotFound},
		{"Internal Server Error", http.StatusInternalServerError},
		{"Unauthorized", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			})

			rec := httptest.NewRecorder()
			HTTPMiddleware(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

			require.Equal(t, tt.statusCode, rec.Code)
			counter := HTTPRequestsTotal.WithLabelValues("GET", "/healthz", fmt.Sprint(tt.statusCode))
			require.GreaterOrEqual(t, testutil.ToFloat64(counter), float64(1))
		})
	}
}

func TestHTTPMiddlewareImplicitOK(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	counter := HTTPRequestsTotal.WithLabelValues("HEAD", "/readyz", "200")
	before := testutil.ToFloat64(counter)

	HTTPMiddleware(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("HEAD", "/readyz", nil))

	require.Equal(t, before+1, testutil.ToFloat64(counter))
}

type fixedPool PoolStats

func (p fixedPool) PoolStats() PoolStats { return PoolStats(p) }

func TestDBCollectorNilSource(t *testing.T) {
	collector := NewDBCollector("postgres", nil)
	require.NotPanics(t, func() {
		collector.collect()
		collector.Stop()
		collector.Stop()
	})
}

func TestDBCollectorReportsPoolStats(t *testing.T) {
	collector := NewDBCollector("mongo", fixedPool{Open: 4, InUse: 1, Idle: 3, Max: 25})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		collector.Start(ctx, time.Hour)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(DBConnections.WithLabelValues("mongo", "max")) == 25
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, float64(1), testutil.ToFloat64(DBConnections.WithLabelValues("mongo", "in_use")))

	cancel()
	<-done
}

func TestRecordQuery(t *testing.T) {
	RecordQuery("users_get", time.Now(), nil)
	require.NotZero(t, testutil.CollectAndCount(DBQueryDuration))

	timeouts := DBErrors.WithLabelValues("events_list", "timeout")
	before := testutil.ToFloat64(timeouts)
	RecordQuery("events_list", time.Now(), fmt.Errorf("list events: %w", context.DeadlineExceeded))
	require.Equal(t, before+1, testutil.ToFloat64(timeouts))
}

func TestStatusRecorder(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	require.Equal(t, http.StatusOK, rec.code())

	content := []byte("Hello, World!")
	_, _ = rec.Write(content)
	rec.WriteHeader(http.StatusTeapot)

	require.Equal(t, http.StatusOK, rec.code())
	require.Equal(t, len(content), rec.bytes)
}
