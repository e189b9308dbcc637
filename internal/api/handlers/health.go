package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Togather-Foundation/eventdesk/internal/metrics"
)

const checkTimeout = 2 * time.Second

// CheckFunc is one readiness dependency probe.
type CheckFunc func(ctx context.Context) error

type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	GitCommit string                 `json:"git_commit,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

type CheckResult struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// HealthChecker answers liveness unconditionally and readiness by running
// every registered check concurrently.
type HealthChecker struct {
	checks    map[string]CheckFunc
	version   string
	gitCommit string
}

func NewHealthChecker(version, gitCommit string) *HealthChecker {
	return &HealthChecker{checks: map[string]CheckFunc{}, version: version, gitCommit: gitCommit}
}

// Register adds a named readiness check. It is not safe to call while serving.
func (h *HealthChecker) Register(name string, check CheckFunc) *HealthChecker {
	h.checks[name] = check
	return h
}

func (h *HealthChecker) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Version:   h.version,
		GitCommit: h.gitCommit,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthChecker) Readyz(w http.ResponseWriter, r *http.Request) {
	select {
	case <-r.Context().Done():
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "shutting_down", Timestamp: time.Now().UTC().Format(time.RFC3339)})
		return
	default:
	}

	results := h.run(r.Context())
	status, code := "ready", http.StatusOK
	for _, res := range results {
		if res.Status != "pass" {
			status, code = "unavailable", http.StatusServiceUnavailable
			break
		}
	}
	writeJSON(w, code, HealthResponse{
		Status:    status,
		Version:   h.version,
		GitCommit: h.gitCommit,
		Checks:    results,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthChecker) run(ctx context.Context) map[string]CheckResult {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]CheckResult, len(h.checks))
	)
	for name, check := range h.checks {
		wg.Add(1)
		go func(name string, check CheckFunc) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()

			start := time.Now()
			err := check(cctx)
			latency := time.Since(start)

			res := CheckResult{Status: "pass", LatencyMs: latency.Milliseconds()}
			gauge := 2.0
			if err != nil {
				res.Status, res.Message = "fail", err.Error()
				gauge = 0
			}
			metrics.HealthCheckStatus.WithLabelValues(name).Set(gauge)
			metrics.HealthCheckLatency.WithLabelValues(name).Set(float64(latency.Milliseconds()))

			mu.Lock()
			results[name] = res
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()
	return results
}
