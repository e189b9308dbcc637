package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	healthcheckTimeout int
	healthcheckURL     string
	healthcheckReady   bool
)

func newHealthcheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check if the server is healthy",
		Long: `Performs a health check by calling the /healthz endpoint (or /readyz
with --ready).

This command is used by Docker HEALTHCHECK to monitor container health.
It exits with code 0 if the server is healthy, non-zero otherwise.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(healthcheckTimeout)*time.Second)
			defer cancel()
			status, err := performHealthCheck(ctx, healthURL())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "status: %s\n", status)
			return nil
		},
	}
	cmd.Flags().IntVar(&healthcheckTimeout, "timeout", 5, "timeout in seconds")
	cmd.Flags().StringVar(&healthcheckURL, "url", "", "health check URL (default: http://localhost:{SERVER_PORT}/healthz)")
	cmd.Flags().BoolVar(&healthcheckReady, "ready", false, "check readiness (/readyz) instead of liveness")
	return cmd
}

func healthURL() string {
	if healthcheckURL != "" {
		return healthcheckURL
	}
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	path := "/healthz"
	if healthcheckReady {
		path = "/readyz"
	}
	return fmt.Sprintf("http://localhost:%s%s", port, path)
}

// healthStatus mirrors the status field of handlers.HealthResponse.
type healthStatus struct {
	Status string `json:"status"`
}

// performHealthCheck returns the reported status when the server answered
// 200 with "ok" or "ready".
func performHealthCheck(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("health check failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body healthStatus
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("parse health response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return body.Status, fmt.Errorf("unhealthy: status %d (%s)", resp.StatusCode, body.Status)
	}
	if body.Status != "ok" && body.Status != "ready" {
		return body.Status, fmt.Errorf("unhealthy: status=%s", body.Status)
	}
	return body.Status, nil
}
