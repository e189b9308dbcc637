// Package api assembles the HTTP surface: the route table, its access
// policies and the shared middleware chain.
package api

import (
	"context"
	"net/http"

	"github.com/Togather-Foundation/eventdesk/internal/api/handlers"
	"github.com/Togather-Foundation/eventdesk/internal/api/middleware"
	"github.com/Togather-Foundation/eventdesk/internal/auth"
	"github.com/Togather-Foundation/eventdesk/internal/config"
	"github.com/Togather-Foundation/eventdesk/internal/domain/events"
	"github.com/Togather-Foundation/eventdesk/internal/domain/users"
	"github.com/Togather-Foundation/eventdesk/internal/media"
	"github.com/Togather-Foundation/eventdesk/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Dependencies are the services the router exposes.
type Dependencies struct {
	Config   config.Config
	Logger   zerolog.Logger
	Users    *users.Service
	Events   *events.Service
	Ingestor *media.Ingestor
	Tokens   *auth.JWTManager
	Health   *handlers.HealthChecker

	Version   string
	GitCommit string
	BuildDate string
}

// route is one row of the route table. Policy is enforced by Authenticate
// and Authorize before the handler runs.
type route struct {
	method  string
	pattern string
	policy  auth.Policy
	tier    middleware.RateLimitTier
	handler http.HandlerFunc
}

func routes(deps Dependencies) []route {
	env := deps.Config.Environment
	authH := handlers.NewAuthHandler(deps.Users, env)
	eventsH := handlers.NewEventsHandler(deps.Events, deps.Ingestor, env)

	public := auth.Public()
	authenticated := auth.Authenticated()
	adminOnly := auth.RequireRoles(auth.RoleAdmin)

	table := []route{
		{http.MethodPost, "/api/v1/auth/register", public, middleware.TierAuth, authH.Register},
		{http.MethodPost, "/api/v1/auth/login", public, middleware.TierAuth, authH.Login},
		{http.MethodGet, "/api/v1/auth/me", authenticated, middleware.TierPublic, authH.Me},

		{http.MethodGet, "/api/v1/events", public, middleware.TierPublic, eventsH.List},
		{http.MethodPost, "/api/v1/events", adminOnly, middleware.TierPublic, eventsH.Create},
		{http.MethodGet, "/api/v1/events/{id}", public, middleware.TierPublic, eventsH.Get},
		{http.MethodPatch, "/api/v1/events/{id}", authenticated, middleware.TierPublic, eventsH.Update},
		{http.MethodPut, "/api/v1/events/{id}", authenticated, middleware.TierPublic, eventsH.Update},
		{http.MethodDelete, "/api/v1/events/{id}", authenticated, middleware.TierPublic, eventsH.Delete},
		{http.MethodPost, "/api/v1/events/{id}/register", authenticated, middleware.TierPublic, eventsH.Register},
	}
	if deps.Ingestor != nil {
		bannersH := handlers.NewBannersHandler(deps.Ingestor.Store(), env)
		table = append(table, route{http.MethodGet, "/api/v1/banners/{name}", public, middleware.TierPublic, bannersH.Serve})
	}
	return table
}

// NewRouter builds the full handler. ctx bounds background work started by
// middleware such as the rate limiter's sweeper.
func NewRouter(ctx context.Context, deps Dependencies) http.Handler {
	cfg := deps.Config
	env := cfg.Environment
	logger := deps.Logger

	limit := middleware.RateLimit(ctx, cfg.RateLimit, env)
	bodyLimit := middleware.DefaultRequestSize()
	authenticate := middleware.Authenticate(deps.Tokens, deps.Users, env)

	mux := http.NewServeMux()
	for _, rt := range routes(deps) {
		var h http.Handler = rt.handler
		if rt.policy.Authenticated {
			h = authenticate(middleware.Authorize(rt.policy, env)(h))
		}
		h = bodyLimit(h)
		h = limit(h)
		h = middleware.WithRateLimitTierHandler(rt.tier)(h)
		mux.Handle(rt.method+" "+rt.pattern, h)
	}

	if deps.Health != nil {
		mux.HandleFunc("GET /healthz", deps.Health.Healthz)
		mux.HandleFunc("GET /readyz", deps.Health.Readyz)
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{Registry: metrics.Registry}))
	mux.Handle("GET /version", VersionHandler(deps.Version, deps.GitCommit, deps.BuildDate))
	mux.Handle("GET /api/v1/openapi.json", OpenAPIHandler())

	var handler http.Handler = mux
	handler = middleware.RequestLogging(logger)(handler)
	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.Tracing(handler)
	handler = middleware.CorrelationID(logger)(handler)
	handler = middleware.CORS(cfg.CORS, logger)(handler)
	handler = middleware.SecurityHeaders(!cfg.IsDevelopment())(handler)
	return handler
}
