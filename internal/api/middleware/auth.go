package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/Togather-Foundation/eventdesk/internal/api/problem"
	"github.com/Togather-Foundation/eventdesk/internal/auth"
	"github.com/Togather-Foundation/eventdesk/internal/domain/users"
	"github.com/rs/zerolog"
)

var errActorGone = errors.New("token subject no longer exists")

// ActorResolver re-resolves the subject of a verified token.
type ActorResolver interface {
	ValidateActor(ctx context.Context, userID string) (*users.User, error)
}

// Authenticate verifies the bearer token, re-resolves the actor and attaches
// an auth.Identity to the request context. The identity carries the stored
// role, not the role claimed in the token.
func Authenticate(tokens *auth.JWTManager, actors ActorResolver, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.TokenFromHeader(r.Header.Get("Authorization"))
			if err != nil {
				unauthorized(w, r, "Missing or malformed authorization header", err, env)
				return
			}

			claims, err := tokens.Validate(token)
			if err != nil {
				unauthorized(w, r, "Invalid or expired token", err, env)
				return
			}

			user, err := actors.ValidateActor(r.Context(), claims.Subject)
			if err != nil {
				problem.Write(w, r, http.StatusInternalServerError, problem.TypeInternal, "Internal Server Error", err, env)
				return
			}
			if user == nil {
				unauthorized(w, r, "Invalid or expired token", errActorGone, env)
				return
			}

			identity := auth.Identity{UserID: user.ID, Email: user.Email, Role: user.Role}
			ctx := auth.WithIdentity(r.Context(), identity)
			logger := zerolog.Ctx(ctx).With().Str("user_id", user.ID).Logger()
			ctx = logger.WithContext(ctx)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Authorize enforces the role set of policy. It must run after Authenticate.
func Authorize(policy auth.Policy, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := auth.IdentityFrom(r.Context())
			if !ok {
				unauthorized(w, r, "Authentication required", auth.ErrMissingToken, env)
				return
			}
			if !policy.Allows(string(identity.Role)) {
				problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Forbidden", errors.New("role not permitted"), env,
					problem.WithDetail("insufficient permissions for this action"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, detail string, err error, env string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="eventdesk"`)
	problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", err, env,
		problem.WithDetail(detail))
}
