package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Togather-Foundation/eventdesk/internal/audit"
	"github.com/Togather-Foundation/eventdesk/internal/auth"
	"github.com/Togather-Foundation/eventdesk/internal/domain/ids"
	"github.com/Togather-Foundation/eventdesk/internal/metrics"
	"github.com/Togather-Foundation/eventdesk/internal/validation"
	"github.com/rs/zerolog"
)

// maxPasswordBytes is the bcrypt input limit.
const maxPasswordBytes = 72

type RegisterInput struct {
	Name     string `json:"name" validate:"required,max=200"`
	Email    string `json:"email" validate:"required,email,max=320"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role,omitempty" validate:"omitempty,oneof=admin user"`
}

// LoginInput is not validated beyond the credential check so malformed
// input fails the same way as a wrong password.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is returned by Register and Login.
type Session struct {
	Token     string     `json:"access_token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      PublicUser `json:"user"`
}

// Service implements registration, login and actor re-resolution.
type Service struct {
	repo             Repository
	hasher           *auth.PasswordHasher
	tokens           *auth.JWTManager
	auditLogger      *audit.Logger
	allowAdminSignup bool
	logger           zerolog.Logger
}

type Options struct {
	AllowAdminSignup bool
	AuditLogger      *audit.Logger
}

func NewService(repo Repository, hasher *auth.PasswordHasher, tokens *auth.JWTManager, opts Options, logger zerolog.Logger) *Service {
	return &Service{
		repo:             repo,
		hasher:           hasher,
		tokens:           tokens,
		auditLogger:      opts.AuditLogger,
		allowAdminSignup: opts.AllowAdminSignup,
		logger:           logger.With().Str("component", "users").Logger(),
	}
}

// Register creates an account and returns a session for it.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*Session, error) {
	session, err := s.register(ctx, input)
	metrics.AuthAttempts.WithLabelValues("register", resultLabel(err)).Inc()
	return session, err
}

func (s *Service) register(ctx context.Context, input RegisterInput) (*Session, error) {
	input.Email = NormalizeEmail(input.Email)
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	if len(input.Password) > maxPasswordBytes {
		return nil, validation.Error{Field: "password", Message: ErrPasswordTooLong.Error()}
	}

	role := auth.NormalizeRole(input.Role)
	if role == auth.RoleAdmin && !s.allowAdminSignup {
		return nil, ErrAdminSignupDisabled
	}

	user, err := s.createUser(ctx, input.Name, input.Email, input.Password, role)
	if err != nil {
		return nil, err
	}

	s.auditLogger.LogSuccess(ctx, "user.register", user.ID, "user", user.ID, map[string]string{"role": string(user.Role)})
	s.logger.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("user registered")

	return s.issue(user)
}

// Login verifies credentials. Unknown email and wrong password both return
// ErrInvalidCredentials after a bcrypt comparison.
func (s *Service) Login(ctx context.Context, input LoginInput) (*Session, error) {
	session, err := s.login(ctx, input)
	metrics.AuthAttempts.WithLabelValues("login", resultLabel(err)).Inc()
	return session, err
}

func (s *Service) login(ctx context.Context, input LoginInput) (*Session, error) {
	email := NormalizeEmail(input.Email)

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	digest := ""
	if user != nil {
		digest = user.PasswordHash
	}
	// Verify compares against a dummy hash when digest is empty.
	if !s.hasher.Verify(input.Password, digest) || user == nil {
		s.auditLogger.LogFailure(ctx, "user.login", email, "user", "", nil)
		return nil, ErrInvalidCredentials
	}

	return s.issue(user)
}

// ValidateActor re-resolves the subject of a verified token. It returns
// nil, nil when the user no longer exists.
func (s *Service) ValidateActor(ctx context.Context, userID string) (*User, error) {
	if ids.ValidateULID(userID) != nil {
		return nil, nil
	}
	user, err := s.repo.GetByID(ctx, ids.Normalize(userID))
	if errors.Is(err, ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve actor: %w", err)
	}
	return user, nil
}

// Profile returns the public view of the given user.
func (s *Service) Profile(ctx context.Context, userID string) (*PublicUser, error) {
	user, err := s.ValidateActor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	public := user.Public()
	return &public, nil
}

// Bootstrap ensures an admin account exists for email. It is a no-op when
// the email is already registered.
func (s *Service) Bootstrap(ctx context.Context, name, email, password string) (bool, error) {
	email = NormalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return false, ErrBootstrapIncomplete
	}

	existing, err := s.repo.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return false, fmt.Errorf("lookup admin: %w", err)
	}
	if existing != nil {
		if existing.Role != auth.RoleAdmin {
			s.logger.Warn().Str("email", email).Msg("bootstrap admin email belongs to a non-admin account")
		}
		return false, nil
	}

	user, err := s.createUser(ctx, name, email, password, auth.RoleAdmin)
	if errors.Is(err, ErrEmailTaken) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.auditLogger.LogSuccess(ctx, "user.bootstrap", "system", "user", user.ID, map[string]string{"role": string(auth.RoleAdmin)})
	s.logger.Info().Str("user_id", user.ID).Msg("bootstrap admin created")
	return true, nil
}

func (s *Service) createUser(ctx context.Context, name, email, password string, role auth.Role) (*User, error) {
	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	id, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}

	user, err := s.repo.Create(ctx, NewUser{
		ID:           id,
		Name:         name,
		Email:        email,
		PasswordHash: digest,
		Role:         role,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *Service) issue(user *User) (*Session, error) {
	token, expiresAt, err := s.tokens.Generate(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: user.Public()}, nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrEmailTaken):
		return "conflict"
	default:
		return metrics.ResultFailure
	}
}
