package users

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Togather-Foundation/eventdesk/internal/auth"
	"github.com/Togather-Foundation/eventdesk/internal/validation"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type stubRepo struct {
	mu      sync.Mutex
	byID    map[string]User
	byEmail map[string]string
	failGet error
}

func newStubRepo() *stubRepo {
	return &stubRepo{byID: map[string]User{}, byEmail: map[string]string{}}
}

func (r *stubRepo) Create(_ context.Context, params NewUser) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[params.Email]; ok {
		return nil, ErrEmailTaken
	}
	now := time.Now().UTC()
	u := User{ID: params.ID, Name: params.Name, Email: params.Email, PasswordHash: params.PasswordHash, Role: params.Role, CreatedAt: now, UpdatedAt: now}
	r.byID[u.ID] = u
	r.byEmail[u.Email] = u.ID
	return &u, nil
}

func (r *stubRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failGet != nil {
		return nil, r.failGet
	}
	id, ok := r.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := r.byID[id]
	return &u, nil
}

func (r *stubRepo) GetByID(_ context.Context, id string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failGet != nil {
		return nil, r.failGet
	}
	u, ok := r.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (r *stubRepo) delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		delete(r.byEmail, u.Email)
		delete(r.byID, id)
	}
}

const testSecret = "test-secret-key-at-least-32-bytes-long"

func newTestService(t *testing.T, allowAdmin bool) (*Service, *stubRepo, *auth.JWTManager) {
	t.Helper()
	repo := newStubRepo()
	hasher, err := auth.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	tokens := auth.NewJWTManager(testSecret, time.Hour, "eventdesk-test")
	svc := NewService(repo, hasher, tokens, Options{AllowAdminSignup: allowAdmin}, zerolog.Nop())
	return svc, repo, tokens
}

func TestRegister_TokenClaimsMatchStoredUser(t *testing.T) {
	svc, repo, tokens := newTestService(t, true)

	session, err := svc.Register(context.Background(), RegisterInput{
		Name: "Ada", Email: "  Ada@Example.COM ", Password: "correct horse",
	})
	require.NoError(t, err)
	require.NotEmpty(t, session.Token)
	require.Equal(t, "ada@example.com", session.User.Email)
	require.Equal(t, string(auth.RoleUser), session.User.Role)

	claims, err := tokens.Validate(session.Token)
	require.NoError(t, err)

	stored, err := repo.GetByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)
	require.Equal(t, stored.ID, claims.Subject)
	require.Equal(t, stored.Email, claims.Email)
	require.Equal(t, string(stored.Role), claims.Role)
	require.NotEqual(t, "correct horse", stored.PasswordHash)
	require.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt, 5*time.Second)
}

func TestRegister_DuplicateEmailCaseInsensitive(t *testing.T) {
	svc, _, _ := newTestService(t, true)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Name: "A", Email: "dup@example.com", Password: "password1"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Name: "B", Email: "DUP@example.com", Password: "password2"})
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegister_Validation(t *testing.T) {
	svc, _, _ := newTestService(t, true)

	tests := []struct {
		name  string
		input RegisterInput
		field string
	}{
		{"missing name", RegisterInput{Email: "a@example.com", Password: "password1"}, "name"},
		{"bad email", RegisterInput{Name: "A", Email: "not-an-email", Password: "password1"}, "email"},
		{"short password", RegisterInput{Name: "A", Email: "a@example.com", Password: "short"}, "password"},
		{"unknown role", RegisterInput{Name: "A", Email: "a@example.com", Password: "password1", Role: "owner"}, "role"},
		{"password over bcrypt limit", RegisterInput{Name: "A", Email: "a@example.com", Password: string(make([]byte, 73))}, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.input)
			var verr validation.Error
			require.True(t, errors.As(err, &verr), "got %v", err)
			require.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestRegister_AdminSignupPolicy(t *testing.T) {
	input := RegisterInput{Name: "Root", Email: "root@example.com", Password: "password1", Role: "admin"}

	allowed, _, _ := newTestService(t, true)
	session, err := allowed.Register(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, "admin", session.User.Role)

	denied, _, _ := newTestService(t, false)
	_, err = denied.Register(context.Background(), input)
	require.ErrorIs(t, err, ErrAdminSignupDisabled)
}

func TestLogin(t *testing.T) {
	svc, _, tokens := newTestService(t, true)
	ctx := context.Background()

	registered, err := svc.Register(ctx, RegisterInput{Name: "Lin", Email: "lin@example.com", Password: "hunter2hunter2"})
	require.NoError(t, err)

	session, err := svc.Login(ctx, LoginInput{Email: "LIN@example.com", Password: "hunter2hunter2"})
	require.NoError(t, err)
	require.Equal(t, registered.User, session.User)

	claims, err := tokens.Validate(session.Token)
	require.NoError(t, err)
	require.Equal(t, registered.User.ID, claims.Subject)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	svc, _, _ := newTestService(t, true)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Name: "Lin", Email: "lin@example.com", Password: "hunter2hunter2"})
	require.NoError(t, err)

	_, wrongPassword := svc.Login(ctx, LoginInput{Email: "lin@example.com", Password: "nope-nope"})
	_, unknownEmail := svc.Login(ctx, LoginInput{Email: "ghost@example.com", Password: "hunter2hunter2"})

	require.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	require.ErrorIs(t, unknownEmail, ErrInvalidCredentials)
	require.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestLogin_StoreFailureIsNotCredentialsError(t *testing.T) {
	svc, repo, _ := newTestService(t, true)
	repo.failGet = errors.New("connection refused")

	_, err := svc.Login(context.Background(), LoginInput{Email: "a@example.com", Password: "password1"})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateActor(t *testing.T) {
	svc, repo, _ := newTestService(t, true)
	ctx := context.Background()

	session, err := svc.Register(ctx, RegisterInput{Name: "Gone", Email: "gone@example.com", Password: "password1"})
	require.NoError(t, err)

	user, err := svc.ValidateActor(ctx, session.User.ID)
	require.NoError(t, err)
	require.NotNil(t, user)

	repo.delete(session.User.ID)
	user, err = svc.ValidateActor(ctx, session.User.ID)
	require.NoError(t, err)
	require.Nil(t, user)

	user, err = svc.ValidateActor(ctx, "not-a-ulid")
	require.NoError(t, err)
	require.Nil(t, user)

	repo.failGet = errors.New("boom")
	_, err = svc.ValidateActor(ctx, session.User.ID)
	require.Error(t, err)
}

func TestProfile(t *testing.T) {
	svc, _, _ := newTestService(t, true)
	ctx := context.Background()

	session, err := svc.Register(ctx, RegisterInput{Name: "Pat", Email: "pat@example.com", Password: "password1"})
	require.NoError(t, err)

	profile, err := svc.Profile(ctx, session.User.ID)
	require.NoError(t, err)
	require.Equal(t, session.User, *profile)

	_, err = svc.Profile(ctx, "01HX0000000000000000000000")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestBootstrap(t *testing.T) {
	svc, repo, _ := newTestService(t, false)
	ctx := context.Background()

	created, err := svc.Bootstrap(ctx, "Admin", "Admin@Example.com", "bootstrap-pass")
	require.NoError(t, err)
	require.True(t, created)

	stored, err := repo.GetByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	require.Equal(t, auth.RoleAdmin, stored.Role)

	created, err = svc.Bootstrap(ctx, "Admin", "admin@example.com", "bootstrap-pass")
	require.NoError(t, err)
	require.False(t, created)

	_, err = svc.Bootstrap(ctx, "", "x@example.com", "pw")
	require.ErrorIs(t, err, ErrBootstrapIncomplete)
}
