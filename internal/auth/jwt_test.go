package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTGenerateValidate(t *testing.T) {
	manager := NewJWTManager("secret", time.Hour, "issuer")
	jwtToken, expiresAt, err := manager.Generate("user-1", "ada@example.com", "admin")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if time.Until(expiresAt) <= 59*time.Minute {
		t.Fatalf("unexpected expiry %s", expiresAt)
	}

	claims, err := manager.Validate(jwtToken)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.Subject != "user-1" || claims.Role != "admin" || claims.Email != "ada@example.com" {
		t.Fatalf("unexpected claims: %#v", claims)
	}
}

func TestJWTGenerateInvalid(t *testing.T) {
	manager := NewJWTManager("secret", time.Hour, "issuer")
	if _, _, err := manager.Generate("", "a@example.com", "admin"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestJWTValidateMissing(t *testing.T) {
	manager := NewJWTManager("secret", time.Hour, "issuer")
	if _, err := manager.Validate(""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}
}

func TestJWTValidateExpired(t *testing.T) {
	manager := NewJWTManager("secret", -time.Minute, "issuer")
	token, _, err := manager.Generate("user-1", "a@example.com", "user")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := manager.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for expired token, got %v", err)
	}
}

func TestJWTValidateWrongSecret(t *testing.T) {
	issuer := NewJWTManager("secret-a", time.Hour, "issuer")
	verifier := NewJWTManager("secret-b", time.Hour, "issuer")
	token, _, err := issuer.Generate("user-1", "a@example.com", "user")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := verifier.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for foreign signature, got %v", err)
	}
}

func TestJWTValidateMalformed(t *testing.T) {
	manager := NewJWTManager("secret", time.Hour, "issuer")
	for _, token := range []string{"abc", "a.b.c", strings.Repeat("x", 40)} {
		if _, err := manager.Validate(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected invalid token for %q, got %v", token, err)
		}
	}
}

func TestJWTValidateRejectsNoneAlgorithm(t *testing.T) {
	manager := NewJWTManager("secret", time.Hour, "issuer")
	claims := &Claims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "issuer",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}
	if _, err := manager.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for alg none, got %v", err)
	}
}

func TestJWTValidateWrongIssuer(t *testing.T) {
	token, _, err := NewJWTManager("secret", time.Hour, "other").Generate("user-1", "a@example.com", "user")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := NewJWTManager("secret", time.Hour, "issuer").Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for wrong issuer, got %v", err)
	}
}

func TestTokenFromHeader(t *testing.T) {
	if _, err := TokenFromHeader("nope"); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}
	if _, err := TokenFromHeader("Basic abc"); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token error for basic scheme, got %v", err)
	}
	if token, err := TokenFromHeader("Bearer token"); err != nil || token != "token" {
		t.Fatalf("expected token, got %s err %v", token, err)
	}
	if token, err := TokenFromHeader("bearer token"); err != nil || token != "token" {
		t.Fatalf("expected case-insensitive scheme, got %s err %v", token, err)
	}
}
