package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestLoginAndValidate(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	a := NewAuthModule("secret", "admin", hash)
	ctx := context.Background()

	if _, err := a.LoginWithJWT(ctx, "admin", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := a.LoginWithJWT(ctx, "root", "hunter2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	token, err := a.LoginWithJWT(ctx, "admin", "hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	subject, err := a.ValidateTokenJWT(ctx, "Bearer "+token)
	if err != nil || subject != "admin" {
		t.Fatalf("validate: %q %v", subject, err)
	}
}

func TestLoginDisabledWithoutHash(t *testing.T) {
	a := NewAuthModule("secret", "admin", "")
	if _, err := a.LoginWithJWT(context.Background(), "admin", ""); !errors.Is(err, ErrLoginDisabled) {
		t.Fatalf("expected ErrLoginDisabled, got %v", err)
	}
}

func TestValidateRejectsBadTokens(t *testing.T) {
	a := NewAuthModule("secret", "admin", "")
	other := NewAuthModule("other", "admin", "")
	ctx := context.Background()

	foreign, _ := other.GenerateJWT("admin")
	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "admin",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}).SignedString([]byte("secret"))

	for name, token := range map[string]string{
		"empty":   "",
		"garbage": "Bearer not.a.token",
		"foreign": foreign,
		"expired": expired,
	} {
		if _, err := a.ValidateTokenJWT(ctx, token); err == nil {
			t.Fatalf("%s token accepted", name)
		}
	}
}
