package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for a failed login
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrLoginDisabled is returned when no admin password hash is configured
var ErrLoginDisabled = errors.New("login disabled")

const tokenTTL = 24 * time.Hour

type AuthModule struct {
	JWTSecret    string
	username     string
	passwordHash []byte
}

// NewAuthModule creates the token issuer. passwordHash is the bcrypt hash
// of the admin password; login is disabled when it is empty.
func NewAuthModule(JWTSecret, username, passwordHash string) *AuthModule {
	return &AuthModule{
		JWTSecret:    JWTSecret,
		username:     username,
		passwordHash: []byte(passwordHash),
	}
}

// HashPassword produces a hash suitable for the admin password setting
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// GenerateJWT signs a token for subject
func (a *AuthModule) GenerateJWT(subject string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.JWTSecret))
}

func (a *AuthModule) LoginWithJWT(ctx context.Context, username, password string) (string, error) {
	if len(a.passwordHash) == 0 {
		return "", ErrLoginDisabled
	}
	if username != a.username {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return a.GenerateJWT(username)
}

// ValidateTokenJWT checks a bearer token and returns its subject
func (a *AuthModule) ValidateTokenJWT(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return "", errors.New("missing token")
	}

	var claims jwt.RegisteredClaims
	parsedToken, err := jwt.ParseWithClaims(token, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(a.JWTSecret), nil
	})
	if err != nil {
		return "", err
	}
	if !parsedToken.Valid || claims.Subject == "" {
		return "", errors.New("invalid token")
	}
	return claims.Subject, nil
}
