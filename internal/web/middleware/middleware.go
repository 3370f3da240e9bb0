package middleware

import (
	"beegreen/auth"
)

type MiddlewareManager struct {
	auth *auth.AuthModule
}

// NewMiddlewareManager creates the manager; a nil auth module disables
// authentication for local-only deployments
func NewMiddlewareManager(auth *auth.AuthModule) *MiddlewareManager {
	return &MiddlewareManager{
		auth: auth,
	}
}
