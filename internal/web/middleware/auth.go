package middleware

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireAuth checks the bearer token. Browsers cannot set headers on
// websocket upgrades, so a token query parameter is accepted as well.
func (m *MiddlewareManager) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.auth == nil {
			c.Next()
			return
		}
		token := c.GetHeader("Authorization")
		if token == "" {
			token = c.Query("token")
		}
		subject, err := m.auth.ValidateTokenJWT(c, token)
		if err != nil {
			log.Printf("WEB: Authentication error: %v", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}

		c.Set("subject", subject)

		c.Next()
	}
}
