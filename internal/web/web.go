package web

import (
	"net/http"

	"beegreen/auth"
	"beegreen/internal/engine"
	"beegreen/internal/web/api"
	"beegreen/internal/web/middleware"

	"github.com/gin-gonic/gin"
)

// EngineInterface defines the methods needed from the engine
type EngineInterface interface {
	api.Engine
	OnEvent(fn func(engine.Event))
	Connected() bool
}

type WebServer struct {
	router *gin.Engine
	hub    *Hub
}

// NewWebServer wires the API. authModule may be nil to serve without tokens.
func NewWebServer(eng EngineInterface, authModule *auth.AuthModule) *WebServer {
	router := gin.Default()
	hub := NewHub()
	eng.OnEvent(hub.Publish)

	middlewareManager := middleware.NewMiddlewareManager(authModule)
	if authModule != nil {
		api.RegisterAuthRoutes(router, authModule)
	}

	r := router.Group("/api")
	api.RegisterDeviceRoutes(r, middlewareManager, eng)
	api.RegisterScheduleRoutes(r, middlewareManager, eng)
	r.GET("/ws", middlewareManager.RequireAuth(), hub.Serve)

	router.GET("/healthz", func(c *gin.Context) {
		if !eng.Connected() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "mqtt": "disconnected"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mqtt": "connected"})
	})

	return &WebServer{router: router, hub: hub}
}

// Handler exposes the router for embedding and tests
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Hub returns the event stream hub
func (ws *WebServer) Hub() *Hub {
	return ws.hub
}

func (ws *WebServer) Start(addr string) error {
	return ws.router.Run(addr)
}
