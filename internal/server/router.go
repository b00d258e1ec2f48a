package server

import (
	"time"

	"docbroker/internal/auth"
	"docbroker/internal/editor"
	"docbroker/internal/handler"
	"docbroker/internal/hub"
	"docbroker/internal/middleware"
	"github.com/gin-gonic/gin"
)

type Deps struct {
	Service     *editor.Service
	Hub         *hub.Hub
	TokenConfig auth.TokenConfig
}

func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	versionHandler := &handler.VersionHandler{}
	r.GET("/v1/version", versionHandler.Check)

	editorHandler := &handler.EditorHandler{Service: deps.Service, TokenConfig: deps.TokenConfig}

	// called by the document editing server, authenticated by the
	// per-session document token
	r.GET("/v1/editors/content/:userId/:key", editorHandler.Content)
	r.POST("/v1/editors/status/:userId/:key", editorHandler.Status)

	createLimiter := middleware.NewRateLimiter(30, time.Minute)

	protected := r.Group("/v1")
	protected.Use(middleware.RequireAuth(deps.TokenConfig))
	protected.POST("/editors", middleware.RateLimitPerUser(createLimiter), editorHandler.Create)
	protected.GET("/editors", editorHandler.Get)
	protected.GET("/editors/state/:key", editorHandler.State)

	wsHandler := &handler.WebSocketHandler{Hub: deps.Hub, TokenConfig: deps.TokenConfig}
	r.GET("/ws", wsHandler.Serve)

	return r
}
