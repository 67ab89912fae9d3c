package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketchat-server/internal/auth"
	"github.com/vovakirdan/marketchat-server/internal/config"
	"github.com/vovakirdan/marketchat-server/internal/core"
	"github.com/vovakirdan/marketchat-server/internal/store"
)

// NewServer builds the HTTP server: health, WebSocket endpoint and REST API.
func NewServer(hub *core.Hub, gate *auth.Gatekeeper, st store.Store, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/ws", gin.WrapH(NewWSHandler(hub, gate, cfg, logger)))

	conversations := NewConversationHandlers(hub, st, cfg.StoreTimeout, logger)

	api := router.Group("/api")
	api.Use(AuthMiddleware(gate, logger))
	{
		api.POST("/conversations", conversations.Create)
		api.GET("/conversations", conversations.List)
		api.GET("/conversations/:id", conversations.Get)
		api.GET("/conversations/:id/messages", conversations.Messages)
		api.GET("/presence", conversations.Presence)
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
