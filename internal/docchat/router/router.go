// Package router provides docchat service routing.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docchat/internal/docchat/handler"
)

// Handlers groups the handlers the router wires up.
type Handlers struct {
	Document *handler.DocumentHandler
	Session  *handler.SessionHandler
	Chat     *handler.ChatHandler
	Health   *handler.HealthHandler
}

// Register registers the docchat routes on the gin engine.
func Register(engine *gin.Engine, h *Handlers) {
	logger.Info("Registering docchat routes...")

	v1 := engine.Group("/v1")
	{
		documents := v1.Group("/documents")
		{
			documents.POST("", h.Document.Upload)
			documents.GET("/:user_id", h.Document.List)
		}

		sessions := v1.Group("/sessions")
		{
			sessions.POST("", h.Session.Create)
			sessions.GET("/:session_id", h.Session.Stats)
			sessions.DELETE("/:session_id", h.Session.Delete)
			sessions.POST("/:session_id/questions", h.Session.Ask)
		}
	}

	engine.GET("/ws/chat", h.Chat.Chat)

	engine.GET("/health", h.Health.Health)
	engine.GET("/stats", h.Health.Stats)

	logger.Info("HTTP routes registered")
}
