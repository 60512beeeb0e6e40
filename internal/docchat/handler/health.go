package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docchat/internal/docchat/biz"
	"github.com/kart-io/docchat/internal/docchat/metrics"
)

// HealthHandler serves liveness and aggregate metrics endpoints.
type HealthHandler struct {
	registry      *biz.SessionRegistry
	embedProvider string
	chatProvider  string
	startTime     time.Time
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(registry *biz.SessionRegistry, embedProvider, chatProvider string) *HealthHandler {
	return &HealthHandler{
		registry:      registry,
		embedProvider: embedProvider,
		chatProvider:  chatProvider,
		startTime:     time.Now(),
	}
}

// Health reports liveness.
//
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	WriteSuccess(c, map[string]any{
		"status":         "ok",
		"uptime_seconds": time.Since(h.startTime).Seconds(),
	})
}

// Stats reports aggregate engine metrics and live session count.
//
// GET /stats
func (h *HealthHandler) Stats(c *gin.Context) {
	stats := metrics.GetEngineMetrics().Stats()
	stats["live_sessions"] = h.registry.Count()
	stats["embed_provider"] = h.embedProvider
	stats["chat_provider"] = h.chatProvider

	WriteSuccess(c, stats)
}
