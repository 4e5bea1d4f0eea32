package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sipadmin/funds-engine/internal/config"
	"github.com/sipadmin/funds-engine/internal/metrics"
)

// NewRouter wires middleware, the admin API and the operational endpoints.
func NewRouter(h *Handler, rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware(log))
	r.Use(metrics.Middleware())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/", RateLimitMiddleware(rl.RPS, rl.Burst))
	RegisterHandlers(api, h)
	return r
}
