package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"resumecanvas/internal/api/middleware"
	"resumecanvas/internal/config"
	"resumecanvas/internal/metrics"
)

// NewRouter 构建 Gin 路由引擎：公共中间件、健康检查与受内部密钥保护的 /metrics。
func NewRouter(cfg *config.Config, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(
		middleware.CorrelationIDMiddleware(),
		middleware.SlogLoggerMiddleware(logger),
		gin.Recovery(),
		metrics.GinMiddleware(),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	internal := router.Group("/internal")
	internal.Use(middleware.InternalSecretMiddleware(cfg.API.InternalSecret))
	internal.GET("/metrics", gin.WrapH(metrics.Handler()))

	return router
}
