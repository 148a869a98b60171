package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"resumecanvas/internal/api/middleware"
	"resumecanvas/internal/auth"
	"resumecanvas/internal/config"
)

// Deps 汇总路由所需的外部依赖。
type Deps struct {
	DB          *gorm.DB
	Redis       redis.UniversalClient
	Tasks       TaskEnqueuer
	Storage     ObjectStore
	AuthService *auth.AuthService
	Canvas      CanvasService
	Renderer    PreviewRenderer
	Generator   ContentGenerator
	Logger      *slog.Logger
}

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(router *gin.Engine, cfg *config.Config, deps Deps) {
	resumeHandler := NewResumeHandler(deps.DB, deps.Tasks, deps.Storage, deps.Canvas, cfg.Plans, cfg.Worker.ExportRetries)
	authHandler := NewAuthHandler(deps.DB, deps.AuthService, deps.Redis, deps.Logger, cfg.Auth, cfg.API.CookieDomain)
	wsHandler := NewWsHandler(deps.Redis, deps.AuthService, deps.Logger, cfg.API.Origins())
	canvasHandler := NewCanvasHandler(deps.Canvas, deps.Renderer)
	aiHandler := NewAIHandler(deps.DB, deps.Generator)
	publicHandler := NewPublicHandler(deps.DB, deps.Storage)

	authMiddleware := middleware.AuthMiddleware(deps.AuthService)

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)
		v1.GET("/public/:slug", publicHandler.GetBySlug)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authHandler.Logout)
			authGroup.GET("/me", authMiddleware, authHandler.Me)
			authGroup.POST("/change-password", authMiddleware, authHandler.ChangePassword)
		}

		resumeGroup := v1.Group("/resumes")
		resumeGroup.Use(authMiddleware)
		{
			resumeGroup.GET("", resumeHandler.ListResumes)
			resumeGroup.POST("", resumeHandler.CreateResume)
			resumeGroup.GET("/latest", resumeHandler.GetLatestResume)
			resumeGroup.GET("/:id", resumeHandler.GetResume)
			resumeGroup.PUT("/:id", resumeHandler.UpdateResume)
			resumeGroup.DELETE("/:id", resumeHandler.DeleteResume)
			resumeGroup.POST("/:id/export", resumeHandler.ExportResume)
			resumeGroup.GET("/:id/download-link", resumeHandler.GetDownloadLink)

			resumeGroup.POST("/:id/canvas", canvasHandler.Open)
			resumeGroup.POST("/:id/canvas/actions", canvasHandler.Actions)
			resumeGroup.POST("/:id/canvas/save", canvasHandler.Save)
			resumeGroup.DELETE("/:id/canvas", canvasHandler.Close)
			resumeGroup.GET("/:id/canvas/preview", canvasHandler.Preview)
		}

		aiGroup := v1.Group("/ai")
		aiGroup.Use(authMiddleware)
		{
			aiGroup.POST("/generate", aiHandler.Generate)
		}
	}
}
