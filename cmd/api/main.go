package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"resumecanvas/internal/ai"
	"resumecanvas/internal/api"
	"resumecanvas/internal/api/middleware"
	"resumecanvas/internal/auth"
	"resumecanvas/internal/canvas"
	"resumecanvas/internal/config"
	"resumecanvas/internal/database"
	"resumecanvas/internal/render"
	"resumecanvas/internal/storage"
	"resumecanvas/internal/tasks"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}
	logger.Info("database ready",
		slog.String("host", cfg.Database.Host),
		slog.String("db", cfg.Database.Name),
	)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()})
	defer asynqClient.Close()

	storageClient, err := storage.NewClient(context.Background(), cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}

	privateKey, err := os.ReadFile(cfg.Auth.PrivateKeyPath)
	if err != nil {
		log.Fatalf("read private key: %v", err)
	}
	publicKey, err := os.ReadFile(cfg.Auth.PublicKeyPath)
	if err != nil {
		log.Fatalf("read public key: %v", err)
	}
	authService, err := auth.NewAuthService(privateKey, publicKey, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	if err != nil {
		log.Fatalf("init auth service: %v", err)
	}

	renderer, err := render.NewRenderer(cfg.Render)
	if err != nil {
		log.Fatalf("init renderer: %v", err)
	}
	defer renderer.Close()

	canvasService := canvas.NewService(
		canvas.NewGormRepository(db),
		canvas.NewRedisSessionStore(redisClient, cfg.Canvas.SessionTTL),
		canvas.Options{
			SessionTTL: cfg.Canvas.SessionTTL,
			StableIDs:  cfg.Canvas.StableIDs,
			OnSaved:    enqueuePreview(asynqClient, logger),
			Logger:     logger,
		},
	)

	// 未配置密钥时 AI 接口返回 503，其余功能照常启动。
	var generator api.ContentGenerator
	aiClient, err := ai.NewClient(context.Background(), cfg.AI)
	if err != nil {
		logger.Warn("ai generation disabled", slog.Any("error", err))
	} else {
		generator = ai.NewGenerator(aiClient)
	}

	router := api.NewRouter(cfg, logger)
	api.RegisterRoutes(router, cfg, api.Deps{
		DB:          db,
		Redis:       redisClient,
		Tasks:       asynqClient,
		Storage:     storageClient,
		AuthService: authService,
		Canvas:      canvasService,
		Renderer:    renderer,
		Generator:   generator,
		Logger:      logger,
	})

	address := fmt.Sprintf(":%d", cfg.API.Port)
	logger.Info("api listening", slog.String("addr", address))
	if err := router.Run(address); err != nil {
		log.Fatalf("failed to start api server: %v", err)
	}
}

// enqueuePreview 在布局保存后投递缩略图渲染任务。失败只记录日志，保存本身已成功。
func enqueuePreview(client *asynq.Client, logger *slog.Logger) canvas.SavedFunc {
	return func(ctx context.Context, userID, resumeID uint) {
		task, err := tasks.NewPreviewRenderTask(userID, resumeID, middleware.CorrelationIDFromContext(ctx))
		if err != nil {
			logger.Error("create preview task failed", slog.Any("error", err))
			return
		}
		if _, err := client.EnqueueContext(ctx, task); err != nil {
			logger.Warn("enqueue preview task failed",
				slog.Uint64("resume_id", uint64(resumeID)),
				slog.Any("error", err),
			)
		}
	}
}
