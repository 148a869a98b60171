package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"resumecanvas/internal/config"
	"resumecanvas/internal/database"
	"resumecanvas/internal/metrics"
	"resumecanvas/internal/render"
	"resumecanvas/internal/storage"
	"resumecanvas/internal/tasks"
	"resumecanvas/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	log.Println("database connection ready for worker")

	storageClient, err := storage.NewClient(context.Background(), cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	log.Printf("storage client ready, bucket=%s", cfg.MinIO.Bucket)

	redisAddr := cfg.Redis.Addr()
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	renderer, err := render.NewRenderer(cfg.Render)
	if err != nil {
		log.Fatalf("init renderer: %v", err)
	}
	defer renderer.Close()

	server := asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
	})

	publisher := worker.NewRedisPublisher(redisClient)
	exportHandler := worker.NewExportHandler(db, storageClient, publisher, nil, cfg.Canvas.StableIDs, logger)
	previewHandler := worker.NewPreviewHandler(db, storageClient, renderer, cfg.Render.PreviewZoom, cfg.Canvas.StableIDs, logger)

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeExportPDF, exportHandler)
	mux.Handle(tasks.TypePreviewRender, previewHandler)

	logger.Info("worker service started",
		slog.String("redis_addr", redisAddr),
		slog.Int("concurrency", cfg.Worker.Concurrency),
	)
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}
