package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"resumecanvas/internal/canvas"
	"resumecanvas/internal/database"
	"resumecanvas/internal/layout"
	"resumecanvas/internal/storage"
	"resumecanvas/internal/tasks"
)

// PreviewHandler 在布局保存后渲染简历缩略图。
// 数据库只记录对象键，签名链接在读取简历时生成。
type PreviewHandler struct {
	db       *gorm.DB
	storage  ObjectStore
	renderer PNGRenderer
	zoom     float64
	decode   []layout.DecodeOption
	logger   *slog.Logger
}

func NewPreviewHandler(db *gorm.DB, store ObjectStore, renderer PNGRenderer, zoom float64, stableIDs bool, logger *slog.Logger) *PreviewHandler {
	h := &PreviewHandler{
		db:       db,
		storage:  store,
		renderer: renderer,
		zoom:     zoom,
		logger:   logger,
	}
	if stableIDs {
		h.decode = append(h.decode, layout.WithStoredIDs())
	}
	return h
}

func (h *PreviewHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	log := h.logger

	var payload tasks.PreviewRenderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal preview payload failed", slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("resume_id", uint64(payload.ResumeID)),
	)

	l, err := loadLayout(ctx, h.db, payload.UserID, payload.ResumeID, h.decode)
	if errors.Is(err, canvas.ErrResumeNotFound) {
		log.Warn("resume not found, skipping task")
		return nil
	}
	if err != nil {
		log.Error("load resume layout failed", slog.Any("error", err))
		return err
	}

	png, err := h.renderer.RenderBytes(l, h.zoom)
	if err != nil {
		log.Error("render preview failed", slog.Any("error", err))
		return err
	}

	objectName := storage.PreviewKey(payload.UserID, payload.ResumeID)
	if err := h.storage.PutObject(ctx, objectName, png, "image/png"); err != nil {
		log.Error("upload preview failed", slog.Any("error", err))
		return err
	}

	var previous database.Resume
	if err := h.db.WithContext(ctx).Select("id", "preview_object_key").First(&previous, payload.ResumeID).Error; err != nil {
		log.Error("query resume failed", slog.Any("error", err))
		return err
	}

	if err := h.db.WithContext(ctx).
		Model(&database.Resume{}).
		Where("id = ?", payload.ResumeID).
		Update("preview_object_key", objectName).Error; err != nil {
		log.Error("update resume preview key failed", slog.Any("error", err))
		return err
	}

	if old := strings.TrimSpace(previous.PreviewObjectKey); old != "" {
		if err := h.storage.DeleteObject(ctx, old); err != nil {
			log.Warn("delete previous preview failed", slog.String("object_key", old), slog.Any("error", err))
		}
	}

	log.Info("preview render completed")
	return nil
}
