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
	"resumecanvas/internal/errcode"
	"resumecanvas/internal/layout"
	"resumecanvas/internal/pdf"
	"resumecanvas/internal/storage"
	"resumecanvas/internal/tasks"
)

// ExportHandler 负责消费 PDF 导出任务。
type ExportHandler struct {
	db        *gorm.DB
	storage   ObjectStore
	publisher Publisher
	render    PDFRenderer
	decode    []layout.DecodeOption
	logger    *slog.Logger

	finalAttempt func(context.Context) bool
}

// NewExportHandler 创建任务处理器。render 为 nil 时使用无头浏览器渲染。
func NewExportHandler(db *gorm.DB, store ObjectStore, publisher Publisher, render PDFRenderer, stableIDs bool, logger *slog.Logger) *ExportHandler {
	if render == nil {
		render = pdf.GenerateFromLayout
	}
	h := &ExportHandler{
		db:        db,
		storage:   store,
		publisher: publisher,
		render:    render,
		logger:    logger,

		finalAttempt: isFinalAsynqAttempt,
	}
	if stableIDs {
		h.decode = append(h.decode, layout.WithStoredIDs())
	}
	return h
}

// ProcessTask 实现 asynq.Handler。
func (h *ExportHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	var payload tasks.ExportPDFPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("resume_id", uint64(payload.ResumeID)),
		slog.Uint64("user_id", uint64(payload.UserID)),
	)
	log.Info("starting pdf export task")

	// 最后一次重试仍失败时，把状态落为 failed 并通知前端，避免一直停留在 pending。
	defer func() {
		if retErr == nil || !h.finalAttempt(ctx) {
			return
		}
		h.markFailed(ctx, log, payload, retErr)
	}()

	l, err := loadLayout(ctx, h.db, payload.UserID, payload.ResumeID, h.decode)
	if errors.Is(err, canvas.ErrResumeNotFound) {
		log.Warn("resume not found, skipping task")
		h.publish(ctx, log, payload.UserID, ExportNotifyMessage{
			Kind:          tasks.TypeExportPDF,
			Status:        NotifyError,
			ResumeID:      payload.ResumeID,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     errcode.ResourceMissing,
			ErrorMessage:  "resume not found",
		})
		return nil
	}
	if err != nil {
		log.Error("load resume layout failed", slog.Any("error", err))
		return err
	}

	pdfBytes, err := h.render(ctx, l)
	if err != nil {
		log.Error("render pdf failed", slog.Any("error", err))
		return err
	}

	objectName := storage.ExportKey(payload.UserID, payload.ResumeID)
	if err := h.storage.PutObject(ctx, objectName, pdfBytes, "application/pdf"); err != nil {
		log.Error("upload pdf to minio failed", slog.Any("error", err))
		return err
	}

	var previous database.Resume
	if err := h.db.WithContext(ctx).Select("id", "pdf_url").First(&previous, payload.ResumeID).Error; err != nil {
		log.Error("query resume failed", slog.Any("error", err))
		return err
	}

	if err := h.db.WithContext(ctx).
		Model(&database.Resume{}).
		Where("id = ?", payload.ResumeID).
		Updates(map[string]any{
			"pdf_url": objectName,
			"status":  database.ExportStatusCompleted,
		}).Error; err != nil {
		log.Error("update resume failed", slog.Any("error", err))
		return err
	}

	if old := strings.TrimSpace(previous.PdfUrl); old != "" && old != objectName {
		if err := h.storage.DeleteObject(ctx, old); err != nil {
			log.Warn("delete previous export failed", slog.String("object_key", old), slog.Any("error", err))
		}
	}

	notify := ExportNotifyMessage{
		Kind:          tasks.TypeExportPDF,
		Status:        NotifyCompleted,
		ResumeID:      payload.ResumeID,
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.OK,
	}
	// 导出已经完成，通知失败不重试整个任务。
	h.publish(ctx, log, payload.UserID, notify)

	log.Info("pdf export task completed", slog.String("object_key", objectName))
	return nil
}

func (h *ExportHandler) markFailed(ctx context.Context, log *slog.Logger, payload tasks.ExportPDFPayload, cause error) {
	if err := h.db.WithContext(ctx).
		Model(&database.Resume{}).
		Where("id = ?", payload.ResumeID).
		Update("status", database.ExportStatusFailed).Error; err != nil {
		log.Error("mark export failed", slog.Any("error", err))
	}

	notify := ExportNotifyMessage{
		Kind:          tasks.TypeExportPDF,
		Status:        NotifyError,
		ResumeID:      payload.ResumeID,
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.RenderFailed,
		ErrorMessage:  strings.TrimSpace(cause.Error()),
	}
	h.publish(ctx, log, payload.UserID, notify)
}

func (h *ExportHandler) publish(ctx context.Context, log *slog.Logger, userID uint, msg ExportNotifyMessage) {
	if err := h.publisher.Publish(ctx, userID, msg); err != nil {
		log.Error("publish redis notification failed",
			slog.String("status", msg.Status),
			slog.Any("error", err),
		)
	}
}
