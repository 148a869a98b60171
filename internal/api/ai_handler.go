package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"resumecanvas/internal/ai"
	"resumecanvas/internal/api/middleware"
	"resumecanvas/internal/database"
)

// ContentGenerator 由 *ai.Generator 实现。
type ContentGenerator interface {
	Generate(ctx context.Context, genType string, data json.RawMessage) (ai.Result, error)
}

// AIHandler 提供 AI 写作辅助，仅对 Pro 用户开放。
type AIHandler struct {
	db        *gorm.DB
	generator ContentGenerator
}

func NewAIHandler(db *gorm.DB, generator ContentGenerator) *AIHandler {
	return &AIHandler{db: db, generator: generator}
}

type aiGenerateRequest struct {
	Type     string          `json:"type" binding:"required"`
	Data     json.RawMessage `json:"data"`
	ResumeID *uint           `json:"resume_id"`
}

// Generate 调用模型并记录一次生成。
func (h *AIHandler) Generate(c *gin.Context) {
	var req aiGenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "type is required")
		return
	}

	userID, ok := middleware.UserID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	if h.generator == nil {
		Error(c, http.StatusServiceUnavailable, "AI generation is not configured")
		return
	}

	ctx := c.Request.Context()
	log := middleware.LoggerFromContext(c).With(slog.String("generation_type", req.Type))

	var user database.User
	if err := h.db.WithContext(ctx).Select("id", "subscription_tier").First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			AbortUnauthorized(c)
			return
		}
		Internal(c, "failed to load user")
		return
	}
	if !user.IsPro() {
		Forbidden(c, "AI features are only available for Pro users, please upgrade your subscription")
		return
	}

	if req.ResumeID != nil {
		var count int64
		if err := h.db.WithContext(ctx).Model(&database.Resume{}).
			Where("id = ? AND user_id = ?", *req.ResumeID, userID).
			Count(&count).Error; err != nil {
			Internal(c, "failed to query resume")
			return
		}
		if count == 0 {
			NotFound(c, "resume not found")
			return
		}
	}

	result, err := h.generator.Generate(ctx, req.Type, req.Data)
	if err != nil {
		if errors.Is(err, ai.ErrInvalidRequest) {
			BadRequest(c, err.Error())
			return
		}
		log.Error("ai generation failed", slog.Any("error", err))
		BadGateway(c, "generation failed")
		return
	}

	record := database.AIGeneration{
		UserID:         userID,
		ResumeID:       req.ResumeID,
		Prompt:         result.Prompt,
		Response:       string(result.Output),
		GenerationType: result.Type,
	}
	if err := h.db.WithContext(ctx).Create(&record).Error; err != nil {
		// 生成已完成，记录失败不影响返回结果。
		log.Warn("record ai generation failed", slog.Any("error", err))
	}

	c.JSON(http.StatusOK, gin.H{"result": result.Output})
}
