package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"resumecanvas/internal/database"
)

// PublicHandler 提供无需登录的公开简历访问。
type PublicHandler struct {
	db      *gorm.DB
	storage ObjectStore
}

func NewPublicHandler(db *gorm.DB, storageClient ObjectStore) *PublicHandler {
	return &PublicHandler{db: db, storage: storageClient}
}

type publicResumeResponse struct {
	Title           string `json:"title"`
	Content         any    `json:"content"`
	CanvasLayout    any    `json:"canvas_layout"`
	PreviewImageURL string `json:"preview_image_url,omitempty"`
}

// GetBySlug 返回已公开的简历。未公开与不存在统一返回 404。
func (h *PublicHandler) GetBySlug(c *gin.Context) {
	slug := c.Param("slug")
	if !validSlug(slug) {
		NotFound(c, "resume not found")
		return
	}

	var rec database.Resume
	err := h.db.WithContext(c.Request.Context()).
		Select("id", "title", "content", "canvas_layout", "preview_object_key").
		Where("public_slug = ? AND is_public = ?", slug, true).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "resume not found")
			return
		}
		Internal(c, "failed to query resume")
		return
	}

	c.JSON(http.StatusOK, publicResumeResponse{
		Title:           rec.Title,
		Content:         rec.Content,
		CanvasLayout:    rec.CanvasLayout,
		PreviewImageURL: previewURL(c, h.storage, rec.PreviewObjectKey),
	})
}
