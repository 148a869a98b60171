package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"resumecanvas/internal/api/middleware"
	"resumecanvas/internal/config"
	"resumecanvas/internal/database"
	"resumecanvas/internal/layout"
	"resumecanvas/internal/storage"
	"resumecanvas/internal/tasks"
)

// TaskEnqueuer 由 *asynq.Client 实现。
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ObjectStore 是 API 侧需要的对象存储能力，由 *storage.Client 实现。
type ObjectStore interface {
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	DownloadURL(ctx context.Context, key, filename string, ttl time.Duration) (string, error)
	DeletePrefix(ctx context.Context, prefix string) error
}

// SessionCloser 丢弃画布会话，由 *canvas.Service 实现。
type SessionCloser interface {
	Close(ctx context.Context, userID, resumeID uint) error
}

// ResumeHandler 负责处理与简历相关的 API 请求。
type ResumeHandler struct {
	db            *gorm.DB
	tasks         TaskEnqueuer
	storage       ObjectStore
	sessions      SessionCloser
	plans         config.PlansConfig
	exportRetries int
}

// NewResumeHandler 构造 ResumeHandler。
func NewResumeHandler(db *gorm.DB, taskClient TaskEnqueuer, storageClient ObjectStore, sessions SessionCloser, plans config.PlansConfig, exportRetries int) *ResumeHandler {
	return &ResumeHandler{
		db:            db,
		tasks:         taskClient,
		storage:       storageClient,
		sessions:      sessions,
		plans:         plans,
		exportRetries: exportRetries,
	}
}

var errInvalidResumeID = errors.New("invalid resume id")

const (
	downloadURLTTL = 5 * time.Minute
	previewURLTTL  = time.Hour
)

type createResumeRequest struct {
	Title        string          `json:"title" binding:"required,max=255"`
	Content      json.RawMessage `json:"content"`
	CanvasLayout json.RawMessage `json:"canvas_layout"`
}

// updateResumeRequest 只更新请求中出现的字段。
type updateResumeRequest struct {
	Title        *string         `json:"title" binding:"omitempty,max=255"`
	Content      json.RawMessage `json:"content"`
	CanvasLayout json.RawMessage `json:"canvas_layout"`
	IsPublic     *bool           `json:"is_public"`
	PublicSlug   *string         `json:"public_slug" binding:"omitempty,max=64"`
}

type resumeListItem struct {
	ID              uint      `json:"id"`
	Title           string    `json:"title"`
	IsPublic        bool      `json:"is_public"`
	PublicSlug      string    `json:"public_slug,omitempty"`
	PreviewImageURL string    `json:"preview_image_url,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type resumeResponse struct {
	ID              uint           `json:"id"`
	Title           string         `json:"title"`
	Content         datatypes.JSON `json:"content"`
	CanvasLayout    datatypes.JSON `json:"canvas_layout"`
	IsPublic        bool           `json:"is_public"`
	PublicSlug      string         `json:"public_slug,omitempty"`
	Status          string         `json:"status,omitempty"`
	PreviewImageURL string         `json:"preview_image_url,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func newResumeResponse(r database.Resume) resumeResponse {
	resp := resumeResponse{
		ID:           r.ID,
		Title:        r.Title,
		Content:      r.Content,
		CanvasLayout: r.CanvasLayout,
		IsPublic:     r.IsPublic,
		Status:       r.Status,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.PublicSlug != nil {
		resp.PublicSlug = *r.PublicSlug
	}
	return resp
}

func (h *ResumeHandler) response(c *gin.Context, r database.Resume) resumeResponse {
	resp := newResumeResponse(r)
	resp.PreviewImageURL = previewURL(c, h.storage, r.PreviewObjectKey)
	return resp
}

// previewURL 在读取时为缩略图签发短期链接。没有缩略图或签名失败时返回空串，不影响主体数据。
func previewURL(c *gin.Context, store ObjectStore, key string) string {
	key = strings.TrimSpace(key)
	if key == "" || store == nil {
		return ""
	}
	u, err := store.PresignedURL(c.Request.Context(), key, previewURLTTL)
	if err != nil {
		middleware.LoggerFromContext(c).Warn("presign preview failed",
			slog.String("object_key", key),
			slog.Any("error", err),
		)
		return ""
	}
	return u
}

// ListResumes 列出用户全部简历，最近更新的在前。
func (h *ResumeHandler) ListResumes(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var resumes []database.Resume
	if err := h.db.WithContext(c.Request.Context()).
		Select("id", "title", "is_public", "public_slug", "preview_object_key", "updated_at").
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&resumes).Error; err != nil {
		Internal(c, "failed to list resumes")
		return
	}

	items := make([]resumeListItem, 0, len(resumes))
	for _, r := range resumes {
		item := resumeListItem{
			ID:              r.ID,
			Title:           r.Title,
			IsPublic:        r.IsPublic,
			PreviewImageURL: previewURL(c, h.storage, r.PreviewObjectKey),
			UpdatedAt:       r.UpdatedAt,
		}
		if r.PublicSlug != nil {
			item.PublicSlug = *r.PublicSlug
		}
		items = append(items, item)
	}

	c.JSON(http.StatusOK, gin.H{"resumes": items})
}

// CreateResume 保存一份新的简历，超过档位限额则提示升级。
func (h *ResumeHandler) CreateResume(c *gin.Context) {
	var req createResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "title is required")
		return
	}

	userID, ok := middleware.UserID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	log := middleware.LoggerFromContext(c)

	var user database.User
	if err := h.db.WithContext(ctx).Select("id", "subscription_tier").First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			AbortUnauthorized(c)
			return
		}
		Internal(c, "failed to load user")
		return
	}

	if limit := h.resumeLimit(user); limit > 0 {
		var count int64
		if err := h.db.WithContext(ctx).
			Model(&database.Resume{}).
			Where("user_id = ?", userID).
			Count(&count).Error; err != nil {
			Internal(c, "failed to count resumes")
			return
		}
		if count >= int64(limit) {
			Forbidden(c, "resume limit reached for your plan, upgrade to create more resumes")
			return
		}
	}

	content := datatypes.JSON("{}")
	if isJSONObject(req.Content) {
		content = datatypes.JSON(req.Content)
	}
	canvasLayout := defaultCanvasLayout()
	if isJSONObject(req.CanvasLayout) {
		canvasLayout = datatypes.JSON(req.CanvasLayout)
	}

	rec := database.Resume{
		Title:        strings.TrimSpace(req.Title),
		Content:      content,
		CanvasLayout: canvasLayout,
		UserID:       userID,
	}
	if err := h.db.WithContext(ctx).Create(&rec).Error; err != nil {
		log.Error("create resume failed", slog.Any("error", err))
		Internal(c, "failed to create resume")
		return
	}

	if err := h.setActiveResumeID(ctx, userID, &rec.ID); err != nil {
		Internal(c, "failed to mark active resume")
		return
	}

	c.JSON(http.StatusCreated, h.response(c, rec))
}

// GetLatestResume 返回用户正在编辑的简历，没有时回落到最近更新的一份。
func (h *ResumeHandler) GetLatestResume(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	rec, err := h.findActiveOrLatestResume(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "resume not found")
			return
		}
		Internal(c, "failed to query latest resume")
		return
	}

	c.JSON(http.StatusOK, h.response(c, *rec))
}

// GetResume 返回指定 ID 的简历并标记为当前正在编辑。
func (h *ResumeHandler) GetResume(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	rec, ok := h.resumeOrAbort(c, userID)
	if !ok {
		return
	}

	if err := h.setActiveResumeID(c.Request.Context(), userID, &rec.ID); err != nil {
		Internal(c, "failed to mark active resume")
		return
	}

	c.JSON(http.StatusOK, h.response(c, *rec))
}

// UpdateResume 部分更新简历：只写入请求中出现的字段。
func (h *ResumeHandler) UpdateResume(c *gin.Context) {
	var req updateResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	userID, ok := middleware.UserID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	rec, ok := h.resumeOrAbort(c, userID)
	if !ok {
		return
	}

	updates := map[string]any{}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			BadRequest(c, "title must not be empty")
			return
		}
		updates["title"] = title
	}
	if len(req.Content) > 0 {
		if !isJSONObject(req.Content) {
			BadRequest(c, "content must be an object")
			return
		}
		updates["content"] = datatypes.JSON(req.Content)
	}
	if len(req.CanvasLayout) > 0 {
		if !isJSONObject(req.CanvasLayout) {
			BadRequest(c, "canvas_layout must be an object")
			return
		}
		updates["canvas_layout"] = datatypes.JSON(req.CanvasLayout)
	}
	if req.PublicSlug != nil {
		slug := strings.TrimSpace(*req.PublicSlug)
		if slug == "" {
			updates["public_slug"] = nil
		} else {
			if !validSlug(slug) {
				BadRequest(c, "public_slug may only contain letters, digits and dashes")
				return
			}
			updates["public_slug"] = slug
		}
	}
	if req.IsPublic != nil {
		updates["is_public"] = *req.IsPublic
		_, slugProvided := updates["public_slug"]
		if *req.IsPublic && rec.PublicSlug == nil && !slugProvided {
			updates["public_slug"] = newPublicSlug()
		}
	}

	ctx := c.Request.Context()
	if len(updates) > 0 {
		if slug, ok := updates["public_slug"].(string); ok {
			taken, err := h.slugTaken(ctx, slug, rec.ID)
			if err != nil {
				Internal(c, "failed to check public slug")
				return
			}
			if taken {
				Conflict(c, "public slug already taken")
				return
			}
		}
		if err := h.db.WithContext(ctx).Model(rec).Updates(updates).Error; err != nil {
			Internal(c, "failed to update resume")
			return
		}
		if err := h.db.WithContext(ctx).First(rec, rec.ID).Error; err != nil {
			Internal(c, "failed to reload resume")
			return
		}
	}

	// 内容或布局被直接改写后，旧的画布会话不能再保存回去。
	_, contentChanged := updates["content"]
	_, layoutChanged := updates["canvas_layout"]
	if (contentChanged || layoutChanged) && h.sessions != nil {
		if err := h.sessions.Close(ctx, userID, rec.ID); err != nil {
			middleware.LoggerFromContext(c).Warn("drop canvas session failed", slog.Any("error", err))
		}
	}

	c.JSON(http.StatusOK, h.response(c, *rec))
}

// DeleteResume 删除指定简历及其导出文件与预览图，并回落到最近一份作为当前简历。
func (h *ResumeHandler) DeleteResume(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	rec, ok := h.resumeOrAbort(c, userID)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	log := middleware.LoggerFromContext(c).With(slog.Uint64("resume_id", uint64(rec.ID)))

	if err := h.db.WithContext(ctx).Delete(&database.Resume{}, rec.ID).Error; err != nil {
		Internal(c, "failed to delete resume")
		return
	}

	for _, prefix := range storage.ResumePrefixes(userID, rec.ID) {
		if err := h.storage.DeletePrefix(ctx, prefix); err != nil {
			log.Warn("delete resume objects failed", slog.String("prefix", prefix), slog.Any("error", err))
		}
	}
	if h.sessions != nil {
		if err := h.sessions.Close(ctx, userID, rec.ID); err != nil {
			log.Warn("drop canvas session failed", slog.Any("error", err))
		}
	}

	if err := h.assignLatestResumeAsActive(ctx, userID); err != nil {
		Internal(c, "failed to update active resume")
		return
	}

	c.Status(http.StatusNoContent)
}

// ExportResume 将 PDF 导出任务入队并立即返回 202。结果通过 WebSocket 通知。
func (h *ResumeHandler) ExportResume(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	rec, ok := h.resumeOrAbort(c, userID)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	task, err := tasks.NewExportPDFTask(userID, rec.ID, middleware.GetCorrelationID(c))
	if err != nil {
		Internal(c, "failed to create task")
		return
	}

	info, err := h.tasks.EnqueueContext(ctx, task, asynq.MaxRetry(h.exportRetries))
	if err != nil {
		middleware.LoggerFromContext(c).Error("enqueue pdf export failed", slog.Any("error", err))
		Internal(c, "failed to enqueue pdf export")
		return
	}

	if err := h.db.WithContext(ctx).Model(rec).Update("status", database.ExportStatusPending).Error; err != nil {
		middleware.LoggerFromContext(c).Warn("mark export pending failed", slog.Any("error", err))
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "PDF export request accepted",
		"task_id": info.ID,
	})
}

// GetDownloadLink 生成简历 PDF 的预签名下载链接。
func (h *ResumeHandler) GetDownloadLink(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	rec, ok := h.resumeOrAbort(c, userID)
	if !ok {
		return
	}

	if rec.PdfUrl == "" || rec.Status != database.ExportStatusCompleted {
		Conflict(c, "pdf not ready")
		return
	}

	signedURL, err := h.storage.DownloadURL(c.Request.Context(), rec.PdfUrl, downloadFilename(rec.Title), downloadURLTTL)
	if err != nil {
		Internal(c, "failed to generate download link")
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": signedURL})
}

func (h *ResumeHandler) resumeLimit(user database.User) int {
	if user.IsPro() {
		return h.plans.ProMaxResumes
	}
	return h.plans.FreeMaxResumes
}

// resumeOrAbort 读取路径中的简历并校验归属，失败时写入响应。
func (h *ResumeHandler) resumeOrAbort(c *gin.Context, userID uint) (*database.Resume, bool) {
	rec, err := getResumeForUser(c.Request.Context(), h.db, c.Param("id"), userID)
	if err != nil {
		switch {
		case errors.Is(err, errInvalidResumeID):
			BadRequest(c, "invalid resume id")
		case errors.Is(err, gorm.ErrRecordNotFound):
			NotFound(c, "resume not found")
		default:
			Internal(c, "failed to query resume")
		}
		return nil, false
	}
	return rec, true
}

func (h *ResumeHandler) setActiveResumeID(ctx context.Context, userID uint, resumeID *uint) error {
	var value any
	if resumeID != nil {
		value = *resumeID
	}
	return h.db.WithContext(ctx).Model(&database.User{}).
		Where("id = ?", userID).
		Update("active_resume_id", value).Error
}

func (h *ResumeHandler) assignLatestResumeAsActive(ctx context.Context, userID uint) error {
	var latest database.Resume
	err := h.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at desc").
		First(&latest).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return h.setActiveResumeID(ctx, userID, nil)
	case err != nil:
		return err
	default:
		return h.setActiveResumeID(ctx, userID, &latest.ID)
	}
}

func (h *ResumeHandler) findActiveOrLatestResume(ctx context.Context, userID uint) (*database.Resume, error) {
	var user database.User
	if err := h.db.WithContext(ctx).
		Select("id", "active_resume_id").
		First(&user, userID).Error; err != nil {
		return nil, err
	}

	if user.ActiveResumeID != nil {
		var rec database.Resume
		err := h.db.WithContext(ctx).
			Where("id = ? AND user_id = ?", *user.ActiveResumeID, userID).
			First(&rec).Error
		if err == nil {
			return &rec, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	var latest database.Resume
	if err := h.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at desc").
		First(&latest).Error; err != nil {
		return nil, err
	}
	if err := h.setActiveResumeID(ctx, userID, &latest.ID); err != nil {
		return nil, err
	}
	return &latest, nil
}

func (h *ResumeHandler) slugTaken(ctx context.Context, slug string, exceptID uint) (bool, error) {
	var count int64
	err := h.db.WithContext(ctx).
		Model(&database.Resume{}).
		Where("public_slug = ? AND id <> ?", slug, exceptID).
		Count(&count).Error
	return count > 0, err
}

func getResumeForUser(ctx context.Context, db *gorm.DB, idParam string, userID uint) (*database.Resume, error) {
	resumeID, err := parseResumeID(idParam)
	if err != nil {
		return nil, err
	}

	var rec database.Resume
	if err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", resumeID, userID).
		First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func parseResumeID(idParam string) (uint, error) {
	id, err := strconv.ParseUint(idParam, 10, 64)
	if err != nil || id == 0 {
		return 0, errInvalidResumeID
	}
	return uint(id), nil
}

func defaultCanvasLayout() datatypes.JSON {
	raw, _ := json.Marshal(layout.EmptyDocument())
	return datatypes.JSON(raw)
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed))
}

func newPublicSlug() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func validSlug(slug string) bool {
	for _, r := range slug {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
		default:
			return false
		}
	}
	return slug != ""
}

func downloadFilename(title string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '"', '\\', '/', '\n', '\r':
			return '_'
		}
		return r
	}, strings.TrimSpace(title))
	if name == "" {
		name = "resume"
	}
	return name + ".pdf"
}
