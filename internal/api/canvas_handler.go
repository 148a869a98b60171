package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"resumecanvas/internal/api/middleware"
	"resumecanvas/internal/canvas"
	"resumecanvas/internal/layout"
)

// CanvasService 由 *canvas.Service 实现。
type CanvasService interface {
	Open(ctx context.Context, userID, resumeID uint) (canvas.View, error)
	Apply(ctx context.Context, userID, resumeID uint, actions []layout.Action) (canvas.View, error)
	Close(ctx context.Context, userID, resumeID uint) error
	Current(ctx context.Context, userID, resumeID uint) (layout.Layout, error)
}

// PreviewRenderer 由 *render.Renderer 实现。
type PreviewRenderer interface {
	RenderBytes(l layout.Layout, zoom float64) ([]byte, error)
}

// CanvasHandler 暴露交互式画布：打开会话、提交拖拽/选中/缩放动作、保存与预览。
type CanvasHandler struct {
	canvas   CanvasService
	renderer PreviewRenderer
}

func NewCanvasHandler(service CanvasService, renderer PreviewRenderer) *CanvasHandler {
	return &CanvasHandler{canvas: service, renderer: renderer}
}

type canvasActionsRequest struct {
	Actions []layout.Action `json:"actions" binding:"required,min=1,max=200"`
}

// Open 加载简历并新建画布会话（对应前端挂载画布）。
func (h *CanvasHandler) Open(c *gin.Context) {
	userID, resumeID, ok := canvasParams(c)
	if !ok {
		return
	}

	view, err := h.canvas.Open(c.Request.Context(), userID, resumeID)
	if err != nil {
		h.fail(c, err, view)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Actions 按顺序应用一批画布动作。
func (h *CanvasHandler) Actions(c *gin.Context) {
	var req canvasActionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	userID, resumeID, ok := canvasParams(c)
	if !ok {
		return
	}

	view, err := h.canvas.Apply(c.Request.Context(), userID, resumeID, req.Actions)
	if err != nil {
		h.fail(c, err, view)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Save 将当前画布写回简历。
func (h *CanvasHandler) Save(c *gin.Context) {
	userID, resumeID, ok := canvasParams(c)
	if !ok {
		return
	}

	view, err := h.canvas.Apply(c.Request.Context(), userID, resumeID, []layout.Action{{Type: layout.ActionSave}})
	if err != nil {
		h.fail(c, err, view)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Close 丢弃会话，未保存的修改随之丢失。
func (h *CanvasHandler) Close(c *gin.Context) {
	userID, resumeID, ok := canvasParams(c)
	if !ok {
		return
	}

	if err := h.canvas.Close(c.Request.Context(), userID, resumeID); err != nil {
		Internal(c, "failed to close canvas session")
		return
	}
	c.Status(http.StatusNoContent)
}

// Preview 把当前画布渲染为 PNG。zoom 只影响输出尺寸。
func (h *CanvasHandler) Preview(c *gin.Context) {
	userID, resumeID, ok := canvasParams(c)
	if !ok {
		return
	}

	zoom := layout.ZoomDefault
	if raw := c.Query("zoom"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			BadRequest(c, "invalid zoom")
			return
		}
		zoom = v
	}

	current, err := h.canvas.Current(c.Request.Context(), userID, resumeID)
	if err != nil {
		h.fail(c, err, canvas.View{})
		return
	}

	png, err := h.renderer.RenderBytes(current, zoom)
	if err != nil {
		middleware.LoggerFromContext(c).Error("render canvas preview failed", slog.Any("error", err))
		Internal(c, "failed to render preview")
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

func (h *CanvasHandler) fail(c *gin.Context, err error, view canvas.View) {
	switch {
	case errors.Is(err, canvas.ErrResumeNotFound):
		NotFound(c, "resume not found")
	case errors.Is(err, canvas.ErrSaveFailed):
		// 本地状态仍在会话中，前端可继续编辑或重试保存。
		c.JSON(http.StatusBadGateway, gin.H{"error": "save failed", "view": view})
	case errors.Is(err, layout.ErrBlockNotFound),
		errors.Is(err, layout.ErrNonFinitePosition),
		errors.Is(err, layout.ErrUnknownAction),
		errors.Is(err, layout.ErrDuplicateID),
		errors.Is(err, layout.ErrInvalidWidth):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "view": view})
	default:
		middleware.LoggerFromContext(c).Error("canvas request failed", slog.Any("error", err))
		Internal(c, "canvas error")
	}
}

func canvasParams(c *gin.Context) (uint, uint, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		AbortUnauthorized(c)
		return 0, 0, false
	}
	resumeID, err := parseResumeID(c.Param("id"))
	if err != nil {
		BadRequest(c, "invalid resume id")
		return 0, 0, false
	}
	return userID, resumeID, true
}
