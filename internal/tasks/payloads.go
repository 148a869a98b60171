package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeExportPDF     = "export:pdf"
	TypePreviewRender = "preview:render"
)

// ExportPDFPayload 描述导出 PDF 所需的最小信息。布局在 worker 中按当时的持久化状态读取。
type ExportPDFPayload struct {
	ResumeID      uint   `json:"resume_id"`
	UserID        uint   `json:"user_id"`
	CorrelationID string `json:"correlation_id"`
}

// PreviewRenderPayload 描述一次缩略图渲染。
type PreviewRenderPayload struct {
	ResumeID      uint   `json:"resume_id"`
	UserID        uint   `json:"user_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewExportPDFTask 构造一个新的简历 PDF 导出任务。
func NewExportPDFTask(userID, resumeID uint, correlationID string, opts ...asynq.Option) (*asynq.Task, error) {
	payload, err := json.Marshal(ExportPDFPayload{
		ResumeID:      resumeID,
		UserID:        userID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeExportPDF, payload, opts...), nil
}

// NewPreviewRenderTask 构造缩略图渲染任务。同一简历的任务在短时间内只保留一个。
func NewPreviewRenderTask(userID, resumeID uint, correlationID string, opts ...asynq.Option) (*asynq.Task, error) {
	payload, err := json.Marshal(PreviewRenderPayload{
		ResumeID:      resumeID,
		UserID:        userID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePreviewRender, payload, opts...), nil
}

// NotifyChannel 返回用户的 Redis 通知频道。worker 发布、WebSocket 订阅同一频道。
func NotifyChannel(userID uint) string {
	return fmt.Sprintf("user_notify:%d", userID)
}
