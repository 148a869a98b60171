package worker

import (
	"context"

	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"resumecanvas/internal/canvas"
	"resumecanvas/internal/layout"
)

// ObjectStore 是 worker 依赖的对象存储能力，由 *storage.Client 实现。
type ObjectStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	DeleteObject(ctx context.Context, objectKey string) error
}

// PDFRenderer 将布局渲染为 PDF。
type PDFRenderer func(ctx context.Context, l layout.Layout) ([]byte, error)

// PNGRenderer 将布局渲染为 PNG。
type PNGRenderer interface {
	RenderBytes(l layout.Layout, zoom float64) ([]byte, error)
}

// loadLayout 读取简历并返回当前生效的布局。
func loadLayout(ctx context.Context, db *gorm.DB, userID, resumeID uint, opts []layout.DecodeOption) (layout.Layout, error) {
	content, stored, err := canvas.NewGormRepository(db).LoadResume(ctx, userID, resumeID)
	if err != nil {
		return layout.Layout{}, err
	}
	return layout.Effective(content, stored, opts...), nil
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
