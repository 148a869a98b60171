package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"resumecanvas/internal/database"
	"resumecanvas/internal/layout"
	"resumecanvas/internal/resume"
)

// ErrResumeNotFound 表示简历不存在或不属于当前用户。对会话而言是终止性错误。
var ErrResumeNotFound = errors.New("resume not found")

// Repository 是画布读写简历数据的唯一通道。
type Repository interface {
	LoadResume(ctx context.Context, userID, resumeID uint) (resume.Content, layout.Document, error)
	SaveLayout(ctx context.Context, userID, resumeID uint, doc layout.Document) error
}

// GormRepository 基于 GORM 读写 resumes 表。
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// LoadResume 读取简历内容与已持久化的布局，并校验归属。
func (r *GormRepository) LoadResume(ctx context.Context, userID, resumeID uint) (resume.Content, layout.Document, error) {
	var rec database.Resume
	err := r.db.WithContext(ctx).
		Select("id", "user_id", "content", "canvas_layout").
		Where("id = ? AND user_id = ?", resumeID, userID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return resume.Content{}, layout.Document{}, ErrResumeNotFound
	}
	if err != nil {
		return resume.Content{}, layout.Document{}, fmt.Errorf("load resume %d: %w", resumeID, err)
	}

	doc, _ := layout.DecodeDocument(rec.CanvasLayout)
	return resume.Decode(rec.Content), doc, nil
}

// SaveLayout 覆盖写入 canvas_layout。不做版本检查，后写者生效。
func (r *GormRepository) SaveLayout(ctx context.Context, userID, resumeID uint, doc layout.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode layout: %w", err)
	}
	res := r.db.WithContext(ctx).
		Model(&database.Resume{}).
		Where("id = ? AND user_id = ?", resumeID, userID).
		Update("canvas_layout", datatypes.JSON(raw))
	if res.Error != nil {
		return fmt.Errorf("save layout for resume %d: %w", resumeID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrResumeNotFound
	}
	return nil
}
