package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 订阅档位。
const (
	TierFree = "free"
	TierPro  = "pro"
)

// 导出状态。
const (
	ExportStatusPending   = "pending"
	ExportStatusCompleted = "completed"
	ExportStatusFailed    = "failed"
)

// User 表示系统中的账号信息。邮箱是登录标识，写入前统一转为小写。
type User struct {
	gorm.Model
	Email              string   `gorm:"uniqueIndex;size:255;not null"`
	Name               string   `gorm:"size:128"`
	PasswordHash       string   `gorm:"size:255"`
	SubscriptionTier   string   `gorm:"size:16;default:free"`
	SubscriptionStatus string   `gorm:"size:16;default:inactive"`
	ActiveResumeID     *uint    `gorm:"index"`
	Resumes            []Resume `gorm:"constraint:OnDelete:CASCADE"`
}

// IsPro 判断账号是否拥有付费档位。
func (u User) IsPro() bool {
	return u.SubscriptionTier == TierPro
}

// Resume 表示用户创建的简历：结构化内容 + 画布布局。
// CanvasLayout 一旦存在非空 sections，即优先于根据 Content 重新生成的布局。
type Resume struct {
	gorm.Model
	Title            string         `gorm:"size:255"`
	Content          datatypes.JSON `gorm:"type:jsonb"`
	CanvasLayout     datatypes.JSON `gorm:"type:jsonb"`
	UserID           uint           `gorm:"index"`
	User             User           `gorm:"constraint:OnDelete:CASCADE"`
	IsPublic         bool           `gorm:"default:false"`
	PublicSlug       *string        `gorm:"uniqueIndex;size:64"`
	PdfUrl           string         `gorm:"size:512"`
	Status           string         `gorm:"size:32"`
	PreviewObjectKey string         `gorm:"size:512"`
}

// AIGeneration 记录一次成功的 AI 生成调用。
type AIGeneration struct {
	ID             uint      `gorm:"primaryKey"`
	UserID         uint      `gorm:"index:idx_ai_generation_user_created,priority:1"`
	ResumeID       *uint     `gorm:"index"`
	Prompt         string    `gorm:"type:text"`
	Response       string    `gorm:"type:text"`
	GenerationType string    `gorm:"size:16"`
	CreatedAt      time.Time `gorm:"index:idx_ai_generation_user_created,priority:2"`
}

// AllModels 返回需要迁移的全部模型。
func AllModels() []any {
	return []any{&User{}, &Resume{}, &AIGeneration{}}
}
