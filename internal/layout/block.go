// Package layout 将结构化简历内容转换为画布上的定位文本块，
// 并负责文本块列表与持久化布局文档之间的相互转换。
package layout

import (
	"errors"
	"fmt"
	"math"
)

// 页面尺寸（画布坐标单位，对应 8.5x11 英寸 @ 96 DPI）。
const (
	PageWidth       = 816
	PageHeight      = 1056
	PageBackground  = "#ffffff"
	DefaultFont     = "Arial"
	DefaultFontSize = 12
	DefaultColor    = "#000000"
)

const (
	WeightBold   = "bold"
	WeightNormal = "normal"
)

var (
	ErrDuplicateID       = errors.New("duplicate block id")
	ErrNonFinitePosition = errors.New("block position must be finite")
	ErrInvalidWidth      = errors.New("block width must be positive")
	ErrBlockNotFound     = errors.New("block not found")
)

// TextBlock 是画布上的一个定位、带样式的文本单元。
type TextBlock struct {
	ID         string   `json:"id"`
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Text       string   `json:"text"`
	FontSize   float64  `json:"fontSize"`
	FontFamily string   `json:"fontFamily"`
	Fill       string   `json:"fill"`
	Weight     string   `json:"weight"`
	Width      *float64 `json:"width,omitempty"`
}

// Bold 报告文本块是否为粗体。
func (b TextBlock) Bold() bool {
	return b.Weight == WeightBold
}

// Layout 是一份简历的全部文本块加页面元数据。
// 渲染使用绝对定位，顺序本身没有语义，但会原样保留以便稳定地重新序列化。
type Layout struct {
	Width      float64     `json:"width"`
	Height     float64     `json:"height"`
	Background string      `json:"backgroundColor"`
	Blocks     []TextBlock `json:"blocks"`
}

// NewLayout 返回带默认页面元数据的空布局。
func NewLayout(blocks []TextBlock) Layout {
	return Layout{
		Width:      PageWidth,
		Height:     PageHeight,
		Background: PageBackground,
		Blocks:     blocks,
	}
}

// Index 返回指定 id 的块下标，不存在时返回 -1。
func (l Layout) Index(id string) int {
	for i := range l.Blocks {
		if l.Blocks[i].ID == id {
			return i
		}
	}
	return -1
}

// Validate 检查 id 唯一、坐标有限、宽度为正。
func (l Layout) Validate() error {
	seen := make(map[string]struct{}, len(l.Blocks))
	for _, b := range l.Blocks {
		if _, ok := seen[b.ID]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateID, b.ID)
		}
		seen[b.ID] = struct{}{}
		if !finite(b.X) || !finite(b.Y) {
			return fmt.Errorf("%w: %q", ErrNonFinitePosition, b.ID)
		}
		if b.Width != nil && (!finite(*b.Width) || *b.Width <= 0) {
			return fmt.Errorf("%w: %q", ErrInvalidWidth, b.ID)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func blockID(index int) string {
	return fmt.Sprintf("text-%d", index)
}

func floatPtr(v float64) *float64 {
	return &v
}
