// Package render 将画布布局光栅化为 PNG 预览图。
package render

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"resumecanvas/internal/config"
	"resumecanvas/internal/layout"
)

// Renderer 持有预览使用的字体。可并发使用：每次渲染都创建独立的绘图上下文。
type Renderer struct {
	regular *text.FontSource
	bold    *text.FontSource
}

// NewRenderer 按配置加载字体文件；未配置时使用内置的 Go 字体。
func NewRenderer(cfg config.RenderConfig) (*Renderer, error) {
	regular, err := loadFont(cfg.FontPath, goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("load regular font: %w", err)
	}
	bold, err := loadFont(cfg.BoldFontPath, gobold.TTF)
	if err != nil {
		_ = regular.Close()
		return nil, fmt.Errorf("load bold font: %w", err)
	}
	return &Renderer{regular: regular, bold: bold}, nil
}

func loadFont(path string, fallback []byte) (*text.FontSource, error) {
	if strings.TrimSpace(path) != "" {
		return text.NewFontSourceFromFile(path)
	}
	return text.NewFontSource(fallback)
}

// Close 释放字体资源。
func (r *Renderer) Close() error {
	errR := r.regular.Close()
	errB := r.bold.Close()
	if errR != nil {
		return errR
	}
	return errB
}

// Render 以 zoom 倍率绘制布局并写出 PNG。
// 缩放只作用于输出表面：坐标与字号在绘制时乘以倍率，布局本身不变。
func (r *Renderer) Render(w io.Writer, l layout.Layout, zoom float64) error {
	zoom = ClampZoom(zoom)

	width := int(math.Ceil(pageSize(l.Width, layout.PageWidth) * zoom))
	height := int(math.Ceil(pageSize(l.Height, layout.PageHeight) * zoom))

	dc := gg.NewContext(width, height)
	defer dc.Close()

	background := l.Background
	if background == "" {
		background = layout.PageBackground
	}
	dc.ClearWithColor(gg.Hex(background))

	for _, b := range l.Blocks {
		r.drawBlock(dc, b, zoom)
	}

	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// RenderBytes 是 Render 的便捷形式。
func (r *Renderer) RenderBytes(l layout.Layout, zoom float64) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Render(&buf, l, zoom); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *Renderer) drawBlock(dc *gg.Context, b layout.TextBlock, zoom float64) {
	if b.Text == "" || b.FontSize <= 0 {
		return
	}
	source := r.regular
	if b.Bold() {
		source = r.bold
	}
	face := source.Face(b.FontSize * zoom)
	dc.SetFont(face)
	dc.SetHexColor(b.Fill)

	m := face.Metrics()
	lineHeight := m.Ascent + m.Descent + m.LineGap
	x := b.X * zoom
	baseline := b.Y*zoom + m.Ascent
	for _, line := range Lines(b, face, zoom) {
		dc.DrawString(line, x, baseline)
		baseline += lineHeight
	}
}

// Lines 返回块在给定缩放下的逐行文本。有宽度的块按实际字形宽度自动换行，
// 显式换行符始终保留。
func Lines(b layout.TextBlock, face text.Face, zoom float64) []string {
	if b.Width == nil {
		return strings.Split(b.Text, "\n")
	}
	wrapped := text.WrapText(b.Text, face, *b.Width*zoom, text.WrapWordChar)
	lines := make([]string, 0, len(wrapped))
	for _, w := range wrapped {
		lines = append(lines, w.Text)
	}
	return lines
}

// ClampZoom 将预览倍率限制在画布允许的缩放范围内，非法值按 1 处理。
func ClampZoom(zoom float64) float64 {
	if math.IsNaN(zoom) || math.IsInf(zoom, 0) || zoom <= 0 {
		return layout.ZoomDefault
	}
	return math.Max(layout.ZoomMin, math.Min(layout.ZoomMax, zoom))
}

func pageSize(v, fallback float64) float64 {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}
