package pdf

import (
	"bytes"
	"fmt"
	"html/template"
	"regexp"
	"strings"

	"resumecanvas/internal/layout"
)

// pageTemplate 以绝对定位还原画布：每个文本块一个 div，坐标与画布一致。
const pageTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        @page { size: {{.Width}}px {{.Height}}px; margin: 0; }
        html, body { margin: 0; padding: 0; }
        .page {
            position: relative;
            width: {{.Width}}px;
            height: {{.Height}}px;
            background: {{.Background}};
            overflow: hidden;
        }
        .block {
            position: absolute;
            white-space: pre-wrap;
            word-wrap: break-word;
            line-height: 1;
        }
    </style>
</head>
<body>
    <div class="page">
        {{- range .Blocks}}
        <div class="block" id="{{.ID}}" style="left: {{.X}}px; top: {{.Y}}px;{{if .Width}} width: {{.Width}}px;{{end}} font-size: {{.FontSize}}px; font-family: {{.FontFamily}}, sans-serif; font-weight: {{.Weight}}; color: {{.Fill}};">{{.Text}}</div>
        {{- end}}
    </div>
</body>
</html>
`

var tmpl = template.Must(template.New("page").Parse(pageTemplate))

// html/template 会把含引号或括号的 CSS 值替换为 ZgotmplZ，这里提前规整。
var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

func cssColor(v, fallback string) string {
	v = strings.TrimSpace(v)
	if hexColor.MatchString(v) {
		return v
	}
	return fallback
}

// cssFontFamily 只保留字体名中的字母、数字、空格、连字符和下划线。
func cssFontFamily(v string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == ' ', r == '-', r == '_':
			return r
		}
		return -1
	}, v)
	for strings.Contains(name, "--") {
		name = strings.ReplaceAll(name, "--", "-")
	}
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return layout.DefaultFont
	}
	return name
}

type htmlBlock struct {
	ID         string
	X, Y       float64
	Width      float64
	Text       string
	FontSize   float64
	FontFamily string
	Weight     string
	Fill       string
}

type htmlPage struct {
	Width      float64
	Height     float64
	Background string
	Blocks     []htmlBlock
}

// RenderHTML 生成用于打印的 HTML 文档。文本与样式值均经过转义。
func RenderHTML(l layout.Layout) (string, error) {
	page := htmlPage{
		Width:      orDefault(l.Width, layout.PageWidth),
		Height:     orDefault(l.Height, layout.PageHeight),
		Background: cssColor(l.Background, layout.PageBackground),
		Blocks:     make([]htmlBlock, 0, len(l.Blocks)),
	}

	for _, b := range l.Blocks {
		hb := htmlBlock{
			ID:         b.ID,
			X:          b.X,
			Y:          b.Y,
			Text:       b.Text,
			FontSize:   b.FontSize,
			FontFamily: cssFontFamily(b.FontFamily),
			Weight:     layout.WeightNormal,
			Fill:       cssColor(b.Fill, layout.DefaultColor),
		}
		if b.Bold() {
			hb.Weight = layout.WeightBold
		}
		if b.Width != nil {
			hb.Width = *b.Width
		}
		page.Blocks = append(page.Blocks, hb)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, page); err != nil {
		return "", fmt.Errorf("render print html: %w", err)
	}
	return buf.String(), nil
}

func orDefault(v, fallback float64) float64 {
	if v <= 0 {
		return fallback
	}
	return v
}
