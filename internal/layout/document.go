package layout

import (
	"encoding/json"
	"math"
)

// SectionTypeText 是目前唯一支持的 section 类型。
const SectionTypeText = "text"

// Document 是持久化在简历 canvas_layout(JSONB) 中的布局文档。
type Document struct {
	Width           float64   `json:"width"`
	Height          float64   `json:"height"`
	BackgroundColor string    `json:"backgroundColor"`
	Sections        []Section `json:"sections"`
}

// Section 是布局文档中的一条记录。
// 字段全部宽松：存储的文档不做结构校验，异常值会得到空白或错位的块而不是报错。
type Section struct {
	ID         string   `json:"id,omitempty"`
	Type       string   `json:"type"`
	X          *float64 `json:"x,omitempty"`
	Y          *float64 `json:"y,omitempty"`
	Width      *float64 `json:"width,omitempty"`
	Text       string   `json:"text"`
	FontSize   float64  `json:"fontSize,omitempty"`
	FontFamily string   `json:"fontFamily,omitempty"`
	FontWeight string   `json:"fontWeight,omitempty"`
	Color      string   `json:"color,omitempty"`
}

// EmptyDocument 是新建简历时写入的默认布局：固定页面元数据，没有 sections。
func EmptyDocument() Document {
	return Document{
		Width:           PageWidth,
		Height:          PageHeight,
		BackgroundColor: PageBackground,
		Sections:        []Section{},
	}
}

// HasSections 报告文档是否含有可用于覆盖生成结果的 sections。
func (d Document) HasSections() bool {
	return len(d.Sections) > 0
}

// Serialize 将当前块列表按顺序转换为布局文档，页面元数据固定。
func Serialize(l Layout) Document {
	doc := EmptyDocument()
	doc.Sections = make([]Section, 0, len(l.Blocks))
	for _, b := range l.Blocks {
		weight := WeightNormal
		if b.Bold() {
			weight = WeightBold
		}
		s := Section{
			ID:         b.ID,
			Type:       SectionTypeText,
			X:          floatPtr(b.X),
			Y:          floatPtr(b.Y),
			Text:       b.Text,
			FontSize:   b.FontSize,
			FontFamily: b.FontFamily,
			FontWeight: weight,
			Color:      b.Fill,
		}
		if b.Width != nil {
			s.Width = floatPtr(*b.Width)
		}
		doc.Sections = append(doc.Sections, s)
	}
	return doc
}

type decodeOptions struct {
	storedIDs bool
}

// DecodeOption 调整 Deserialize 的行为。
type DecodeOption func(*decodeOptions)

// WithStoredIDs 保留文档中非空且未重复的 id；其余块仍使用基于下标的 id。
func WithStoredIDs() DecodeOption {
	return func(o *decodeOptions) { o.storedIDs = true }
}

// Deserialize 从布局文档重建块列表。
// 默认 id 由 section 在文档中的下标合成（text-<index>），文档内的 id 被忽略，
// 因此重新加载后只保证按位置稳定，不保证身份稳定。
// 非 text 类型的 section 会被跳过，但仍占用下标。
func Deserialize(doc Document, opts ...DecodeOption) Layout {
	var o decodeOptions
	for _, opt := range opts {
		opt(&o)
	}

	blocks := make([]TextBlock, 0, len(doc.Sections))
	used := make(map[string]struct{}, len(doc.Sections))
	for i, s := range doc.Sections {
		if s.Type != "" && s.Type != SectionTypeText {
			continue
		}
		id := blockID(i)
		if o.storedIDs && s.ID != "" {
			if _, dup := used[s.ID]; !dup {
				id = s.ID
			}
		}
		if _, dup := used[id]; dup {
			// 下标 id 与某个已保留的存储 id 冲突。
			id = uniqueID(used, i)
		}
		used[id] = struct{}{}

		b := TextBlock{
			ID:         id,
			X:          valueOr(s.X, 0),
			Y:          valueOr(s.Y, 0),
			Text:       s.Text,
			FontSize:   s.FontSize,
			FontFamily: s.FontFamily,
			Fill:       s.Color,
			Weight:     WeightNormal,
		}
		if b.FontSize == 0 {
			b.FontSize = DefaultFontSize
		}
		if b.FontFamily == "" {
			b.FontFamily = DefaultFont
		}
		if b.Fill == "" {
			b.Fill = DefaultColor
		}
		if s.FontWeight == WeightBold {
			b.Weight = WeightBold
		}
		if s.Width != nil {
			b.Width = floatPtr(*s.Width)
		}
		blocks = append(blocks, b)
	}
	return NewLayout(blocks)
}

// DecodeDocument 宽松解析存储的布局 JSON。
// 第二个返回值表示是否存在非空的持久化 sections。
func DecodeDocument(raw []byte) (Document, bool) {
	if len(raw) == 0 {
		return EmptyDocument(), false
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		// 逐条解析，尽量保留能识别的 section。
		doc = decodeLoose(raw)
	}
	return doc, doc.HasSections()
}

func decodeLoose(raw []byte) Document {
	var envelope struct {
		Sections []json.RawMessage `json:"sections"`
	}
	doc := EmptyDocument()
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return doc
	}
	for _, item := range envelope.Sections {
		var s Section
		if err := json.Unmarshal(item, &s); err != nil {
			// 类型完全不符的记录保留为空白块，维持下标。
			s = Section{Type: SectionTypeText}
		}
		doc.Sections = append(doc.Sections, s)
	}
	return doc
}

func valueOr(v *float64, fallback float64) float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return fallback
	}
	return *v
}

func uniqueID(used map[string]struct{}, start int) string {
	for n := start; ; n++ {
		id := blockID(n)
		if _, dup := used[id]; !dup {
			return id
		}
	}
}
