package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// 生成类型。
const (
	TypeFull    = "full"
	TypeSection = "section"
	TypeRewrite = "rewrite"
	TypeTailor  = "tailor"
)

// ErrInvalidRequest 表示请求缺少必填字段或类型未知。
var ErrInvalidRequest = errors.New("invalid generation request")

type FullRequest struct {
	FullName   string `json:"fullName"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Experience string `json:"experience"`
	Education  string `json:"education"`
	Skills     string `json:"skills"`
	TargetRole string `json:"targetRole"`
}

type SectionRequest struct {
	SectionType     string          `json:"sectionType"`
	Context         string          `json:"context"`
	ExistingContent json.RawMessage `json:"existingContent"`
}

type RewriteRequest struct {
	Content      string `json:"content"`
	Instructions string `json:"instructions"`
}

type TailorRequest struct {
	ResumeContent  json.RawMessage `json:"resumeContent"`
	JobDescription string          `json:"jobDescription"`
}

// Result 是一次生成的结果。Output 对 rewrite 为 JSON 字符串，其余类型为 JSON 对象或数组。
type Result struct {
	Type   string
	Prompt string
	Output json.RawMessage
}

// Generator 组合提示词、模型调用与输出校验。
type Generator struct {
	completer Completer
}

func NewGenerator(c Completer) *Generator {
	return &Generator{completer: c}
}

// Generate 按类型解析 data 并执行生成。
func (g *Generator) Generate(ctx context.Context, genType string, data json.RawMessage) (Result, error) {
	switch genType {
	case TypeFull:
		var req FullRequest
		if err := decode(data, &req); err != nil {
			return Result{}, err
		}
		if req.FullName == "" || req.Email == "" {
			return Result{}, fmt.Errorf("%w: full name and email are required", ErrInvalidRequest)
		}
		out, err := g.completeJSON(ctx, fullPrompt(req), false, true)
		return Result{Type: genType, Prompt: "Generate full resume for " + req.FullName, Output: out}, err

	case TypeSection:
		var req SectionRequest
		if err := decode(data, &req); err != nil {
			return Result{}, err
		}
		if req.SectionType == "" || req.Context == "" {
			return Result{}, fmt.Errorf("%w: section type and context are required", ErrInvalidRequest)
		}
		out, err := g.completeJSON(ctx, sectionPrompt(req), true, false)
		return Result{Type: genType, Prompt: "Generate " + req.SectionType + " section", Output: out}, err

	case TypeRewrite:
		var req RewriteRequest
		if err := decode(data, &req); err != nil {
			return Result{}, err
		}
		if req.Content == "" {
			return Result{}, fmt.Errorf("%w: content is required", ErrInvalidRequest)
		}
		text, err := g.completer.Complete(ctx, rewritePrompt(req))
		if err != nil {
			return Result{}, err
		}
		out, _ := json.Marshal(strings.TrimSpace(text))
		return Result{Type: genType, Prompt: "Rewrite section: " + summarize(req.Content, 100), Output: out}, nil

	case TypeTailor:
		var req TailorRequest
		if err := decode(data, &req); err != nil {
			return Result{}, err
		}
		if len(req.ResumeContent) == 0 || string(req.ResumeContent) == "null" || req.JobDescription == "" {
			return Result{}, fmt.Errorf("%w: resume content and job description are required", ErrInvalidRequest)
		}
		out, err := g.completeJSON(ctx, tailorPrompt(req), false, true)
		return Result{Type: genType, Prompt: "Tailor resume to job: " + summarize(req.JobDescription, 100), Output: out}, err

	default:
		return Result{}, fmt.Errorf("%w: unknown type %q", ErrInvalidRequest, genType)
	}
}

func (g *Generator) completeJSON(ctx context.Context, prompt string, allowArray, validate bool) (json.RawMessage, error) {
	text, err := g.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	raw, err := ExtractJSON(text, allowArray)
	if err != nil {
		return nil, err
	}
	if validate {
		if err := ValidateContent(raw); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: data is required", ErrInvalidRequest)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}
