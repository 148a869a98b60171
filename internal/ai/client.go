// Package ai 调用外部文本生成服务，为简历生成或改写内容。
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"resumecanvas/internal/config"
)

// ErrGenerationFailed 表示生成服务不可用或返回了无法使用的结果。
var ErrGenerationFailed = errors.New("generation failed")

// Completer 根据提示词返回模型输出的纯文本。
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Client 通过 Gemini SDK 调用 generateContent，对限流和服务端错误做退避重试。
type Client struct {
	models      *genai.Models
	model       string
	maxAttempts int
	backoff     time.Duration
}

func NewClient(ctx context.Context, cfg config.AIConfig) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
		HTTPOptions: genai.HTTPOptions{
			BaseURL: strings.TrimSpace(cfg.BaseURL),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("init gemini client: %w", err)
	}

	return &Client{
		models:      gc.Models,
		model:       cfg.Model,
		maxAttempts: attempts,
		backoff:     time.Second,
	}, nil
}

// Complete 发送提示词并返回首个候选结果的文本。
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for i := 0; i < c.maxAttempts; i++ {
		resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
		if err == nil {
			text := resp.Text()
			if text == "" {
				return "", fmt.Errorf("%w: empty candidates", ErrGenerationFailed)
			}
			return text, nil
		}
		lastErr = err
		if !retryable(ctx, err) {
			break
		}
		if i < c.maxAttempts-1 {
			select {
			case <-time.After(c.backoff * time.Duration(1<<i)):
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", ErrGenerationFailed, ctx.Err())
			}
		}
	}
	return "", fmt.Errorf("%w: %v", ErrGenerationFailed, lastErr)
}

// retryable 对 429、5xx 与网络错误返回 true，其余 API 错误直接失败。
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code == http.StatusTooManyRequests || apiErrPtr.Code >= http.StatusInternalServerError
	}
	return true
}
