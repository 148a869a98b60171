package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"resumecanvas/internal/tasks"
)

// 通知状态。
const (
	NotifyCompleted = "completed"
	NotifyError     = "error"
)

// ExportNotifyMessage 是通过 Redis Pub/Sub 转发给 WebSocket 客户端的消息。
type ExportNotifyMessage struct {
	Kind          string `json:"kind"`
	Status        string `json:"status"`
	ResumeID      uint   `json:"resume_id"`
	CorrelationID string `json:"correlation_id"`
	ErrorCode     int    `json:"error_code"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

// Publisher 发布用户通知。
type Publisher interface {
	Publish(ctx context.Context, userID uint, msg ExportNotifyMessage) error
}

// RedisPublisher 基于 Redis Pub/Sub 的 Publisher。
type RedisPublisher struct {
	client redis.Cmdable
}

func NewRedisPublisher(client redis.Cmdable) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, userID uint, msg ExportNotifyMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := tasks.NotifyChannel(userID)
	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}
