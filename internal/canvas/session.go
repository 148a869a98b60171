package canvas

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSessionMissing 表示会话不存在或已过期。
var ErrSessionMissing = errors.New("canvas session missing")

// SessionStore 保存序列化后的编辑器状态。
type SessionStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, state []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

func sessionKey(userID, resumeID uint) string {
	return fmt.Sprintf("canvas:session:%d:%d", userID, resumeID)
}

// RedisSessionStore 使用 Redis 字符串键保存会话，每次读写都会刷新过期时间。
type RedisSessionStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisSessionStore(client redis.Cmdable, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

func (s *RedisSessionStore) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.GetEx(ctx, key, s.ttl).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionMissing
	}
	if err != nil {
		return nil, fmt.Errorf("load canvas session: %w", err)
	}
	return data, nil
}

func (s *RedisSessionStore) Store(ctx context.Context, key string, state []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}
	if err := s.client.Set(ctx, key, state, ttl).Err(); err != nil {
		return fmt.Errorf("store canvas session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete canvas session: %w", err)
	}
	return nil
}
