package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	errLoginRateLimited = errors.New("too many login attempts")
	errAccountLocked    = errors.New("account temporarily locked")
)

// loginGuard 在 Redis 中记录登录次数与连续失败次数。
// Redis 不可用时放行，登录本身仍由口令校验把关。
type loginGuard struct {
	redis         redis.UniversalClient
	ratePerHour   int
	lockThreshold int
	lockTTL       time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

func rateKey(ip, email string, at time.Time) string {
	return "auth:login:rate:" + ip + ":" + email + ":" + at.UTC().Format("2006010215")
}

func failKey(email string) string { return "auth:login:fail:" + email }
func lockKey(email string) string { return "auth:login:lock:" + email }

// check 为本次尝试计数，并判断是否超过每小时上限或处于锁定期。
func (g *loginGuard) check(ctx context.Context, ip, email string) error {
	if g.redis == nil {
		return nil
	}

	if g.ratePerHour > 0 {
		key := rateKey(ip, email, g.now())
		var incr *redis.IntCmd
		_, err := g.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(ctx, key)
			pipe.ExpireNX(ctx, key, time.Hour)
			return nil
		})
		if err != nil {
			g.logger.Warn("login rate counter unavailable", slog.Any("error", err))
		} else if incr.Val() > int64(g.ratePerHour) {
			return errLoginRateLimited
		}
	}

	n, err := g.redis.Exists(ctx, lockKey(email)).Result()
	if err != nil {
		g.logger.Warn("login lock lookup failed", slog.Any("error", err))
		return nil
	}
	if n > 0 {
		return errAccountLocked
	}
	return nil
}

// recordFailure 累计连续失败次数，达到阈值后锁定账号 lockTTL。
func (g *loginGuard) recordFailure(ctx context.Context, email string) {
	if g.redis == nil || g.lockThreshold <= 0 {
		return
	}
	key := failKey(email)
	var incr *redis.IntCmd
	_, err := g.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, g.lockTTL)
		return nil
	})
	if err != nil {
		g.logger.Warn("record login failure failed", slog.Any("error", err))
		return
	}
	if incr.Val() >= int64(g.lockThreshold) {
		if err := g.redis.Set(ctx, lockKey(email), "1", g.lockTTL).Err(); err != nil {
			g.logger.Warn("lock account failed", slog.Any("error", err))
			return
		}
		g.redis.Del(ctx, key)
	}
}

// reset 在登录成功后清空失败计数。
func (g *loginGuard) reset(ctx context.Context, email string) {
	if g.redis == nil {
		return
	}
	if err := g.redis.Del(ctx, failKey(email)).Err(); err != nil {
		g.logger.Warn("reset login failures failed", slog.Any("error", err))
	}
}
