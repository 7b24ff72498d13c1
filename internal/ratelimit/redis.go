package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "readme-studio:ratelimit:"

// Redis is a Limiter shared by every instance pointed at the same server.
// Redis errors fail open: the request is allowed and the error logged.
type Redis struct {
	client  *redis.Client
	logger  *slog.Logger
	timeout time.Duration
}

// NewRedis connects to addr and verifies the connection with PING.
func NewRedis(ctx context.Context, addr, password string, db int, logger *slog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ratelimit: connecting to redis at %s: %w", addr, err)
	}
	return &Redis{client: client, logger: logger, timeout: 250 * time.Millisecond}, nil
}

func (rl *Redis) Allow(key string, limit int, win time.Duration) Decision {
	if limit <= 0 {
		return Decision{Allowed: true}
	}
	if win <= 0 {
		win = defaultWindow
	}
	ctx, cancel := context.WithTimeout(context.Background(), rl.timeout)
	defer cancel()

	redisKey := keyPrefix + key
	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	// INCR and EXPIRE NX run in one MULTI so a counter never outlives its window.
	_, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.ExpireNX(ctx, redisKey, win)
		ttl = pipe.TTL(ctx, redisKey)
		return nil
	})
	if err != nil {
		rl.logError("multi", err)
		return Decision{Allowed: true}
	}

	count := incr.Val()
	remaining := ttl.Val()
	if remaining <= 0 {
		remaining = win
	}
	return Decision{
		Allowed:   int(count) <= limit,
		Count:     int(count),
		WindowEnd: time.Now().Add(remaining),
	}
}

func (rl *Redis) Close() error {
	return rl.client.Close()
}

func (rl *Redis) logError(op string, err error) {
	if rl.logger == nil {
		return
	}
	rl.logger.Error("redis rate limiter error", slog.String("op", op), slog.Any("error", err))
}
