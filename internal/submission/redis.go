// File: internal/submission/redis.go
package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisKeyPrefix namespaces submission keys.
const RedisKeyPrefix = "formbridge:submission:"

// RedisChannel stores each submission under one key with a single SET, which
// Redis applies atomically. Entries expire after ttl.
type RedisChannel struct {
	client redis.UniversalClient
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedisChannel parses redisURL and verifies the connection.
func NewRedisChannel(ctx context.Context, redisURL string, ttl time.Duration, logger *zap.Logger) (*RedisChannel, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisChannelFromClient(client, ttl, logger), nil
}

// NewRedisChannelFromClient wraps an existing client.
func NewRedisChannelFromClient(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *RedisChannel {
	return &RedisChannel{client: client, ttl: ttl, log: logger.Named("redis_channel")}
}

func redisKey(sessionID string) string { return RedisKeyPrefix + sessionID }

func (r *RedisChannel) Write(ctx context.Context, sessionID string, payload map[string]any) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	data, err := encodePayload(payload)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, redisKey(sessionID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set submission: %w", err)
	}
	r.log.Debug("Stored submission", zap.String("session_id", sessionID))
	return nil
}

func (r *RedisChannel) Read(ctx context.Context, sessionID string) (map[string]any, bool, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, false, err
	}
	data, err := r.client.Get(ctx, redisKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get submission: %w", err)
	}
	payload, err := decodePayload(data)
	if err != nil {
		return nil, false, nil
	}
	return payload, true, nil
}

// Close releases the client.
func (r *RedisChannel) Close() error {
	return r.client.Close()
}
