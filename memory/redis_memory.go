package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/scttfrdmn/travelrouter/adapter/codec"
	"github.com/scttfrdmn/travelrouter/inquiry"
)

// RedisStore keeps each session's turns in a Redis list.
//
// Features:
//   - Persistent storage (survives restarts)
//   - TTL support (idle sessions expire)
//   - Shared across router instances
//
// Redis Data Structure:
//   - Key: "{prefix}:{session_id}:turns"
//   - Type: List, appended with RPUSH so index order is turn order
//   - Value: JSON(turn)
type RedisStore struct {
	ttl       time.Duration
	keyPrefix string
	client    *redis.Client
	logger    *slog.Logger
}

// NewRedisStore connects to Redis at redisURL.
//
// Example:
//
//	store, err := NewRedisStore("redis://localhost:6379/0", 24*time.Hour, "travelrouter:memory")
func NewRedisStore(redisURL string, ttl time.Duration, keyPrefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	if keyPrefix == "" {
		keyPrefix = "travelrouter:memory"
	}

	return &RedisStore{
		ttl:       ttl,
		keyPrefix: keyPrefix,
		client:    redis.NewClient(opts),
		logger:    slog.Default().With("component", "memory.redis"),
	}, nil
}

// sessionKey returns the Redis key for a session.
func (r *RedisStore) sessionKey(sessionID string) string {
	return fmt.Sprintf("%s:%s:turns", r.keyPrefix, sessionID)
}

// Ping checks connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Append pushes a turn onto the session's list and refreshes its TTL.
func (r *RedisStore) Append(ctx context.Context, sessionID string, turn inquiry.Turn) error {
	value, err := codec.EncodeTurn(turn)
	if err != nil {
		return err
	}

	key := r.sessionKey(sessionID)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, value)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

// Turns returns the full log, oldest first.
func (r *RedisStore) Turns(ctx context.Context, sessionID string) ([]inquiry.Turn, error) {
	return r.rangeTurns(ctx, sessionID, 0, -1)
}

// Recent returns the last n turns, oldest first.
func (r *RedisStore) Recent(ctx context.Context, sessionID string, n int) ([]inquiry.Turn, error) {
	if n <= 0 {
		return []inquiry.Turn{}, nil
	}
	return r.rangeTurns(ctx, sessionID, int64(-n), -1)
}

func (r *RedisStore) rangeTurns(ctx context.Context, sessionID string, start, stop int64) ([]inquiry.Turn, error) {
	values, err := r.client.LRange(ctx, r.sessionKey(sessionID), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve turns: %w", err)
	}

	turns := make([]inquiry.Turn, 0, len(values))
	for _, value := range values {
		turn, err := codec.DecodeTurn([]byte(value))
		if err != nil {
			r.logger.Warn("skipping malformed turn", "session_id", sessionID, "error", err)
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// Clear removes the session's list.
func (r *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, r.sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *RedisStore) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
