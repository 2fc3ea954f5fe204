package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kestrelvaluation/securechat/internal/models"
)

const (
	// presenceTTL bounds how long a stale presence hash survives after a
	// user stops heartbeating entirely.
	presenceTTL  = 7 * 24 * time.Hour
	rateLimitTTL = time.Minute
)

// RedisStore handles Redis operations for presence and rate limiting.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client for middleware that shares the
// connection pool.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// presenceKey returns the key for a user's presence hash.
func presenceKey(userID string) string {
	return fmt.Sprintf("presence:%s", userID)
}

// rateLimitKey returns the key for a user's rate limit counter.
func rateLimitKey(userID string) string {
	return fmt.Sprintf("ratelimit:%s", userID)
}

// SetPresence writes a user's presence record. Heartbeats from multiple
// devices race benignly: last write wins by arrival.
func (s *RedisStore) SetPresence(ctx context.Context, userID string, online bool, lastSeen int64) error {
	key := presenceKey(userID)

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, "online", boolField(online), "last_seen", lastSeen)
	pipe.Expire(ctx, key, presenceTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// GetPresence reads a user's presence record. A user never seen reads as
// offline with zero last_seen.
func (s *RedisStore) GetPresence(ctx context.Context, userID string) (*models.PresenceRecord, error) {
	fields, err := s.client.HGetAll(ctx, presenceKey(userID)).Result()
	if err != nil {
		return nil, err
	}

	rec := &models.PresenceRecord{}
	if fields["online"] == "1" {
		rec.Online = true
	}
	if v, err := strconv.ParseInt(fields["last_seen"], 10, 64); err == nil {
		rec.LastSeen = v
	}
	return rec, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// CheckRateLimit checks if a user has exceeded the rate limit.
func (s *RedisStore) CheckRateLimit(ctx context.Context, userID string, limit int) (bool, error) {
	count, err := s.client.Get(ctx, rateLimitKey(userID)).Int()
	if err != nil && err != redis.Nil {
		return false, err
	}
	return count < limit, nil
}

// IncrementRateLimit increments the rate limit counter.
func (s *RedisStore) IncrementRateLimit(ctx context.Context, userID string) error {
	key := rateLimitKey(userID)

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, rateLimitTTL)
	_, err := pipe.Exec(ctx)
	return err
}
