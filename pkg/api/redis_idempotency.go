package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisIdempotencyStore provides idempotency enforcement shared across
// node processes, backed by Redis. Replaces the volatile
// MemoryIdempotencyStore when a Redis address is configured.
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

// redisEntry is the stored wire form of a cached response.
type redisEntry struct {
	StatusCode int         `json:"status_code"`
	Headers    http.Header `json:"headers"`
	Body       []byte      `json:"body"`
	CachedAt   time.Time   `json:"cached_at"`
}

// NewRedisIdempotencyStore creates a Redis-backed idempotency store.
func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

func (s *RedisIdempotencyStore) redisKey(key string) string {
	return "isnad:idempotency:" + key
}

// Check returns a cached response if the idempotency key was seen before.
// Redis handles TTL expiry.
func (s *RedisIdempotencyStore) Check(key string) (*cachedResponse, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if err != nil {
		return nil, false
	}

	var entry redisEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false
	}
	return &cachedResponse{
		StatusCode: entry.StatusCode,
		Headers:    entry.Headers,
		Body:       entry.Body,
		CachedAt:   entry.CachedAt,
	}, true
}

// Set stores an idempotency key and its response with the configured TTL.
func (s *RedisIdempotencyStore) Set(key string, statusCode int, headers http.Header, body []byte) {
	raw, err := json.Marshal(redisEntry{
		StatusCode: statusCode,
		Headers:    headers,
		Body:       body,
		CachedAt:   time.Now(),
	})
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.client.Set(ctx, s.redisKey(key), raw, s.ttl).Err(); err != nil {
		// Log but don't fail — idempotency is best-effort enrichment
		slog.Warn("idempotency: failed to set key", "key", key, "error", err)
	}
}
