package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the key used when none is configured.
const DefaultRedisKey = "buecherhallen:session"

// RedisStore keeps the session under a single Redis key.
// The key expires together with the session cookie when its expiry is known.
type RedisStore struct {
	redis *redis.Client
	key   string
	now   func() time.Time
}

// NewRedisStore creates a Redis backed store.
func NewRedisStore(redisClient *redis.Client, key string) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{
		redis: redisClient,
		key:   key,
		now:   time.Now,
	}
}

// Key returns the Redis key holding the session.
func (r *RedisStore) Key() string {
	return r.key
}

// Load fetches the session from Redis.
func (r *RedisStore) Load(ctx context.Context) (*Session, error) {
	data, err := r.redis.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			cacheMisses.WithLabelValues(backendRedis).Inc()
			return nil, ErrCacheMiss
		}
		cacheErrors.WithLabelValues(backendRedis, "load").Inc()
		return nil, &StoreError{Op: "load", Location: r.key, Err: fmt.Errorf("redis get: %w", err)}
	}

	s, err := decode(data)
	if err != nil {
		cacheErrors.WithLabelValues(backendRedis, "load").Inc()
		return nil, &StoreError{Op: "load", Location: r.key, Err: err}
	}

	cacheHits.WithLabelValues(backendRedis).Inc()
	return s, nil
}

// Save stores the session with a TTL matching the session cookie expiry.
func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	if s == nil {
		return &StoreError{Op: "save", Location: r.key, Err: errors.New("session cannot be nil")}
	}

	ttl := r.ttl(s)
	if ttl < 0 {
		// Already expired, nothing worth keeping.
		return nil
	}

	data, err := encode(s)
	if err != nil {
		cacheErrors.WithLabelValues(backendRedis, "save").Inc()
		return &StoreError{Op: "save", Location: r.key, Err: err}
	}

	if err := r.redis.Set(ctx, r.key, data, ttl).Err(); err != nil {
		cacheErrors.WithLabelValues(backendRedis, "save").Inc()
		return &StoreError{Op: "save", Location: r.key, Err: fmt.Errorf("redis set: %w", err)}
	}
	return nil
}

// ttl returns 0 (no expiry) when the session cookie has no expiry and a
// negative value when it has already expired.
func (r *RedisStore) ttl(s *Session) time.Duration {
	c, ok := s.Get(CookieName)
	if !ok {
		return 0
	}
	expires, ok := c.ExpiresAt()
	if !ok {
		return 0
	}
	ttl := expires.Sub(r.now())
	if ttl <= 0 {
		return -1
	}
	return ttl
}
