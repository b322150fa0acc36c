package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"secureguard-lab/internal/config"
	"secureguard-lab/internal/domain/models"
	"secureguard-lab/pkg/logger"
)

// Key prefixes
const (
	KeyLockPrefix      = "lock:"
	KeyLatestReport    = "report:latest"
	KeyRateLimitPrefix = "ratelimit:"
)

// ErrCacheMiss is returned when a key is absent
var ErrCacheMiss = errors.New("cache miss")

// releaseScript deletes the lock only if this holder still owns it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisCache wraps the Redis client with typed operations
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
	reportTTL time.Duration
	logger    *logger.Logger

	mu sync.Mutex
	// lock tokens held by this process, keyed by full lock key
	tokens map[string]string
}

// NewRedis creates a new Redis client
func NewRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*RedisCache, error) {
	log = log.WithComponent("redis")
	log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Msg("connecting to Redis")

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	log.Info().Msg("connected to Redis successfully")

	return newRedisCache(client, cfg, log), nil
}

func newRedisCache(client *redis.Client, cfg config.RedisConfig, log *logger.Logger) *RedisCache {
	c := &RedisCache{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		reportTTL: cfg.ReportTTL,
		logger:    log,
		tokens:    make(map[string]string),
	}
	return c
}

// Client returns the underlying Redis client
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	c.logger.Info().Msg("closing Redis connection")
	return c.client.Close()
}

// Ping checks the connection
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// key prepends the namespace prefix to a key
func (c *RedisCache) key(k string) string {
	return c.keyPrefix + k
}

// GetJSON retrieves and unmarshals a JSON value from cache
func (c *RedisCache) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// SetJSON marshals and stores a value with optional TTL
func (c *RedisCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.client.Set(ctx, c.key(key), data, ttl).Err()
}

// SetLatestReport caches the report of the last completed refresh
func (c *RedisCache) SetLatestReport(ctx context.Context, report *models.ScanReport) error {
	return c.SetJSON(ctx, KeyLatestReport, report, c.reportTTL)
}

// GetLatestReport returns the cached report, ErrCacheMiss when none
func (c *RedisCache) GetLatestReport(ctx context.Context) (*models.ScanReport, error) {
	var report models.ScanReport
	if err := c.GetJSON(ctx, KeyLatestReport, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// AcquireLock attempts to acquire a distributed lock. The lock value is a
// per-acquisition token so a stale holder cannot release a newer lock.
func (c *RedisCache) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	full := c.key(KeyLockPrefix + lockKey)
	token := uuid.NewString()

	ok, err := c.client.SetNX(ctx, full, token, ttl).Result()
	if err != nil || !ok {
		return false, err
	}

	c.mu.Lock()
	c.tokens[full] = token
	c.mu.Unlock()
	return true, nil
}

// ReleaseLock releases a lock acquired by this process
func (c *RedisCache) ReleaseLock(ctx context.Context, lockKey string) error {
	full := c.key(KeyLockPrefix + lockKey)

	c.mu.Lock()
	token, ok := c.tokens[full]
	delete(c.tokens, full)
	c.mu.Unlock()

	if !ok {
		return nil
	}
	return releaseScript.Run(ctx, c.client, []string{full}, token).Err()
}

// CheckRateLimit checks and increments a fixed-window counter.
// Returns (allowed, remaining, resetTime, error).
func (c *RedisCache) CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, time.Time, error) {
	now := time.Now()
	slot := now.Unix() / max(int64(window.Seconds()), 1)
	windowKey := c.key(fmt.Sprintf("%s%s:%d", KeyRateLimitPrefix, key, slot))

	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, time.Time{}, err
	}

	count := incr.Val()
	remaining := max(limit-count, 0)

	return count <= limit, remaining, now.Add(window), nil
}
