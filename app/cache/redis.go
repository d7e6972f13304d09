package cache

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores downloaded release bodies in Redis. Published monthly files
// do not change, so entries live for the configured TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(addr string, ttl time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("Connected to Redis", "addr", addr, "ttl", ttl.String())

	return &Cache{client: client, ttl: ttl}, nil
}

// Get returns the cached body of url. A miss is not an error.
func (c *Cache) Get(ctx context.Context, url string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, GenerateReleaseKey(url)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached release %s: %w", url, err)
	}
	return data, true, nil
}

func (c *Cache) Set(ctx context.Context, url string, data []byte) error {
	if err := c.client.Set(ctx, GenerateReleaseKey(url), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache release %s: %w", url, err)
	}
	return nil
}

func (c *Cache) Health(ctx context.Context) map[string]interface{} {
	health := map[string]interface{}{
		"status": "healthy",
		"type":   "redis",
	}

	if err := c.client.Ping(ctx).Err(); err != nil {
		health["status"] = "unhealthy"
		health["error"] = err.Error()
		return health
	}

	if n, err := c.client.DBSize(ctx).Result(); err == nil {
		health["key_count"] = n
	}

	return health
}

func (c *Cache) Close() error {
	return c.client.Close()
}

// GenerateReleaseKey derives a short stable key from a release URL.
func GenerateReleaseKey(url string) string {
	hash := sha256.Sum256([]byte(url))
	return fmt.Sprintf("release:%x", hash[:8])
}
