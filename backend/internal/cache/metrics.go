package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"knowledge-organization/backend/internal/model"
)

// MemoryMetrics caches graph metrics in process.
type MemoryMetrics struct {
	ttl *TTL[string, model.GraphMetrics]
}

// NewMemoryMetrics creates an in-process metrics cache.
func NewMemoryMetrics(ttl time.Duration) *MemoryMetrics {
	sweep := ttl / 2
	if sweep <= 0 {
		sweep = time.Minute
	}
	return &MemoryMetrics{ttl: NewTTL[string, model.GraphMetrics](ttl, 10000, sweep)}
}

func (m *MemoryMetrics) Get(_ context.Context, graphID string) (model.GraphMetrics, bool, error) {
	v, ok := m.ttl.Get(graphID)
	return v, ok, nil
}

func (m *MemoryMetrics) Set(_ context.Context, graphID string, metrics model.GraphMetrics) error {
	m.ttl.Set(graphID, metrics)
	return nil
}

func (m *MemoryMetrics) Invalidate(_ context.Context, graphID string) error {
	m.ttl.Delete(graphID)
	return nil
}

func (m *MemoryMetrics) Close() error {
	m.ttl.Close()
	return nil
}

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string
	// Prefix namespaces keys; defaults to "ko:metrics:".
	Prefix string
	// TTL is the expiry applied to each entry.
	TTL time.Duration

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// RedisMetrics caches graph metrics in Redis so several server replicas
// share them. Expiry is delegated to Redis.
type RedisMetrics struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisMetrics connects to Redis and verifies the connection.
func NewRedisMetrics(opts RedisOptions) (*RedisMetrics, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.Prefix == "" {
		opts.Prefix = "ko:metrics:"
	}
	if opts.TTL <= 0 {
		opts.TTL = 300 * time.Second
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 3 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 3 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisMetrics{client: client, prefix: opts.Prefix, ttl: opts.TTL}, nil
}

func (r *RedisMetrics) key(graphID string) string {
	return r.prefix + graphID
}

func (r *RedisMetrics) Get(ctx context.Context, graphID string) (model.GraphMetrics, bool, error) {
	var m model.GraphMetrics
	data, err := r.client.Get(ctx, r.key(graphID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return m, false, nil
	}
	if err != nil {
		return m, false, fmt.Errorf("failed to read cached metrics for %s: %w", graphID, err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, false, fmt.Errorf("failed to decode cached metrics for %s: %w", graphID, err)
	}
	return m, true, nil
}

func (r *RedisMetrics) Set(ctx context.Context, graphID string, metrics model.GraphMetrics) error {
	data, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}
	if err := r.client.Set(ctx, r.key(graphID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache metrics for %s: %w", graphID, err)
	}
	return nil
}

func (r *RedisMetrics) Invalidate(ctx context.Context, graphID string) error {
	if err := r.client.Del(ctx, r.key(graphID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate metrics for %s: %w", graphID, err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *RedisMetrics) Close() error {
	return r.client.Close()
}
