// Package cache publishes run status and caches schema introspection results
// in Redis. Everything here is best-effort: the pipeline runs fine with
// Redis down, callers just pass a nil cache.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"nflpred/pipeline/internal/models"
	"nflpred/pipeline/internal/schema"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	lastRunKey      = "pipeline:sync:last_run"
	schemaKeyPrefix = "pipeline:schema:"
)

// RedisCache wraps the Redis client
type RedisCache struct {
	client *redis.Client
}

// Config holds Redis connection settings
type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(ctx context.Context, cfg Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	log.Info().Str("addr", cfg.Addr).Msg("Redis cache connected")
	return &RedisCache{client: client}, nil
}

// Close closes the Redis connection
func (c *RedisCache) Close() {
	if err := c.client.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close Redis connection")
	}
}

// SetRunReport stores the latest sync run summary for the dashboard
func (c *RedisCache) SetRunReport(ctx context.Context, report *models.RunReport, ttl time.Duration) {
	data, err := json.Marshal(report)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to marshal run report")
		return
	}

	if err := c.client.Set(ctx, lastRunKey, data, ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to publish run report to Redis")
	}
}

// GetRunReport returns the last published sync run summary, if any
func (c *RedisCache) GetRunReport(ctx context.Context) (*models.RunReport, bool) {
	data, err := c.client.Get(ctx, lastRunKey).Bytes()
	if err != nil {
		return nil, false
	}

	var report models.RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		log.Warn().Err(err).Msg("Failed to unmarshal cached run report")
		return nil, false
	}
	return &report, true
}

// SetTableSchema caches an introspected table schema
func (c *RedisCache) SetTableSchema(ctx context.Context, ts *schema.TableSchema, ttl time.Duration) {
	data, err := json.Marshal(ts)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to marshal table schema")
		return
	}

	key := schemaKeyPrefix + ts.Schema + "." + ts.Table
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		log.Warn().Err(err).Str("table", ts.Table).Msg("Failed to cache table schema")
	}
}

// GetTableSchema returns a cached table schema, if present
func (c *RedisCache) GetTableSchema(ctx context.Context, schemaName, table string) (*schema.TableSchema, bool) {
	data, err := c.client.Get(ctx, schemaKeyPrefix+schemaName+"."+table).Bytes()
	if err != nil {
		return nil, false
	}

	var ts schema.TableSchema
	if err := json.Unmarshal(data, &ts); err != nil {
		log.Warn().Err(err).Str("table", table).Msg("Failed to unmarshal cached schema")
		return nil, false
	}
	return &ts, true
}

// Health checks the Redis connection
func (c *RedisCache) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
