// Package cache provides a Redis-backed read-through cache for templates.
// Templates are small, read often on every extraction, and change rarely;
// a short TTL plus invalidation on save keeps the registry cheap to hit.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/safeworkhq/compliance-backend/internal/domain/template"
	"github.com/safeworkhq/compliance-backend/internal/infrastructure/config"
)

const templateKeyPrefix = "tpl:"

// TemplateCache caches templates by id. A cache failure is never fatal for
// callers; misses and errors both fall through to the repository.
type TemplateCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewTemplateCache connects to Redis and verifies the connection before use.
func NewTemplateCache(cfg *config.RedisConfig, logger *zap.Logger) (*TemplateCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info("template cache initialized",
		zap.String("addr", cfg.Address),
		zap.Duration("ttl", cfg.TTL))

	return &TemplateCache{client: client, ttl: cfg.TTL, logger: logger}, nil
}

// NewTemplateCacheWithClient wraps an existing client. Used by tests.
func NewTemplateCacheWithClient(client *redis.Client, ttl time.Duration, logger *zap.Logger) *TemplateCache {
	return &TemplateCache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached template, or (nil, nil) on a miss.
func (c *TemplateCache) Get(ctx context.Context, id string) (*template.Template, error) {
	data, err := c.client.Get(ctx, templateKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		c.logger.Warn("template cache read failed", zap.String("template_id", id), zap.Error(err))
		return nil, err
	}

	var t template.Template
	if err := json.Unmarshal(data, &t); err != nil {
		// A corrupt entry behaves like a miss; drop it so it cannot recur.
		c.logger.Warn("evicting corrupt cached template", zap.String("template_id", id), zap.Error(err))
		_ = c.client.Del(ctx, templateKeyPrefix+id).Err()
		return nil, nil
	}
	return &t, nil
}

// Set stores the template under its id with the configured TTL.
func (c *TemplateCache) Set(ctx context.Context, t *template.Template) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal template: %w", err)
	}
	if err := c.client.Set(ctx, templateKeyPrefix+t.ID, data, c.ttl).Err(); err != nil {
		c.logger.Warn("template cache write failed", zap.String("template_id", t.ID), zap.Error(err))
		return err
	}
	return nil
}

// Invalidate drops the cached entry for the given id.
func (c *TemplateCache) Invalidate(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, templateKeyPrefix+id).Err(); err != nil {
		c.logger.Warn("template cache invalidation failed", zap.String("template_id", id), zap.Error(err))
		return err
	}
	return nil
}

func (c *TemplateCache) Close() error {
	return c.client.Close()
}
