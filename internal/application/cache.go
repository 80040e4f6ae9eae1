package application

import (
	"context"
	"encoding/json"
	"time"

	"localpro-backend/internal/common/database"
	"localpro-backend/internal/common/logger"
	"localpro-backend/internal/models"
)

const cacheKeyPrefix = "application:"

// Cache is a read-through cache for application documents. Every write path
// invalidates; cache failures are logged and never fail the request.
type Cache struct {
	redis  *database.RedisClient
	ttl    time.Duration
	logger logger.Logger
}

func NewCache(redis *database.RedisClient, ttl time.Duration, log logger.Logger) *Cache {
	return &Cache{
		redis:  redis,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "application-cache"}),
	}
}

// Get returns the cached application, or nil on miss or error.
func (c *Cache) Get(ctx context.Context, applicationID string) *models.Application {
	if c == nil || c.redis == nil {
		return nil
	}
	raw, err := c.redis.Get(ctx, cacheKeyPrefix+applicationID)
	if err != nil {
		return nil
	}
	var app models.Application
	if err := json.Unmarshal([]byte(raw), &app); err != nil {
		c.logger.Warn("dropping unreadable cache entry", map[string]interface{}{
			"applicationId": applicationID,
			"error":         err.Error(),
		})
		_ = c.redis.Del(ctx, cacheKeyPrefix+applicationID)
		return nil
	}
	return &app
}

// Set stores the application under its id.
func (c *Cache) Set(ctx context.Context, app *models.Application) {
	if c == nil || c.redis == nil || app == nil {
		return
	}
	data, err := json.Marshal(app)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, cacheKeyPrefix+app.ID, data, c.ttl); err != nil {
		c.logger.Warn("cache set failed", map[string]interface{}{
			"applicationId": app.ID,
			"error":         err.Error(),
		})
	}
}

// Invalidate drops the cache entry after any write.
func (c *Cache) Invalidate(ctx context.Context, applicationID string) {
	if c == nil || c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, cacheKeyPrefix+applicationID); err != nil {
		c.logger.Warn("cache invalidate failed", map[string]interface{}{
			"applicationId": applicationID,
			"error":         err.Error(),
		})
	}
}
