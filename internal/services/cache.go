package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// CacheService wraps redis for caching course statistics, calibration
// results, and annotation responses
type CacheService struct {
	client *redis.Client
	logger *logrus.Logger
}

// NewCacheService creates a new cache service
func NewCacheService(client *redis.Client, logger *logrus.Logger) *CacheService {
	return &CacheService{client: client, logger: logger}
}

// Set stores a JSON-encoded value with a TTL
func (c *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache key %s: %w", key, err)
	}
	return nil
}

// Get loads and JSON-decodes a value into dest. Returns redis.Nil when the
// key is absent.
func (c *CacheService) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// Delete removes keys
func (c *CacheService) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// InvalidateCourse drops every cached statistic and calibration for a
// course. Called after a difficulty change so normalized values are never
// served stale.
func (c *CacheService) InvalidateCourse(ctx context.Context, courseID uuid.UUID) error {
	pattern := fmt.Sprintf("course:%s:*", courseID)
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys for course %s: %w", courseID, err)
	}

	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to invalidate course cache: %w", err)
		}
		c.logger.WithFields(logrus.Fields{
			"course_id":    courseID,
			"keys_dropped": len(keys),
		}).Debug("Invalidated course cache")
	}
	return nil
}

// HealthCheck pings redis
func (c *CacheService) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// StatsKey builds the cache key for course statistics under a filter
func StatsKey(courseID uuid.UUID, gender string, seasonYear int) string {
	return fmt.Sprintf("course:%s:stats:%s:%d", courseID, gender, seasonYear)
}

// CalibrationKey builds the cache key for a calibration run
func CalibrationKey(courseID, anchorCourseID uuid.UUID) string {
	return fmt.Sprintf("course:%s:calibration:%s", courseID, anchorCourseID)
}
