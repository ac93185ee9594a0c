package client

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-hr-approvals/internal/service"
)

const directoryKeyPrefix = "approvals:directory:"

// CachedDirectory fronts a directory with a Redis read-through cache. Cache
// failures are logged and fall through to the underlying directory.
type CachedDirectory struct {
	next  service.DirectoryClientInterface
	redis *redis.Client
	ttl   time.Duration
	log   zerolog.Logger
}

// NewCachedDirectory wraps next with a Redis cache.
func NewCachedDirectory(next service.DirectoryClientInterface, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *CachedDirectory {
	return &CachedDirectory{next: next, redis: rdb, ttl: ttl, log: log}
}

func (c *CachedDirectory) GetEmployee(ctx context.Context, employeeID string) (*service.Employee, error) {
	key := directoryKeyPrefix + "employee:" + employeeID
	var emp service.Employee
	if c.load(ctx, key, &emp) {
		return &emp, nil
	}

	fresh, err := c.next.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, fresh)
	return fresh, nil
}

func (c *CachedDirectory) GetDepartmentAncestors(ctx context.Context, deptCode string) ([]string, error) {
	key := directoryKeyPrefix + "ancestors:" + deptCode
	var ancestors []string
	if c.load(ctx, key, &ancestors) {
		return ancestors, nil
	}

	fresh, err := c.next.GetDepartmentAncestors(ctx, deptCode)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		fresh = []string{}
	}
	c.store(ctx, key, fresh)
	return fresh, nil
}

func (c *CachedDirectory) load(ctx context.Context, key string, dst any) bool {
	raw, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("directory cache read failed")
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("directory cache entry corrupt")
		return false
	}
	return true
}

func (c *CachedDirectory) store(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("directory cache write failed")
	}
}
