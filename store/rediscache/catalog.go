package rediscache

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/thinhlx1993/tw-backend-sub000/catalog"
	"github.com/thinhlx1993/tw-backend-sub000/tenant"
)

var _ catalog.Store = (*Catalog)(nil)

// Catalog is a read-through cache over a catalog.Store.
type Catalog struct {
	client redis.Cmdable
	inner  catalog.Store
	cfg    config
}

// NewCatalog wraps inner with a Redis read-through cache. The caller owns
// the Redis client lifecycle.
func NewCatalog(client redis.Cmdable, inner catalog.Store, opts ...Option) *Catalog {
	return &Catalog{client: client, inner: inner, cfg: newConfig(opts)}
}

// CreateTask writes through to the inner store and drops the stale list
// entry.
func (c *Catalog) CreateTask(ctx context.Context, part tenant.Partition, t *catalog.Task) error {
	if err := c.inner.CreateTask(ctx, part, t); err != nil {
		return err
	}

	if err := c.client.Del(ctx, taskListKey(part)).Err(); err != nil {
		c.cfg.logger.Debug("catalog cache invalidation failed",
			slog.String("key", taskListKey(part)), slog.String("error", err.Error()))
	}
	if data, err := json.Marshal(t); err == nil {
		if setErr := c.client.Set(ctx, taskKey(part, t.Name), data, c.cfg.ttl).Err(); setErr != nil {
			c.cfg.logger.Debug("catalog cache write failed",
				slog.String("key", taskKey(part, t.Name)), slog.String("error", setErr.Error()))
		}
	}
	return nil
}

// GetTaskByName returns the cached catalog entry, falling back to the
// inner store on miss or any Redis error.
func (c *Catalog) GetTaskByName(ctx context.Context, part tenant.Partition, name string) (*catalog.Task, error) {
	key := taskKey(part, name)

	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var t catalog.Task
		if unmarshalErr := json.Unmarshal(raw, &t); unmarshalErr == nil {
			return &t, nil
		}
	} else if err != redis.Nil {
		c.cfg.logger.Debug("catalog cache read failed",
			slog.String("key", key), slog.String("error", err.Error()))
	}

	t, err := c.inner.GetTaskByName(ctx, part, name)
	if err != nil {
		return nil, err
	}

	if data, marshalErr := json.Marshal(t); marshalErr == nil {
		if setErr := c.client.Set(ctx, key, data, c.cfg.ttl).Err(); setErr != nil {
			c.cfg.logger.Debug("catalog cache write failed",
				slog.String("key", key), slog.String("error", setErr.Error()))
		}
	}
	return t, nil
}

// ListTasks returns the cached catalog, falling back to the inner store
// on miss or any Redis error.
func (c *Catalog) ListTasks(ctx context.Context, part tenant.Partition) ([]*catalog.Task, error) {
	key := taskListKey(part)

	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var tasks []*catalog.Task
		if unmarshalErr := json.Unmarshal(raw, &tasks); unmarshalErr == nil {
			return tasks, nil
		}
	} else if err != redis.Nil {
		c.cfg.logger.Debug("catalog cache read failed",
			slog.String("key", key), slog.String("error", err.Error()))
	}

	tasks, err := c.inner.ListTasks(ctx, part)
	if err != nil {
		return nil, err
	}

	if data, marshalErr := json.Marshal(tasks); marshalErr == nil {
		if setErr := c.client.Set(ctx, key, data, c.cfg.ttl).Err(); setErr != nil {
			c.cfg.logger.Debug("catalog cache write failed",
				slog.String("key", key), slog.String("error", setErr.Error()))
		}
	}
	return tasks, nil
}
