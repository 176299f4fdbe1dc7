package rediscache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/thinhlx1993/tw-backend-sub000/id"
	"github.com/thinhlx1993/tw-backend-sub000/settings"
	"github.com/thinhlx1993/tw-backend-sub000/tenant"
)

var _ settings.Store = (*Settings)(nil)

// Option configures a cache wrapper.
type Option func(*config)

type config struct {
	ttl    time.Duration
	logger *slog.Logger
}

// WithTTL sets the cache entry lifetime.
func WithTTL(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithLogger sets the cache's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

func newConfig(opts []Option) config {
	c := config{ttl: defaultTTL, logger: slog.Default()}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Settings is a read-through cache over a settings.Store.
type Settings struct {
	client redis.Cmdable
	inner  settings.Store
	cfg    config
}

// NewSettings wraps inner with a Redis read-through cache. The caller
// owns the Redis client lifecycle.
func NewSettings(client redis.Cmdable, inner settings.Store, opts ...Option) *Settings {
	return &Settings{client: client, inner: inner, cfg: newConfig(opts)}
}

// GetSettings returns the cached settings row, falling back to the inner
// store on miss or any Redis error.
func (s *Settings) GetSettings(ctx context.Context, part tenant.Partition, userID id.UserID, deviceID id.DeviceID) (*settings.Settings, error) {
	key := settingsKey(part, userID.String(), deviceID.String())

	raw, err := s.client.Get(ctx, key).Bytes()
	if err == nil {
		var st settings.Settings
		if unmarshalErr := json.Unmarshal(raw, &st); unmarshalErr == nil {
			return &st, nil
		}
		// A corrupt entry falls through to the inner store and is
		// overwritten below.
	} else if err != redis.Nil {
		s.cfg.logger.Debug("settings cache read failed",
			slog.String("key", key), slog.String("error", err.Error()))
	}

	st, err := s.inner.GetSettings(ctx, part, userID, deviceID)
	if err != nil {
		return nil, err
	}

	if data, marshalErr := json.Marshal(st); marshalErr == nil {
		if setErr := s.client.Set(ctx, key, data, s.cfg.ttl).Err(); setErr != nil {
			s.cfg.logger.Debug("settings cache write failed",
				slog.String("key", key), slog.String("error", setErr.Error()))
		}
	}
	return st, nil
}

// PutSettings writes through to the inner store and refreshes the cache
// entry.
func (s *Settings) PutSettings(ctx context.Context, part tenant.Partition, st *settings.Settings) error {
	if err := s.inner.PutSettings(ctx, part, st); err != nil {
		return err
	}

	key := settingsKey(part, st.UserID.String(), st.DeviceID.String())
	if data, err := json.Marshal(st); err == nil {
		if setErr := s.client.Set(ctx, key, data, s.cfg.ttl).Err(); setErr != nil {
			s.cfg.logger.Debug("settings cache write failed",
				slog.String("key", key), slog.String("error", setErr.Error()))
		}
	}
	return nil
}
