// Package settings reads per-device client settings. Settings are a soft
// dependency of scheduling: absence must never fail schedule retrieval.
package settings

import (
	"context"
	"log/slog"

	engage "github.com/thinhlx1993/tw-backend-sub000"
	"github.com/thinhlx1993/tw-backend-sub000/id"
	"github.com/thinhlx1993/tw-backend-sub000/tenant"
)

// DefaultThreads is the concurrency hint used when no settings row exists
// or the read fails.
const DefaultThreads = 20

// Settings holds per-device client configuration.
type Settings struct {
	engage.Entity

	UserID   id.UserID   `json:"user_id"`
	DeviceID id.DeviceID `json:"device_id"`

	// Threads is how many interaction pairs the device works in parallel.
	Threads int `json:"threads"`
}

// Store defines the read contract for device settings.
type Store interface {
	// GetSettings retrieves the settings row for a user's device.
	// Returns engage.ErrSettingsNotFound when absent.
	GetSettings(ctx context.Context, part tenant.Partition, userID id.UserID, deviceID id.DeviceID) (*Settings, error)

	// PutSettings creates or replaces the settings row for a device.
	PutSettings(ctx context.Context, part tenant.Partition, s *Settings) error
}

// ThreadsOrDefault reads the device's thread count, falling back to def
// (or DefaultThreads when def is not positive) on any failure. Missing
// settings are expected for fresh devices; real store errors are logged
// and absorbed the same way so a degraded settings store cannot block
// scheduling.
func ThreadsOrDefault(ctx context.Context, store Store, part tenant.Partition, userID id.UserID, deviceID id.DeviceID, def int, logger *slog.Logger) int {
	if def <= 0 {
		def = DefaultThreads
	}
	s, err := store.GetSettings(ctx, part, userID, deviceID)
	if err != nil {
		if logger != nil {
			logger.Debug("settings unavailable, using default threads",
				slog.String("user_id", userID.String()),
				slog.String("device_id", deviceID.String()),
				slog.String("error", err.Error()),
			)
		}
		return def
	}
	if s.Threads <= 0 {
		return def
	}
	return s.Threads
}
