package postgres

import (
	"context"
	"fmt"

	engage "github.com/thinhlx1993/tw-backend-sub000"
	"github.com/thinhlx1993/tw-backend-sub000/id"
	"github.com/thinhlx1993/tw-backend-sub000/settings"
	"github.com/thinhlx1993/tw-backend-sub000/tenant"
)

// GetSettings retrieves the settings row for a user's device.
func (s *Store) GetSettings(ctx context.Context, part tenant.Partition, userID id.UserID, deviceID id.DeviceID) (*settings.Settings, error) {
	var (
		st        settings.Settings
		userStr   string
		deviceStr string
	)
	err := s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT user_id, device_id, threads, created_at, updated_at
		 FROM %s WHERE user_id = $1 AND device_id = $2`,
		tbl(part, "settings")),
		userID.String(), deviceID.String(),
	).Scan(&userStr, &deviceStr, &st.Threads, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, engage.ErrSettingsNotFound
		}
		return nil, fmt.Errorf("engage/postgres: get settings: %w", err)
	}

	st.UserID, err = id.ParseUserID(userStr)
	if err != nil {
		return nil, fmt.Errorf("engage/postgres: parse user id %q: %w", userStr, err)
	}
	st.DeviceID, err = id.ParseDeviceID(deviceStr)
	if err != nil {
		return nil, fmt.Errorf("engage/postgres: parse device id %q: %w", deviceStr, err)
	}
	return &st, nil
}

// PutSettings creates or replaces the settings row for a device.
func (s *Store) PutSettings(ctx context.Context, part tenant.Partition, st *settings.Settings) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (user_id, device_id, threads, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, device_id)
		DO UPDATE SET threads = EXCLUDED.threads, updated_at = NOW()`,
		tbl(part, "settings")),
		st.UserID.String(), st.DeviceID.String(), st.Threads,
		st.CreatedAt, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("engage/postgres: put settings: %w", err)
	}
	return nil
}
