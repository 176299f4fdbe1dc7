package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	engage "github.com/thinhlx1993/tw-backend-sub000"
	"github.com/thinhlx1993/tw-backend-sub000/id"
	"github.com/thinhlx1993/tw-backend-sub000/instance"
	"github.com/thinhlx1993/tw-backend-sub000/tenant"
)

const instanceColumns = `id, mission_id, schedule_id, profile_id, tasks,
		task_last_updated_at, last_updated_at,
		is_completed, is_cancelled, is_deleted, created_at, updated_at`

// CreateInstance persists a new instance.
func (s *Store) CreateInstance(ctx context.Context, part tenant.Partition, in *instance.Instance) error {
	tasks, err := json.Marshal(in.Tasks)
	if err != nil {
		return fmt.Errorf("engage/postgres: marshal instance tasks: %w", err)
	}

	_, err = s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (
			id, mission_id, schedule_id, profile_id, tasks,
			task_last_updated_at, last_updated_at,
			is_completed, is_cancelled, is_deleted, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		tbl(part, "instances")),
		in.ID.String(), in.MissionID.String(), in.ScheduleID.String(),
		in.ProfileID.String(), tasks,
		in.TaskLastUpdatedAt, in.LastUpdatedAt,
		in.IsCompleted, in.IsCancelled, in.IsDeleted,
		in.CreatedAt, in.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("engage/postgres: create instance: %w", err)
	}
	return nil
}

// GetInstance retrieves an instance by ID.
func (s *Store) GetInstance(ctx context.Context, part tenant.Partition, instanceID id.InstanceID) (*instance.Instance, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE id = $1`, instanceColumns, tbl(part, "instances")),
		instanceID.String(),
	)

	in, err := scanInstance(row)
	if err != nil {
		if isNoRows(err) {
			return nil, engage.ErrInstanceNotFound
		}
		return nil, fmt.Errorf("engage/postgres: get instance: %w", err)
	}
	return in, nil
}

// DeleteInstance removes an instance.
func (s *Store) DeleteInstance(ctx context.Context, part tenant.Partition, instanceID id.InstanceID) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE id = $1`, tbl(part, "instances")),
		instanceID.String(),
	)
	if err != nil {
		return fmt.Errorf("engage/postgres: delete instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return engage.ErrInstanceNotFound
	}
	return nil
}

// ListInstancesByMission returns every instance of a mission.
func (s *Store) ListInstancesByMission(ctx context.Context, part tenant.Partition, missionID id.MissionID) ([]*instance.Instance, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE mission_id = $1 ORDER BY id`,
		instanceColumns, tbl(part, "instances")),
		missionID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("engage/postgres: list instances: %w", err)
	}
	defer rows.Close()

	var out []*instance.Instance
	for rows.Next() {
		in, scanErr := scanInstance(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("engage/postgres: scan instance row: %w", scanErr)
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("engage/postgres: iterate instance rows: %w", err)
	}
	return out, nil
}

// UpdateLocked runs fn with the instance row held under an exclusive lock
// inside one transaction. FOR UPDATE NOWAIT surfaces a contended row as
// engage.ErrLockBusy immediately instead of queueing behind the holder;
// callers own the retry policy. When fn asks for a write, the mutated
// instance is persisted and its owning schedule's last_updated_at is
// bumped in the same transaction.
func (s *Store) UpdateLocked(ctx context.Context, part tenant.Partition, instanceID id.InstanceID, fn instance.LockedUpdateFunc) (*instance.Instance, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("engage/postgres: begin locked update: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	row := tx.QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE id = $1 FOR UPDATE NOWAIT`,
		instanceColumns, tbl(part, "instances")),
		instanceID.String(),
	)

	in, err := scanInstance(row)
	if err != nil {
		switch {
		case isNoRows(err):
			return nil, engage.ErrInstanceNotFound
		case isLockNotAvailable(err):
			return nil, engage.ErrLockBusy
		default:
			return nil, fmt.Errorf("engage/postgres: lock instance: %w", err)
		}
	}

	write, err := fn(in)
	if err != nil {
		return nil, err
	}
	if !write {
		// Nothing to persist; the lock is released on rollback.
		return in, nil
	}

	tasks, err := json.Marshal(in.Tasks)
	if err != nil {
		return nil, fmt.Errorf("engage/postgres: marshal instance tasks: %w", err)
	}

	_, err = tx.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET
			tasks = $2, task_last_updated_at = $3, last_updated_at = $4,
			is_completed = $5, is_cancelled = $6, is_deleted = $7,
			updated_at = NOW()
		WHERE id = $1`,
		tbl(part, "instances")),
		in.ID.String(), tasks, in.TaskLastUpdatedAt, in.LastUpdatedAt,
		in.IsCompleted, in.IsCancelled, in.IsDeleted,
	)
	if err != nil {
		return nil, fmt.Errorf("engage/postgres: persist locked update: %w", err)
	}

	if !in.ScheduleID.IsNil() {
		_, err = tx.Exec(ctx, fmt.Sprintf(
			`UPDATE %s SET last_updated_at = NOW(), updated_at = NOW() WHERE id = $1`,
			tbl(part, "schedules")),
			in.ScheduleID.String(),
		)
		if err != nil {
			return nil, fmt.Errorf("engage/postgres: touch owning schedule: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("engage/postgres: commit locked update: %w", err)
	}
	return in, nil
}

// ── Scan helpers ──────────────────────────────────────────────────

func scanInstance(row pgx.Row) (*instance.Instance, error) {
	var (
		in          instance.Instance
		idStr       string
		missionStr  string
		scheduleStr string
		profileStr  string
		tasks       []byte
	)
	err := row.Scan(
		&idStr, &missionStr, &scheduleStr, &profileStr, &tasks,
		&in.TaskLastUpdatedAt, &in.LastUpdatedAt,
		&in.IsCompleted, &in.IsCancelled, &in.IsDeleted,
		&in.CreatedAt, &in.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(tasks) > 0 {
		if err := json.Unmarshal(tasks, &in.Tasks); err != nil {
			return nil, fmt.Errorf("engage/postgres: unmarshal instance tasks: %w", err)
		}
	}

	in.ID, err = id.ParseInstanceID(idStr)
	if err != nil {
		return nil, fmt.Errorf("engage/postgres: parse instance id %q: %w", idStr, err)
	}
	in.MissionID, err = id.ParseMissionID(missionStr)
	if err != nil {
		return nil, fmt.Errorf("engage/postgres: parse mission id %q: %w", missionStr, err)
	}
	if scheduleStr != "" {
		if parsed, parseErr := id.ParseScheduleID(scheduleStr); parseErr == nil {
			in.ScheduleID = parsed
		}
	}
	if profileStr != "" {
		if parsed, parseErr := id.ParseProfileID(profileStr); parseErr == nil {
			in.ProfileID = parsed
		}
	}

	return &in, nil
}
