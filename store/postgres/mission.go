package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	engage "github.com/thinhlx1993/tw-backend-sub000"
	"github.com/thinhlx1993/tw-backend-sub000/id"
	"github.com/thinhlx1993/tw-backend-sub000/mission"
	"github.com/thinhlx1993/tw-backend-sub000/tenant"
)

const missionColumns = `id, user_id, group_id, name, cron_expr, mission_json,
		force_start, status, tasks, created_at, updated_at`

// CreateMission persists a new mission.
func (s *Store) CreateMission(ctx context.Context, part tenant.Partition, m *mission.Mission) error {
	tasks, err := json.Marshal(m.Tasks)
	if err != nil {
		return fmt.Errorf("engage/postgres: marshal mission tasks: %w", err)
	}

	_, err = s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (
			id, user_id, group_id, name, cron_expr, mission_json,
			force_start, status, tasks, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		tbl(part, "missions")),
		m.ID.String(), m.UserID.String(), m.GroupID.String(), m.Name,
		m.CronExpr, m.MissionJSON, m.ForceStart, m.Status, tasks,
		m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return engage.ErrMissionAlreadyExists
		}
		return fmt.Errorf("engage/postgres: create mission: %w", err)
	}
	return nil
}

// GetMission retrieves a mission by ID.
func (s *Store) GetMission(ctx context.Context, part tenant.Partition, missionID id.MissionID) (*mission.Mission, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE id = $1`, missionColumns, tbl(part, "missions")),
		missionID.String(),
	)

	m, err := scanMission(row)
	if err != nil {
		if isNoRows(err) {
			return nil, engage.ErrMissionNotFound
		}
		return nil, fmt.Errorf("engage/postgres: get mission: %w", err)
	}
	return m, nil
}

// UpdateMission applies the non-nil fields of upd to a mission.
func (s *Store) UpdateMission(ctx context.Context, part tenant.Partition, missionID id.MissionID, upd mission.Update) (*mission.Mission, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{missionID.String()}

	addSet := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if upd.Name != nil {
		addSet("name", *upd.Name)
	}
	if upd.CronExpr != nil {
		addSet("cron_expr", *upd.CronExpr)
	}
	if upd.MissionJSON != nil {
		addSet("mission_json", *upd.MissionJSON)
	}
	if upd.ForceStart != nil {
		addSet("force_start", *upd.ForceStart)
	}
	if upd.Status != nil {
		addSet("status", *upd.Status)
	}
	if upd.Tasks != nil {
		tasks, err := json.Marshal(*upd.Tasks)
		if err != nil {
			return nil, fmt.Errorf("engage/postgres: marshal mission tasks: %w", err)
		}
		addSet("tasks", tasks)
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(
		`UPDATE %s SET %s WHERE id = $1 RETURNING %s`,
		tbl(part, "missions"), strings.Join(sets, ", "), missionColumns),
		args...,
	)

	m, err := scanMission(row)
	if err != nil {
		if isNoRows(err) {
			return nil, engage.ErrMissionNotFound
		}
		return nil, fmt.Errorf("engage/postgres: update mission: %w", err)
	}
	return m, nil
}

// DeleteMission removes a mission. Schedules and instances cascade via
// their foreign keys.
func (s *Store) DeleteMission(ctx context.Context, part tenant.Partition, missionID id.MissionID) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE id = $1`, tbl(part, "missions")),
		missionID.String(),
	)
	if err != nil {
		return fmt.Errorf("engage/postgres: delete mission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return engage.ErrMissionNotFound
	}
	return nil
}

// ListMissionsByUser returns all missions owned by a user.
func (s *Store) ListMissionsByUser(ctx context.Context, part tenant.Partition, userID id.UserID) ([]*mission.Mission, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE user_id = $1 ORDER BY id`,
		missionColumns, tbl(part, "missions")),
		userID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("engage/postgres: list missions by user: %w", err)
	}
	defer rows.Close()

	var out []*mission.Mission
	for rows.Next() {
		m, scanErr := scanMission(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("engage/postgres: scan mission row: %w", scanErr)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("engage/postgres: iterate mission rows: %w", err)
	}
	return out, nil
}

// CreateSchedule persists a schedule spawned from a mission.
func (s *Store) CreateSchedule(ctx context.Context, part tenant.Partition, sc *mission.Schedule) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (
			id, mission_id, profile_id, group_id, schedule_json,
			last_updated_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		tbl(part, "schedules")),
		sc.ID.String(), sc.MissionID.String(), sc.ProfileID.String(),
		sc.GroupID.String(), sc.ScheduleJSON, sc.LastUpdatedAt,
		sc.CreatedAt, sc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("engage/postgres: create schedule: %w", err)
	}
	return nil
}

// ListSchedulesByMission returns every schedule a mission spawned.
func (s *Store) ListSchedulesByMission(ctx context.Context, part tenant.Partition, missionID id.MissionID) ([]*mission.Schedule, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, mission_id, profile_id, group_id, schedule_json,
			last_updated_at, created_at, updated_at
		FROM %s WHERE mission_id = $1 ORDER BY id`,
		tbl(part, "schedules")),
		missionID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("engage/postgres: list schedules: %w", err)
	}
	defer rows.Close()

	var out []*mission.Schedule
	for rows.Next() {
		sc, scanErr := scanSchedule(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("engage/postgres: scan schedule row: %w", scanErr)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("engage/postgres: iterate schedule rows: %w", err)
	}
	return out, nil
}

// TouchSchedule bumps a schedule's LastUpdatedAt.
func (s *Store) TouchSchedule(ctx context.Context, part tenant.Partition, scheduleID id.ScheduleID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET last_updated_at = $2, updated_at = NOW() WHERE id = $1`,
		tbl(part, "schedules")),
		scheduleID.String(), at,
	)
	if err != nil {
		return fmt.Errorf("engage/postgres: touch schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return engage.ErrScheduleNotFound
	}
	return nil
}

// ConsumeForceStart atomically clears a mission's force-start flag and
// reports whether this caller observed it set. The conditional UPDATE
// makes the row visible to exactly one concurrent caller.
func (s *Store) ConsumeForceStart(ctx context.Context, part tenant.Partition, missionID id.MissionID) (bool, error) {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET force_start = FALSE, updated_at = NOW()
		 WHERE id = $1 AND force_start`,
		tbl(part, "missions")),
		missionID.String(),
	)
	if err != nil {
		return false, fmt.Errorf("engage/postgres: consume force start: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// Flag already clear, or mission missing. Tell them apart.
	var exists bool
	err = s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)`, tbl(part, "missions")),
		missionID.String(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("engage/postgres: consume force start: %w", err)
	}
	if !exists {
		return false, engage.ErrMissionNotFound
	}
	return false, nil
}

// ── Scan helpers ──────────────────────────────────────────────────

func scanMission(row pgx.Row) (*mission.Mission, error) {
	var (
		m        mission.Mission
		idStr    string
		userStr  string
		groupStr string
		tasks    []byte
	)
	err := row.Scan(
		&idStr, &userStr, &groupStr, &m.Name, &m.CronExpr, &m.MissionJSON,
		&m.ForceStart, &m.Status, &tasks, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(tasks) > 0 {
		if err := json.Unmarshal(tasks, &m.Tasks); err != nil {
			return nil, fmt.Errorf("engage/postgres: unmarshal mission tasks: %w", err)
		}
	}

	m.ID, err = id.ParseMissionID(idStr)
	if err != nil {
		return nil, fmt.Errorf("engage/postgres: parse mission id %q: %w", idStr, err)
	}
	m.UserID, err = id.ParseUserID(userStr)
	if err != nil {
		return nil, fmt.Errorf("engage/postgres: parse user id %q: %w", userStr, err)
	}
	if groupStr != "" {
		if parsed, parseErr := id.ParseGroupID(groupStr); parseErr == nil {
			m.GroupID = parsed
		}
	}

	return &m, nil
}

func scanSchedule(row pgx.Row) (*mission.Schedule, error) {
	var (
		sc         mission.Schedule
		idStr      string
		missionStr string
		profileStr string
		groupStr   string
	)
	err := row.Scan(
		&idStr, &missionStr, &profileStr, &groupStr, &sc.ScheduleJSON,
		&sc.LastUpdatedAt, &sc.CreatedAt, &sc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sc.ID, err = id.ParseScheduleID(idStr)
	if err != nil {
		return nil, fmt.Errorf("engage/postgres: parse schedule id %q: %w", idStr, err)
	}
	sc.MissionID, err = id.ParseMissionID(missionStr)
	if err != nil {
		return nil, fmt.Errorf("engage/postgres: parse mission id %q: %w", missionStr, err)
	}
	if profileStr != "" {
		if parsed, parseErr := id.ParseProfileID(profileStr); parseErr == nil {
			sc.ProfileID = parsed
		}
	}
	if groupStr != "" {
		if parsed, parseErr := id.ParseGroupID(groupStr); parseErr == nil {
			sc.GroupID = parsed
		}
	}

	return &sc, nil
}
