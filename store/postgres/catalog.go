package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	engage "github.com/thinhlx1993/tw-backend-sub000"
	"github.com/thinhlx1993/tw-backend-sub000/catalog"
	"github.com/thinhlx1993/tw-backend-sub000/id"
	"github.com/thinhlx1993/tw-backend-sub000/tenant"
)

// CreateTask persists a new catalog entry.
func (s *Store) CreateTask(ctx context.Context, part tenant.Partition, t *catalog.Task) error {
	cfg, err := json.Marshal(t.Config)
	if err != nil {
		return fmt.Errorf("engage/postgres: marshal task config: %w", err)
	}

	_, err = s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, name, type, config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		tbl(part, "tasks")),
		t.ID.String(), t.Name, t.Type, cfg, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return engage.ErrTaskAlreadyExists
		}
		return fmt.Errorf("engage/postgres: create task: %w", err)
	}
	return nil
}

// GetTaskByName retrieves a catalog entry by name.
func (s *Store) GetTaskByName(ctx context.Context, part tenant.Partition, name string) (*catalog.Task, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT id, name, type, config, created_at, updated_at FROM %s WHERE name = $1`,
		tbl(part, "tasks")),
		name,
	)

	t, err := scanTask(row)
	if err != nil {
		if isNoRows(err) {
			return nil, engage.ErrTaskNotFound
		}
		return nil, fmt.Errorf("engage/postgres: get task: %w", err)
	}
	return t, nil
}

// ListTasks returns the whole catalog.
func (s *Store) ListTasks(ctx context.Context, part tenant.Partition) ([]*catalog.Task, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT id, name, type, config, created_at, updated_at FROM %s ORDER BY name`,
		tbl(part, "tasks")),
	)
	if err != nil {
		return nil, fmt.Errorf("engage/postgres: list tasks: %w", err)
	}
	defer rows.Close()

	var out []*catalog.Task
	for rows.Next() {
		t, scanErr := scanTask(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("engage/postgres: scan task row: %w", scanErr)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("engage/postgres: iterate task rows: %w", err)
	}
	return out, nil
}

func scanTask(row pgx.Row) (*catalog.Task, error) {
	var (
		t     catalog.Task
		idStr string
		cfg   []byte
	)
	err := row.Scan(&idStr, &t.Name, &t.Type, &cfg, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &t.Config); err != nil {
			return nil, fmt.Errorf("engage/postgres: unmarshal task config: %w", err)
		}
	}

	t.ID, err = id.ParseTaskID(idStr)
	if err != nil {
		return nil, fmt.Errorf("engage/postgres: parse task id %q: %w", idStr, err)
	}
	return &t, nil
}
