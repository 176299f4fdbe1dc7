package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/thinhlx1993/tw-backend-sub000/event"
	"github.com/thinhlx1993/tw-backend-sub000/id"
	"github.com/thinhlx1993/tw-backend-sub000/tenant"
)

// AppendEvent persists a new interaction record.
func (s *Store) AppendEvent(ctx context.Context, part tenant.Partition, evt *event.Event) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, giver_profile_id, receiver_profile_id, type, issue, at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		tbl(part, "events")),
		evt.ID.String(), evt.GiverProfileID.String(),
		evt.ReceiverProfileID.String(), evt.Type, evt.Issue, evt.At,
	)
	if err != nil {
		return fmt.Errorf("engage/postgres: append event: %w", err)
	}
	return nil
}

// ListEventsByProfile returns events where the profile acted as giver or
// receiver, newest first, capped at limit.
func (s *Store) ListEventsByProfile(ctx context.Context, part tenant.Partition, profileID id.ProfileID, limit int) ([]*event.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, giver_profile_id, receiver_profile_id, type, issue, at
		FROM %s
		WHERE giver_profile_id = $1 OR receiver_profile_id = $1
		ORDER BY at DESC
		LIMIT $2`,
		tbl(part, "events")),
		profileID.String(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("engage/postgres: list events: %w", err)
	}
	defer rows.Close()

	var out []*event.Event
	for rows.Next() {
		var (
			e           event.Event
			idStr       string
			giverStr    string
			receiverStr string
		)
		if err := rows.Scan(&idStr, &giverStr, &receiverStr, &e.Type, &e.Issue, &e.At); err != nil {
			return nil, fmt.Errorf("engage/postgres: scan event row: %w", err)
		}

		e.ID, err = id.ParseEventID(idStr)
		if err != nil {
			return nil, fmt.Errorf("engage/postgres: parse event id %q: %w", idStr, err)
		}
		e.GiverProfileID, err = id.ParseProfileID(giverStr)
		if err != nil {
			return nil, fmt.Errorf("engage/postgres: parse giver id %q: %w", giverStr, err)
		}
		e.ReceiverProfileID, err = id.ParseProfileID(receiverStr)
		if err != nil {
			return nil, fmt.Errorf("engage/postgres: parse receiver id %q: %w", receiverStr, err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("engage/postgres: iterate event rows: %w", err)
	}
	return out, nil
}

// CountEventsSince counts events of a type involving a giver profile
// recorded at or after since.
func (s *Store) CountEventsSince(ctx context.Context, part tenant.Partition, giverID id.ProfileID, typ string, since time.Time) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT COUNT(*) FROM %s
		WHERE giver_profile_id = $1 AND type = $2 AND at >= $3`,
		tbl(part, "events")),
		giverID.String(), typ, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("engage/postgres: count events: %w", err)
	}
	return n, nil
}
