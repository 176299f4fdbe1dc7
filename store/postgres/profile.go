package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	engage "github.com/thinhlx1993/tw-backend-sub000"
	"github.com/thinhlx1993/tw-backend-sub000/id"
	"github.com/thinhlx1993/tw-backend-sub000/profile"
	"github.com/thinhlx1993/tw-backend-sub000/tenant"
)

const profileColumns = `id, owner_id, group_id, username, main_profile, is_disable, status,
		click_count, comment_count, like_count, profile_data, created_at, updated_at`

// counterColumn maps a profile.Counter to its column. The Counter set is
// closed, so this cannot inject arbitrary SQL.
func counterColumn(c profile.Counter) string {
	switch c {
	case profile.CounterComment:
		return "comment_count"
	case profile.CounterLike:
		return "like_count"
	default:
		return "click_count"
	}
}

// CreateProfile persists a new profile.
func (s *Store) CreateProfile(ctx context.Context, part tenant.Partition, p *profile.Profile) error {
	data, err := json.Marshal(p.Data)
	if err != nil {
		return fmt.Errorf("engage/postgres: marshal profile data: %w", err)
	}

	_, err = s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (
			id, owner_id, group_id, username, main_profile, is_disable, status,
			click_count, comment_count, like_count, profile_data,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		tbl(part, "profiles")),
		p.ID.String(), p.OwnerID.String(), p.GroupID.String(), p.Username,
		p.MainProfile, p.IsDisable, p.Status,
		p.ClickCount, p.CommentCount, p.LikeCount, data,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return engage.ErrProfileAlreadyExists
		}
		return fmt.Errorf("engage/postgres: create profile: %w", err)
	}
	return nil
}

// GetProfile retrieves a profile by ID.
func (s *Store) GetProfile(ctx context.Context, part tenant.Partition, profileID id.ProfileID) (*profile.Profile, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE id = $1`, profileColumns, tbl(part, "profiles")),
		profileID.String(),
	)

	p, err := scanProfile(row)
	if err != nil {
		if isNoRows(err) {
			return nil, engage.ErrProfileNotFound
		}
		return nil, fmt.Errorf("engage/postgres: get profile: %w", err)
	}
	return p, nil
}

// UpdateProfile applies the non-nil fields of upd to a profile.
func (s *Store) UpdateProfile(ctx context.Context, part tenant.Partition, profileID id.ProfileID, upd profile.Update) (*profile.Profile, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{profileID.String()}

	addSet := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if upd.Status != nil {
		addSet("status", *upd.Status)
	}
	if upd.IsDisable != nil {
		addSet("is_disable", *upd.IsDisable)
	}
	if upd.MainProfile != nil {
		addSet("main_profile", *upd.MainProfile)
	}
	if upd.GroupID != nil {
		addSet("group_id", upd.GroupID.String())
	}
	if upd.Data != nil {
		data, err := json.Marshal(*upd.Data)
		if err != nil {
			return nil, fmt.Errorf("engage/postgres: marshal profile data: %w", err)
		}
		addSet("profile_data", data)
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(
		`UPDATE %s SET %s WHERE id = $1 RETURNING %s`,
		tbl(part, "profiles"), strings.Join(sets, ", "), profileColumns),
		args...,
	)

	p, err := scanProfile(row)
	if err != nil {
		if isNoRows(err) {
			return nil, engage.ErrProfileNotFound
		}
		return nil, fmt.Errorf("engage/postgres: update profile: %w", err)
	}
	return p, nil
}

// ListProfilesByOwner returns all profiles owned by a user.
func (s *Store) ListProfilesByOwner(ctx context.Context, part tenant.Partition, ownerID id.UserID) ([]*profile.Profile, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE owner_id = $1 ORDER BY id`,
		profileColumns, tbl(part, "profiles")),
		ownerID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("engage/postgres: list profiles by owner: %w", err)
	}
	defer rows.Close()

	return collectProfiles(rows)
}

// ListReceiverCandidates returns enabled main profiles under the daily
// cap, in random order. Randomness spreads load evenly across receivers
// over repeated allocations.
func (s *Store) ListReceiverCandidates(ctx context.Context, part tenant.Partition, f profile.CandidateFilter) ([]*profile.Profile, error) {
	where := []string{
		"main_profile",
		"NOT is_disable",
		fmt.Sprintf("%s < $1", counterColumn(f.Counter)),
	}
	args := []any{f.Limit}

	if len(f.OwnerIn) > 0 {
		args = append(args, idStrings(f.OwnerIn))
		where = append(where, fmt.Sprintf("owner_id = ANY($%d)", len(args)))
	}

	args = append(args, maxOrDefault(f.Max))
	limit := len(args)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE %s ORDER BY random() LIMIT $%d`,
		profileColumns, tbl(part, "profiles"), strings.Join(where, " AND "), limit),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("engage/postgres: list receiver candidates: %w", err)
	}
	defer rows.Close()

	return collectProfiles(rows)
}

// ListGiverCandidates returns enabled, verified, not-suspended non-main
// profiles under the daily cap whose credentials still work, in random
// order.
func (s *Store) ListGiverCandidates(ctx context.Context, part tenant.Partition, f profile.CandidateFilter) ([]*profile.Profile, error) {
	where := []string{
		"NOT main_profile",
		"NOT is_disable",
		"profile_data->>'verify' = 'true'",
		"COALESCE(profile_data->>'suspended', 'false') <> 'true'",
		"status <> $1",
		fmt.Sprintf("%s < $2", counterColumn(f.Counter)),
	}
	args := []any{profile.StatusWrongPassword, f.Limit}

	if len(f.ExcludeOwners) > 0 {
		args = append(args, idStrings(f.ExcludeOwners))
		where = append(where, fmt.Sprintf("owner_id <> ALL($%d)", len(args)))
	}

	args = append(args, maxOrDefault(f.Max))
	limit := len(args)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE %s ORDER BY random() LIMIT $%d`,
		profileColumns, tbl(part, "profiles"), strings.Join(where, " AND "), limit),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("engage/postgres: list giver candidates: %w", err)
	}
	defer rows.Close()

	return collectProfiles(rows)
}

// IncrementCounter bumps the named daily counter by one.
func (s *Store) IncrementCounter(ctx context.Context, part tenant.Partition, profileID id.ProfileID, c profile.Counter) error {
	col := counterColumn(c)
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET %s = %s + 1, updated_at = NOW() WHERE id = $1`,
		tbl(part, "profiles"), col, col),
		profileID.String(),
	)
	if err != nil {
		return fmt.Errorf("engage/postgres: increment counter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return engage.ErrProfileNotFound
	}
	return nil
}

// ResetDailyCounters zeroes every profile's daily counters.
func (s *Store) ResetDailyCounters(ctx context.Context, part tenant.Partition) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET click_count = 0, comment_count = 0, like_count = 0, updated_at = NOW()`,
		tbl(part, "profiles")),
	)
	if err != nil {
		return fmt.Errorf("engage/postgres: reset daily counters: %w", err)
	}
	return nil
}

// CreateGroup persists a new group.
func (s *Store) CreateGroup(ctx context.Context, part tenant.Partition, g *profile.Group) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, name, members, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		tbl(part, "groups")),
		g.ID.String(), g.Name, idStrings(g.Members), g.CreatedAt, g.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("engage/postgres: create group: %w", err)
	}
	return nil
}

// GetGroup retrieves a group by ID.
func (s *Store) GetGroup(ctx context.Context, part tenant.Partition, groupID id.GroupID) (*profile.Group, error) {
	var (
		g       profile.Group
		idStr   string
		members []string
	)
	err := s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT id, name, members, created_at, updated_at FROM %s WHERE id = $1`,
		tbl(part, "groups")),
		groupID.String(),
	).Scan(&idStr, &g.Name, &members, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, engage.ErrGroupNotFound
		}
		return nil, fmt.Errorf("engage/postgres: get group: %w", err)
	}

	g.ID, err = id.ParseGroupID(idStr)
	if err != nil {
		return nil, fmt.Errorf("engage/postgres: parse group id %q: %w", idStr, err)
	}
	g.Members, err = parseUserIDs(members)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// LaggingGroup returns one group whose members' aggregate counter value
// today is below threshold.
func (s *Store) LaggingGroup(ctx context.Context, part tenant.Partition, c profile.Counter, threshold int) (id.GroupID, []id.UserID, error) {
	var (
		idStr   string
		members []string
	)
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT g.id, g.members
		FROM %s g
		LEFT JOIN %s p ON p.owner_id = ANY(g.members)
		GROUP BY g.id, g.members
		HAVING COALESCE(SUM(p.%s), 0) < $1
		ORDER BY g.id
		LIMIT 1`,
		tbl(part, "groups"), tbl(part, "profiles"), counterColumn(c)),
		threshold,
	).Scan(&idStr, &members)
	if err != nil {
		if isNoRows(err) {
			// Every group is at or over the threshold.
			return id.Nil, nil, nil
		}
		return id.Nil, nil, fmt.Errorf("engage/postgres: lagging group: %w", err)
	}

	gid, err := id.ParseGroupID(idStr)
	if err != nil {
		return id.Nil, nil, fmt.Errorf("engage/postgres: parse group id %q: %w", idStr, err)
	}
	users, err := parseUserIDs(members)
	if err != nil {
		return id.Nil, nil, err
	}
	return gid, users, nil
}

// ── Scan helpers ──────────────────────────────────────────────────

func scanProfile(row pgx.Row) (*profile.Profile, error) {
	var (
		p        profile.Profile
		idStr    string
		ownerStr string
		groupStr string
		data     []byte
	)
	err := row.Scan(
		&idStr, &ownerStr, &groupStr, &p.Username, &p.MainProfile,
		&p.IsDisable, &p.Status,
		&p.ClickCount, &p.CommentCount, &p.LikeCount, &data,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &p.Data); err != nil {
			return nil, fmt.Errorf("engage/postgres: unmarshal profile data: %w", err)
		}
	}

	p.ID, err = id.ParseProfileID(idStr)
	if err != nil {
		return nil, fmt.Errorf("engage/postgres: parse profile id %q: %w", idStr, err)
	}
	p.OwnerID, err = id.ParseUserID(ownerStr)
	if err != nil {
		return nil, fmt.Errorf("engage/postgres: parse owner id %q: %w", ownerStr, err)
	}
	if groupStr != "" {
		if parsed, parseErr := id.ParseGroupID(groupStr); parseErr == nil {
			p.GroupID = parsed
		}
	}

	return &p, nil
}

func collectProfiles(rows pgx.Rows) ([]*profile.Profile, error) {
	var out []*profile.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("engage/postgres: scan profile row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("engage/postgres: iterate profile rows: %w", err)
	}
	return out, nil
}

func idStrings(ids []id.UserID) []string {
	out := make([]string, len(ids))
	for i, u := range ids {
		out[i] = u.String()
	}
	return out
}

func parseUserIDs(raw []string) ([]id.UserID, error) {
	out := make([]id.UserID, 0, len(raw))
	for _, r := range raw {
		u, err := id.ParseUserID(r)
		if err != nil {
			return nil, fmt.Errorf("engage/postgres: parse user id %q: %w", r, err)
		}
		out = append(out, u)
	}
	return out, nil
}

// maxOrDefault caps candidate queries; a non-positive Max means the
// caller wants everything that matches.
func maxOrDefault(n int) int {
	if n <= 0 {
		return 10000
	}
	return n
}
