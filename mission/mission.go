// Package mission defines user-authored units of recurring or one-shot
// automated work, their per-profile schedules, and the persistence
// contract including the one-shot force-start consumption.
package mission

import (
	"context"
	"time"

	engage "github.com/thinhlx1993/tw-backend-sub000"
	"github.com/thinhlx1993/tw-backend-sub000/id"
	"github.com/thinhlx1993/tw-backend-sub000/tenant"
)

// TaskRef binds a catalog task to a mission with a per-assignment config.
type TaskRef struct {
	TaskID id.TaskID      `json:"task_id"`
	Name   string         `json:"name"`
	Config map[string]any `json:"config,omitempty"`
}

// Mission is a named unit of recurring or one-off work scoped to a user
// and optionally a group.
type Mission struct {
	engage.Entity

	ID      id.MissionID `json:"id"`
	UserID  id.UserID    `json:"user_id"`
	GroupID id.GroupID   `json:"group_id,omitempty"`
	Name    string       `json:"name"`

	// CronExpr is the recurring schedule, empty for one-shot missions.
	CronExpr string `json:"cron_expr,omitempty"`

	// MissionJSON carries the client-facing loop/cron descriptor verbatim.
	MissionJSON string `json:"mission_json,omitempty"`

	// ForceStart is a manual one-shot trigger. It is consumed (cleared)
	// by exactly one poller; see Store.ConsumeForceStart.
	ForceStart bool `json:"force_start"`

	Status string `json:"status,omitempty"`

	// Tasks is the ordered task list executed on each firing.
	Tasks []TaskRef `json:"tasks,omitempty"`
}

// Schedule materializes a mission against a specific profile. One mission
// produces one schedule per eligible profile at creation time; schedules
// are owned by their mission and cascade-deleted with it.
type Schedule struct {
	engage.Entity

	ID            id.ScheduleID `json:"id"`
	MissionID     id.MissionID  `json:"mission_id"`
	ProfileID     id.ProfileID  `json:"profile_id"`
	GroupID       id.GroupID    `json:"group_id,omitempty"`
	ScheduleJSON  string        `json:"schedule_json,omitempty"`
	LastUpdatedAt time.Time     `json:"last_updated_at"`
}

// Update enumerates the mutable mission fields. Only non-nil fields are
// applied.
type Update struct {
	Name        *string
	CronExpr    *string
	MissionJSON *string
	ForceStart  *bool
	Status      *string
	Tasks       *[]TaskRef
}

// Store defines the persistence contract for missions and schedules.
type Store interface {
	// CreateMission persists a new mission. Returns
	// engage.ErrMissionAlreadyExists on a duplicate ID.
	CreateMission(ctx context.Context, part tenant.Partition, m *Mission) error

	// GetMission retrieves a mission by ID.
	GetMission(ctx context.Context, part tenant.Partition, missionID id.MissionID) (*Mission, error)

	// UpdateMission applies the non-nil fields of upd and returns the
	// updated mission.
	UpdateMission(ctx context.Context, part tenant.Partition, missionID id.MissionID, upd Update) (*Mission, error)

	// DeleteMission removes a mission and cascades to its schedules and
	// instances.
	DeleteMission(ctx context.Context, part tenant.Partition, missionID id.MissionID) error

	// ListMissionsByUser returns all missions owned by a user.
	ListMissionsByUser(ctx context.Context, part tenant.Partition, userID id.UserID) ([]*Mission, error)

	// CreateSchedule persists a schedule spawned from a mission.
	CreateSchedule(ctx context.Context, part tenant.Partition, s *Schedule) error

	// ListSchedulesByMission returns every schedule a mission spawned.
	ListSchedulesByMission(ctx context.Context, part tenant.Partition, missionID id.MissionID) ([]*Schedule, error)

	// TouchSchedule bumps a schedule's LastUpdatedAt.
	TouchSchedule(ctx context.Context, part tenant.Partition, scheduleID id.ScheduleID, at time.Time) error

	// ConsumeForceStart atomically clears a mission's force-start flag and
	// reports whether this caller observed it set. Under concurrent
	// pollers at most one caller gets true, so a one-shot mission cannot
	// double-fire.
	ConsumeForceStart(ctx context.Context, part tenant.Partition, missionID id.MissionID) (bool, error)
}
