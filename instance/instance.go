// Package instance defines mission instances — one concrete execution
// attempt of a mission with a mutable task journal — and the state machine
// that applies reported task status batches under row-level locking with
// event-time ordering.
package instance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	engage "github.com/thinhlx1993/tw-backend-sub000"
	"github.com/thinhlx1993/tw-backend-sub000/id"
	"github.com/thinhlx1993/tw-backend-sub000/tenant"
)

// Status is the lifecycle state of one task within a mission instance.
// The set is closed: values outside it are rejected at the boundary
// rather than stored.
type Status string

const (
	StatusIdling    Status = "idling"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"

	// StatusSkipped is derived, never reported: a running task whose
	// start time is set and which a later batch reports as idling again
	// was superseded before running to completion.
	StatusSkipped Status = "skipped"
)

// ParseStatus validates a reported status string against the closed set.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusIdling, StatusRunning, StatusCompleted, StatusError, StatusCancelled, StatusSkipped:
		return Status(s), nil
	default:
		return "", fmt.Errorf("%w: %q", engage.ErrInvalidStatus, s)
	}
}

// Terminal reports whether the status ends a task's execution.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusCancelled, StatusSkipped:
		return true
	default:
		return false
	}
}

// TaskEntry is one position in an instance's task journal. Unknown JSON
// fields delivered by clients are preserved across updates.
type TaskEntry struct {
	TaskID    id.TaskID      `json:"task_id,omitempty"`
	Name      string         `json:"name"`
	Status    Status         `json:"status"`
	StartTime *time.Time     `json:"start_time,omitempty"`
	EndTime   *time.Time     `json:"end_time,omitempty"`
	Config    map[string]any `json:"config,omitempty"`

	// extra carries JSON fields this engine does not interpret, so a
	// journal written by a newer client round-trips unchanged.
	extra map[string]json.RawMessage
}

// knownTaskEntryFields are the keys TaskEntry interprets itself.
var knownTaskEntryFields = map[string]struct{}{
	"task_id": {}, "name": {}, "status": {},
	"start_time": {}, "end_time": {}, "config": {},
}

// taskEntryAlias avoids marshal recursion.
type taskEntryAlias TaskEntry

// UnmarshalJSON decodes the known fields and stashes the rest.
func (e *TaskEntry) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, (*taskEntryAlias)(e)); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k := range raw {
		if _, known := knownTaskEntryFields[k]; known {
			delete(raw, k)
		}
	}
	if len(raw) > 0 {
		e.extra = raw
	} else {
		e.extra = nil
	}
	return nil
}

// MarshalJSON re-emits the known fields merged with the preserved ones.
func (e TaskEntry) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(taskEntryAlias(e))
	if err != nil {
		return nil, err
	}
	if len(e.extra) == 0 {
		return base, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range e.extra {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// Instance is one concrete execution attempt of a mission. Owned by the
// mission that spawned it and cascade-deleted with it.
type Instance struct {
	engage.Entity

	ID         id.InstanceID `json:"id"`
	MissionID  id.MissionID  `json:"mission_id"`
	ScheduleID id.ScheduleID `json:"schedule_id,omitempty"`
	ProfileID  id.ProfileID  `json:"profile_id,omitempty"`

	// Tasks is the ordered task journal ("mission_json" on the wire).
	Tasks []TaskEntry `json:"tasks"`

	// TaskLastUpdatedAt orders status batches by event time. It is
	// monotonically non-decreasing: a batch bearing an older timestamp
	// than the stored value is discarded.
	TaskLastUpdatedAt time.Time `json:"task_last_updated_at"`
	LastUpdatedAt     time.Time `json:"last_updated_at"`

	IsCompleted bool `json:"is_completed"`
	IsCancelled bool `json:"is_cancelled"`
	IsDeleted   bool `json:"is_deleted"`
}

// Clone returns a deep copy so callers can mutate without racing a store.
func (in *Instance) Clone() *Instance {
	cp := *in
	cp.Tasks = make([]TaskEntry, len(in.Tasks))
	copy(cp.Tasks, in.Tasks)
	for i := range cp.Tasks {
		if st := in.Tasks[i].StartTime; st != nil {
			t := *st
			cp.Tasks[i].StartTime = &t
		}
		if et := in.Tasks[i].EndTime; et != nil {
			t := *et
			cp.Tasks[i].EndTime = &t
		}
		if len(in.Tasks[i].extra) > 0 {
			extra := make(map[string]json.RawMessage, len(in.Tasks[i].extra))
			for k, v := range in.Tasks[i].extra {
				extra[k] = v
			}
			cp.Tasks[i].extra = extra
		}
	}
	return &cp
}

// LockedUpdateFunc mutates an exclusively locked instance. Return
// write=false to commit without persisting (the staleness no-op path);
// any error rolls the whole update back.
type LockedUpdateFunc func(inst *Instance) (write bool, err error)

// Store defines the persistence contract for mission instances.
type Store interface {
	// CreateInstance persists a new instance.
	CreateInstance(ctx context.Context, part tenant.Partition, in *Instance) error

	// GetInstance retrieves an instance by ID. Returns
	// engage.ErrInstanceNotFound when absent.
	GetInstance(ctx context.Context, part tenant.Partition, instanceID id.InstanceID) (*Instance, error)

	// DeleteInstance removes an instance.
	DeleteInstance(ctx context.Context, part tenant.Partition, instanceID id.InstanceID) error

	// ListInstancesByMission returns every instance of a mission.
	ListInstancesByMission(ctx context.Context, part tenant.Partition, missionID id.MissionID) ([]*Instance, error)

	// UpdateLocked runs fn with the instance row held under an exclusive
	// lock inside one transaction. When fn asks for a write, the mutated
	// instance is persisted and, if it belongs to a schedule, that
	// schedule's last_updated_at is bumped in the same transaction. Any
	// error from fn rolls everything back. A contended lock returns
	// engage.ErrLockBusy without waiting; callers own the retry policy.
	UpdateLocked(ctx context.Context, part tenant.Partition, instanceID id.InstanceID, fn LockedUpdateFunc) (*Instance, error)
}
