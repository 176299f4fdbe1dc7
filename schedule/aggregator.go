// Package schedule combines fixed housekeeping crons, user mission
// schedules and allocator-produced ad-hoc interactions into one ordered
// work list for a polling client.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/thinhlx1993/tw-backend-sub000/allocator"
	"github.com/thinhlx1993/tw-backend-sub000/catalog"
	"github.com/thinhlx1993/tw-backend-sub000/cron"
	"github.com/thinhlx1993/tw-backend-sub000/event"
	"github.com/thinhlx1993/tw-backend-sub000/id"
	"github.com/thinhlx1993/tw-backend-sub000/mission"
	"github.com/thinhlx1993/tw-backend-sub000/profile"
	"github.com/thinhlx1993/tw-backend-sub000/settings"
	"github.com/thinhlx1993/tw-backend-sub000/tenant"
)

// TypeMissionShouldStart is the resolved type for fixed and user-mission
// work; ad-hoc work resolves to its interaction type instead.
const TypeMissionShouldStart = "mission_should_start"

// TaskDescriptor is one step of a work item as delivered to the client.
type TaskDescriptor struct {
	TaskID id.TaskID      `json:"task_id,omitempty"`
	Name   string         `json:"name"`
	Config map[string]any `json:"config,omitempty"`
}

// WorkItem is one unit of work for the polling client.
type WorkItem struct {
	// ReceiverProfileID is the profile the work happens on.
	ReceiverProfileID id.ProfileID `json:"profile_id"`

	// GiverProfileID is set for ad-hoc interaction work only.
	GiverProfileID id.ProfileID `json:"profile_id_interact,omitempty"`

	// MissionID and ScheduleID are set for mission work only.
	MissionID  id.MissionID  `json:"mission_id,omitempty"`
	ScheduleID id.ScheduleID `json:"schedule_id,omitempty"`

	// Tasks always holds at least one descriptor.
	Tasks []TaskDescriptor `json:"tasks"`

	// StartAt is wall-clock "now" at evaluation for ad-hoc items, and for
	// mission items the evaluation time of the due schedule.
	StartAt time.Time `json:"start_at"`
}

// WorkList is the aggregator's answer to one poll.
type WorkList struct {
	Items []WorkItem `json:"items"`

	// ResolvedType is TypeMissionShouldStart for mission work, or the
	// interaction type (e.g. "clickAds") for ad-hoc work.
	ResolvedType string `json:"resolved_type"`
}

// Stores bundles the persistence the aggregator reads.
type Stores struct {
	Profiles profile.Store
	Missions mission.Store
	Settings settings.Store
	Tasks    catalog.Store
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithCheckFollowCrons overrides the fixed housekeeping windows.
func WithCheckFollowCrons(exprs []string) Option {
	return func(a *Aggregator) { a.checkFollowCrons = exprs }
}

// WithTolerance sets the due-window tolerance.
func WithTolerance(d time.Duration) Option {
	return func(a *Aggregator) { a.tolerance = d }
}

// WithBus sets the notification bus.
func WithBus(b *event.Bus) Option {
	return func(a *Aggregator) { a.bus = b }
}

// WithLogger sets the aggregator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithDefaultThreads sets the thread count used when a device has no
// settings row.
func WithDefaultThreads(n int) Option {
	return func(a *Aggregator) { a.defaultThreads = n }
}

// Aggregator builds the work list for a polling user/device.
type Aggregator struct {
	stores    Stores
	evaluator *cron.Evaluator
	alloc     *allocator.Allocator
	limits    catalog.Limits
	bus       *event.Bus
	logger    *slog.Logger
	now       func() time.Time

	checkFollowCrons []string
	tolerance        time.Duration
	defaultThreads   int
}

// NewAggregator creates an Aggregator.
func NewAggregator(stores Stores, evaluator *cron.Evaluator, alloc *allocator.Allocator, limits catalog.Limits, opts ...Option) *Aggregator {
	a := &Aggregator{
		stores:           stores,
		evaluator:        evaluator,
		alloc:            alloc,
		limits:           limits,
		logger:           slog.Default(),
		now:              func() time.Time { return time.Now().UTC() },
		checkFollowCrons: []string{"0 8 * * *", "30 20 * * *"},
		tolerance:        60 * time.Second,
		defaultThreads:   settings.DefaultThreads,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Get resolves what the requesting user's device should work on right
// now. Priority order, first match wins:
//
//  1. Fixed housekeeping: inside a check-follow window, one item per
//     profile the user owns.
//  2. User missions: any mission due by cron or force-started; its task
//     list is attached to every schedule the mission spawned. The
//     force-start flag is consumed exactly once across racing pollers.
//  3. Ad-hoc interactions: a random configured interaction type is
//     allocated under the device's threads hint.
//
// The hint currently only annotates logs; the priority order decides.
func (a *Aggregator) Get(ctx context.Context, part tenant.Partition, userID id.UserID, deviceID id.DeviceID, hint string) (WorkList, error) {
	now := a.now()

	if a.inCheckFollowWindow(now) {
		return a.checkFollowWork(ctx, part, userID, now)
	}

	items, err := a.dueMissionWork(ctx, part, userID, now)
	if err != nil {
		return WorkList{}, err
	}
	if len(items) > 0 {
		return WorkList{Items: items, ResolvedType: TypeMissionShouldStart}, nil
	}

	return a.adhocWork(ctx, part, userID, deviceID, hint, now)
}

func (a *Aggregator) inCheckFollowWindow(now time.Time) bool {
	for _, expr := range a.checkFollowCrons {
		if a.evaluator.IsDue(expr, now, a.tolerance) {
			return true
		}
	}
	return false
}

// checkFollowWork builds one follow-check item per profile the user owns.
func (a *Aggregator) checkFollowWork(ctx context.Context, part tenant.Partition, userID id.UserID, now time.Time) (WorkList, error) {
	profiles, err := a.stores.Profiles.ListProfilesByOwner(ctx, part, userID)
	if err != nil {
		return WorkList{}, fmt.Errorf("schedule: list profiles: %w", err)
	}

	task := a.taskDescriptorFor(ctx, part, catalog.TypeCheckFollow)
	items := make([]WorkItem, 0, len(profiles))
	for _, p := range profiles {
		if p.IsDisable {
			continue
		}
		items = append(items, WorkItem{
			ReceiverProfileID: p.ID,
			Tasks:             []TaskDescriptor{task},
			StartAt:           now,
		})
	}

	return WorkList{Items: items, ResolvedType: TypeMissionShouldStart}, nil
}

// dueMissionWork returns schedule work for every mission of the user that
// is due by cron or force-started. Force-start is a one-shot: the store
// clears it atomically and only the winning poller acts on it.
func (a *Aggregator) dueMissionWork(ctx context.Context, part tenant.Partition, userID id.UserID, now time.Time) ([]WorkItem, error) {
	missions, err := a.stores.Missions.ListMissionsByUser(ctx, part, userID)
	if err != nil {
		return nil, fmt.Errorf("schedule: list missions: %w", err)
	}

	var items []WorkItem
	for _, m := range missions {
		due := a.evaluator.IsDue(m.CronExpr, now, a.tolerance)

		if !due && m.ForceStart {
			won, err := a.stores.Missions.ConsumeForceStart(ctx, part, m.ID)
			if err != nil {
				return nil, fmt.Errorf("schedule: consume force start: %w", err)
			}
			if !won {
				continue
			}
			due = true
			a.publish(event.Notification{
				Kind:      event.KindForceStartConsumed,
				TenantID:  part.TenantID(),
				MissionID: m.ID,
				UserID:    userID,
			})
		} else if due && m.ForceStart {
			// Cron made the mission due anyway; still clear the one-shot
			// so it cannot fire again on the next poll.
			if _, err := a.stores.Missions.ConsumeForceStart(ctx, part, m.ID); err != nil {
				return nil, fmt.Errorf("schedule: consume force start: %w", err)
			}
		}

		if !due {
			continue
		}

		schedules, err := a.stores.Missions.ListSchedulesByMission(ctx, part, m.ID)
		if err != nil {
			return nil, fmt.Errorf("schedule: list mission schedules: %w", err)
		}

		tasks := taskDescriptors(m)
		for _, s := range schedules {
			items = append(items, WorkItem{
				ReceiverProfileID: s.ProfileID,
				MissionID:         m.ID,
				ScheduleID:        s.ID,
				Tasks:             tasks,
				StartAt:           now,
			})
		}

		if len(schedules) > 0 {
			a.publish(event.Notification{
				Kind:      event.KindMissionFired,
				TenantID:  part.TenantID(),
				MissionID: m.ID,
				UserID:    userID,
				Count:     len(schedules),
			})
		}
	}

	return items, nil
}

// adhocWork allocates interaction pairs for one randomly drawn type.
func (a *Aggregator) adhocWork(ctx context.Context, part tenant.Partition, userID id.UserID, deviceID id.DeviceID, hint string, now time.Time) (WorkList, error) {
	threads := settings.ThreadsOrDefault(ctx, a.stores.Settings, part, userID, deviceID, a.defaultThreads, a.logger)

	typ, ok := a.limits.RandomType()
	if !ok {
		a.logger.Warn("no interaction types configured, returning empty schedule",
			slog.String("hint", hint))
		return WorkList{ResolvedType: ""}, nil
	}

	alloc, err := a.alloc.Allocate(ctx, part, typ, threads)
	if err != nil {
		return WorkList{}, fmt.Errorf("schedule: allocate %s: %w", typ, err)
	}

	items := make([]WorkItem, 0, len(alloc.Pairs))
	task := TaskDescriptor{Name: typ}
	if alloc.Task != nil {
		task = TaskDescriptor{TaskID: alloc.Task.ID, Name: alloc.Task.Name, Config: alloc.Task.Config}
	}
	for _, pair := range alloc.Pairs {
		items = append(items, WorkItem{
			ReceiverProfileID: pair.Receiver.ID,
			GiverProfileID:    pair.Giver.ID,
			Tasks:             []TaskDescriptor{task},
			StartAt:           now,
		})
	}

	if len(items) > 0 {
		a.publish(event.Notification{
			Kind:     event.KindAllocationMade,
			TenantID: part.TenantID(),
			UserID:   userID,
			Type:     typ,
			Count:    len(items),
		})
	}

	return WorkList{Items: items, ResolvedType: typ}, nil
}

// taskDescriptorFor resolves a catalog task into a descriptor, falling
// back to a bare name when the catalog has no entry.
func (a *Aggregator) taskDescriptorFor(ctx context.Context, part tenant.Partition, name string) TaskDescriptor {
	t, err := a.stores.Tasks.GetTaskByName(ctx, part, name)
	if err != nil {
		return TaskDescriptor{Name: name}
	}
	return TaskDescriptor{TaskID: t.ID, Name: t.Name, Config: t.Config}
}

// taskDescriptors converts a mission's task refs, falling back to one
// descriptor named after the mission so every work item carries at least
// one task.
func taskDescriptors(m *mission.Mission) []TaskDescriptor {
	if len(m.Tasks) == 0 {
		return []TaskDescriptor{{Name: m.Name}}
	}
	out := make([]TaskDescriptor, len(m.Tasks))
	for i, r := range m.Tasks {
		out[i] = TaskDescriptor{TaskID: r.TaskID, Name: r.Name, Config: r.Config}
	}
	return out
}

func (a *Aggregator) publish(n event.Notification) {
	if a.bus != nil {
		a.bus.Publish(n)
	}
}
