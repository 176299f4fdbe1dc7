package schedule_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"log/slog"

	"github.com/thinhlx1993/tw-backend-sub000/allocator"
	"github.com/thinhlx1993/tw-backend-sub000/catalog"
	"github.com/thinhlx1993/tw-backend-sub000/cron"
	"github.com/thinhlx1993/tw-backend-sub000/event"
	"github.com/thinhlx1993/tw-backend-sub000/id"
	"github.com/thinhlx1993/tw-backend-sub000/mission"
	"github.com/thinhlx1993/tw-backend-sub000/profile"
	"github.com/thinhlx1993/tw-backend-sub000/schedule"
	"github.com/thinhlx1993/tw-backend-sub000/settings"
	"github.com/thinhlx1993/tw-backend-sub000/store/memory"
	"github.com/thinhlx1993/tw-backend-sub000/tenant"
)

// noon is well clear of the default 08:00 and 20:30 follow-check windows.
var noon = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func newAggregator(st *memory.Store, limits catalog.Limits, opts ...schedule.Option) *schedule.Aggregator {
	logger := slog.New(slog.DiscardHandler)
	eval := cron.NewEvaluator(time.UTC, cron.WithLogger(logger))
	alloc := allocator.New(st, st, limits, allocator.WithLogger(logger))

	opts = append([]schedule.Option{
		schedule.WithLogger(logger),
		schedule.WithClock(func() time.Time { return noon }),
	}, opts...)
	return schedule.NewAggregator(schedule.Stores{
		Profiles: st,
		Missions: st,
		Settings: st,
		Tasks:    st,
	}, eval, alloc, limits, opts...)
}

func seedMissionWithSchedule(t *testing.T, st *memory.Store, part tenant.Partition, userID id.UserID, m *mission.Mission) *mission.Schedule {
	t.Helper()
	ctx := context.Background()

	m.ID = id.NewMissionID()
	m.UserID = userID
	if err := st.CreateMission(ctx, part, m); err != nil {
		t.Fatalf("CreateMission: %v", err)
	}
	s := &mission.Schedule{
		ID:        id.NewScheduleID(),
		MissionID: m.ID,
		ProfileID: id.NewProfileID(),
	}
	if err := st.CreateSchedule(ctx, part, s); err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	return s
}

func TestGetCheckFollowWindow(t *testing.T) {
	st := memory.New()
	part := tenant.NewPartition(id.NewTenantID())
	userID := id.NewUserID()
	ctx := context.Background()

	enabled := &profile.Profile{ID: id.NewProfileID(), OwnerID: userID, Username: "a", MainProfile: true}
	disabled := &profile.Profile{ID: id.NewProfileID(), OwnerID: userID, Username: "b", IsDisable: true}
	for _, p := range []*profile.Profile{enabled, disabled} {
		if err := st.CreateProfile(ctx, part, p); err != nil {
			t.Fatalf("CreateProfile: %v", err)
		}
	}

	// A mission due right now must lose to the follow-check window.
	seedMissionWithSchedule(t, st, part, userID, &mission.Mission{Name: "loop", CronExpr: "0 8 * * *"})

	inWindow := time.Date(2026, 3, 2, 8, 0, 10, 0, time.UTC)
	a := newAggregator(st, catalog.NewLimits(map[string]int{"like": 60}),
		schedule.WithClock(func() time.Time { return inWindow }))

	list, err := a.Get(ctx, part, userID, id.NewDeviceID(), "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if list.ResolvedType != schedule.TypeMissionShouldStart {
		t.Fatalf("resolved type = %q, want %q", list.ResolvedType, schedule.TypeMissionShouldStart)
	}
	if len(list.Items) != 1 {
		t.Fatalf("items = %d, want 1 (disabled profile skipped)", len(list.Items))
	}
	item := list.Items[0]
	if item.ReceiverProfileID != enabled.ID {
		t.Fatalf("receiver = %s, want %s", item.ReceiverProfileID, enabled.ID)
	}
	if !item.MissionID.IsNil() {
		t.Fatal("follow-check item carries a mission ID")
	}
	if len(item.Tasks) != 1 || item.Tasks[0].Name != catalog.TypeCheckFollow {
		t.Fatalf("tasks = %+v, want one %s", item.Tasks, catalog.TypeCheckFollow)
	}
}

func TestGetDueMissionByCron(t *testing.T) {
	st := memory.New()
	part := tenant.NewPartition(id.NewTenantID())
	userID := id.NewUserID()
	ctx := context.Background()

	m := &mission.Mission{
		Name:     "daily-noon",
		CronExpr: "0 12 * * *",
		Tasks:    []mission.TaskRef{{Name: "openBrowser"}, {Name: "like"}},
	}
	s := seedMissionWithSchedule(t, st, part, userID, m)
	seedMissionWithSchedule(t, st, part, userID, &mission.Mission{Name: "midnight", CronExpr: "0 0 * * *"})

	a := newAggregator(st, catalog.NewLimits(map[string]int{"like": 60}))

	list, err := a.Get(ctx, part, userID, id.NewDeviceID(), "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if list.ResolvedType != schedule.TypeMissionShouldStart {
		t.Fatalf("resolved type = %q, want %q", list.ResolvedType, schedule.TypeMissionShouldStart)
	}
	if len(list.Items) != 1 {
		t.Fatalf("items = %d, want 1 (only the noon mission is due)", len(list.Items))
	}
	item := list.Items[0]
	if item.MissionID != m.ID || item.ScheduleID != s.ID {
		t.Fatalf("item = %+v, want mission %s schedule %s", item, m.ID, s.ID)
	}
	if item.ReceiverProfileID != s.ProfileID {
		t.Fatalf("receiver = %s, want schedule profile %s", item.ReceiverProfileID, s.ProfileID)
	}
	if len(item.Tasks) != 2 || item.Tasks[0].Name != "openBrowser" || item.Tasks[1].Name != "like" {
		t.Fatalf("tasks = %+v, want mission task list", item.Tasks)
	}
}

func TestGetForceStartConsumedOnce(t *testing.T) {
	st := memory.New()
	part := tenant.NewPartition(id.NewTenantID())
	userID := id.NewUserID()
	ctx := context.Background()

	m := &mission.Mission{Name: "oneshot", ForceStart: true}
	seedMissionWithSchedule(t, st, part, userID, m)

	a := newAggregator(st, catalog.NewLimits(map[string]int{"like": 60}))

	const pollers = 10
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range pollers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			list, err := a.Get(ctx, part, userID, id.NewDeviceID(), "")
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			if list.ResolvedType == schedule.TypeMissionShouldStart && len(list.Items) > 0 {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("force start fired %d times across %d pollers, want exactly 1", wins, pollers)
	}

	got, err := st.GetMission(ctx, part, m.ID)
	if err != nil {
		t.Fatalf("GetMission: %v", err)
	}
	if got.ForceStart {
		t.Fatal("force_start flag still set after consumption")
	}
}

func TestGetCronDueClearsForceStart(t *testing.T) {
	st := memory.New()
	part := tenant.NewPartition(id.NewTenantID())
	userID := id.NewUserID()
	ctx := context.Background()

	m := &mission.Mission{Name: "both", CronExpr: "0 12 * * *", ForceStart: true}
	seedMissionWithSchedule(t, st, part, userID, m)

	a := newAggregator(st, catalog.NewLimits(map[string]int{"like": 60}))

	list, err := a.Get(ctx, part, userID, id.NewDeviceID(), "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(list.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(list.Items))
	}

	got, err := st.GetMission(ctx, part, m.ID)
	if err != nil {
		t.Fatalf("GetMission: %v", err)
	}
	if got.ForceStart {
		t.Fatal("cron firing left the one-shot flag set")
	}
}

func TestGetAdhocFallback(t *testing.T) {
	st := memory.New()
	part := tenant.NewPartition(id.NewTenantID())
	userID := id.NewUserID()
	ctx := context.Background()

	receiver := &profile.Profile{ID: id.NewProfileID(), OwnerID: userID, Username: "main", MainProfile: true}
	giver := &profile.Profile{
		ID:       id.NewProfileID(),
		OwnerID:  id.NewUserID(),
		Username: "alt",
		Data:     profile.Data{Verify: "true"},
	}
	for _, p := range []*profile.Profile{receiver, giver} {
		if err := st.CreateProfile(ctx, part, p); err != nil {
			t.Fatalf("CreateProfile: %v", err)
		}
	}

	a := newAggregator(st, catalog.NewLimits(map[string]int{"like": 60}))

	list, err := a.Get(ctx, part, userID, id.NewDeviceID(), "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if list.ResolvedType != "like" {
		t.Fatalf("resolved type = %q, want like", list.ResolvedType)
	}
	if len(list.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(list.Items))
	}
	item := list.Items[0]
	if item.ReceiverProfileID != receiver.ID || item.GiverProfileID != giver.ID {
		t.Fatalf("pairing = %+v, want receiver %s giver %s", item, receiver.ID, giver.ID)
	}
}

func TestGetAdhocHonorsDeviceThreads(t *testing.T) {
	st := memory.New()
	part := tenant.NewPartition(id.NewTenantID())
	userID := id.NewUserID()
	deviceID := id.NewDeviceID()
	ctx := context.Background()

	for range 5 {
		if err := st.CreateProfile(ctx, part, &profile.Profile{
			ID: id.NewProfileID(), OwnerID: userID, Username: "m", MainProfile: true,
		}); err != nil {
			t.Fatalf("CreateProfile: %v", err)
		}
		if err := st.CreateProfile(ctx, part, &profile.Profile{
			ID: id.NewProfileID(), OwnerID: id.NewUserID(), Username: "g",
			Data: profile.Data{Verify: "true"},
		}); err != nil {
			t.Fatalf("CreateProfile: %v", err)
		}
	}
	if err := st.PutSettings(ctx, part, &settings.Settings{
		UserID: userID, DeviceID: deviceID, Threads: 2,
	}); err != nil {
		t.Fatalf("PutSettings: %v", err)
	}

	a := newAggregator(st, catalog.NewLimits(map[string]int{"like": 60}))

	list, err := a.Get(ctx, part, userID, deviceID, "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(list.Items) != 2 {
		t.Fatalf("items = %d, want device threads 2", len(list.Items))
	}
}

func TestGetPublishesMissionFired(t *testing.T) {
	st := memory.New()
	part := tenant.NewPartition(id.NewTenantID())
	userID := id.NewUserID()
	ctx := context.Background()

	m := &mission.Mission{Name: "daily-noon", CronExpr: "0 12 * * *"}
	seedMissionWithSchedule(t, st, part, userID, m)

	bus := event.NewBus(8)
	defer bus.Close()
	sub, cancel := bus.Subscribe()
	defer cancel()

	a := newAggregator(st, catalog.NewLimits(map[string]int{"like": 60}),
		schedule.WithBus(bus))

	if _, err := a.Get(ctx, part, userID, id.NewDeviceID(), ""); err != nil {
		t.Fatalf("Get: %v", err)
	}

	select {
	case n := <-sub:
		if n.Kind != event.KindMissionFired {
			t.Fatalf("kind = %q, want %q", n.Kind, event.KindMissionFired)
		}
		if n.MissionID != m.ID || n.Count != 1 {
			t.Fatalf("notification = %+v", n)
		}
	case <-time.After(time.Second):
		t.Fatal("no mission fired notification")
	}
}

func TestGetEmptyStateYieldsEmptyList(t *testing.T) {
	st := memory.New()
	part := tenant.NewPartition(id.NewTenantID())

	a := newAggregator(st, catalog.NewLimits(map[string]int{"like": 60}))

	list, err := a.Get(context.Background(), part, id.NewUserID(), id.NewDeviceID(), "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(list.Items) != 0 {
		t.Fatalf("items = %d, want 0", len(list.Items))
	}
}
