package allocator_test

import (
	"context"
	"testing"

	"github.com/thinhlx1993/tw-backend-sub000/allocator"
	"github.com/thinhlx1993/tw-backend-sub000/catalog"
	"github.com/thinhlx1993/tw-backend-sub000/id"
	"github.com/thinhlx1993/tw-backend-sub000/profile"
	"github.com/thinhlx1993/tw-backend-sub000/store/memory"
	"github.com/thinhlx1993/tw-backend-sub000/tenant"
)

var testLimits = catalog.NewLimits(map[string]int{
	"like":     60,
	"comment":  30,
	"clickAds": 50,
})

func seedReceiver(t *testing.T, st *memory.Store, part tenant.Partition, owner id.UserID, likes int) *profile.Profile {
	t.Helper()
	p := &profile.Profile{
		ID:          id.NewProfileID(),
		OwnerID:     owner,
		Username:    "recv-" + id.NewProfileID().String(),
		MainProfile: true,
		LikeCount:   likes,
	}
	if err := st.CreateProfile(context.Background(), part, p); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	return p
}

func seedGiver(t *testing.T, st *memory.Store, part tenant.Partition, owner id.UserID, likes int) *profile.Profile {
	t.Helper()
	p := &profile.Profile{
		ID:        id.NewProfileID(),
		OwnerID:   owner,
		Username:  "giver-" + id.NewProfileID().String(),
		LikeCount: likes,
		Data:      profile.Data{Verify: "true", Suspended: "false"},
	}
	if err := st.CreateProfile(context.Background(), part, p); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	return p
}

func TestAllocatePairsReceiversAndGivers(t *testing.T) {
	st := memory.New()
	part := tenant.NewPartition(id.NewTenantID())
	a := allocator.New(st, st, testLimits)

	recvOwner := id.NewUserID()
	giverOwner := id.NewUserID()
	seedReceiver(t, st, part, recvOwner, 0)
	seedReceiver(t, st, part, recvOwner, 0)
	seedGiver(t, st, part, giverOwner, 0)
	seedGiver(t, st, part, giverOwner, 0)
	seedGiver(t, st, part, giverOwner, 0)

	alloc, err := a.Allocate(context.Background(), part, "like", 5)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if len(alloc.Pairs) != 2 {
		t.Fatalf("pairs = %d, want 2 (bounded by receivers)", len(alloc.Pairs))
	}
	for _, pair := range alloc.Pairs {
		if !pair.Receiver.MainProfile {
			t.Fatalf("receiver %s is not a main profile", pair.Receiver.ID)
		}
		if pair.Giver.MainProfile {
			t.Fatalf("giver %s is a main profile", pair.Giver.ID)
		}
		if pair.Giver.OwnerID == pair.Receiver.OwnerID {
			t.Fatalf("giver and receiver share owner %s", pair.Giver.OwnerID)
		}
	}
}

func TestAllocateThreadsCapsPairs(t *testing.T) {
	st := memory.New()
	part := tenant.NewPartition(id.NewTenantID())
	a := allocator.New(st, st, testLimits)

	recvOwner := id.NewUserID()
	giverOwner := id.NewUserID()
	for range 10 {
		seedReceiver(t, st, part, recvOwner, 0)
		seedGiver(t, st, part, giverOwner, 0)
	}

	alloc, err := a.Allocate(context.Background(), part, "like", 3)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if len(alloc.Pairs) != 3 {
		t.Fatalf("pairs = %d, want 3 (threads cap)", len(alloc.Pairs))
	}
}

func TestAllocateZeroThreads(t *testing.T) {
	st := memory.New()
	part := tenant.NewPartition(id.NewTenantID())
	a := allocator.New(st, st, testLimits)

	alloc, err := a.Allocate(context.Background(), part, "like", 0)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if len(alloc.Pairs) != 0 {
		t.Fatalf("pairs = %d, want 0", len(alloc.Pairs))
	}
}

func TestAllocateUnknownTypeYieldsNothing(t *testing.T) {
	st := memory.New()
	part := tenant.NewPartition(id.NewTenantID())
	a := allocator.New(st, st, testLimits)

	seedReceiver(t, st, part, id.NewUserID(), 0)
	seedGiver(t, st, part, id.NewUserID(), 0)

	alloc, err := a.Allocate(context.Background(), part, "unknownType", 5)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if len(alloc.Pairs) != 0 {
		t.Fatalf("pairs = %d, want 0 for unconfigured type", len(alloc.Pairs))
	}
}

func TestAllocateHonorsDailyCap(t *testing.T) {
	st := memory.New()
	part := tenant.NewPartition(id.NewTenantID())
	a := allocator.New(st, st, testLimits)

	// Receiver at the like cap, giver fresh: nothing to pair.
	seedReceiver(t, st, part, id.NewUserID(), 60)
	seedGiver(t, st, part, id.NewUserID(), 0)

	alloc, err := a.Allocate(context.Background(), part, "like", 5)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if len(alloc.Pairs) != 0 {
		t.Fatalf("pairs = %d, want 0 (receiver at cap)", len(alloc.Pairs))
	}
}

func TestAllocateSkipsIneligibleGivers(t *testing.T) {
	st := memory.New()
	part := tenant.NewPartition(id.NewTenantID())
	a := allocator.New(st, st, testLimits)
	ctx := context.Background()

	seedReceiver(t, st, part, id.NewUserID(), 0)

	unverified := seedGiver(t, st, part, id.NewUserID(), 0)
	if _, err := st.UpdateProfile(ctx, part, unverified.ID, profile.Update{
		Data: &profile.Data{Verify: "false"},
	}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}

	badPassword := seedGiver(t, st, part, id.NewUserID(), 0)
	status := profile.StatusWrongPassword
	if _, err := st.UpdateProfile(ctx, part, badPassword.ID, profile.Update{Status: &status}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}

	alloc, err := a.Allocate(ctx, part, "like", 5)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if len(alloc.Pairs) != 0 {
		t.Fatalf("pairs = %d, want 0 (all givers ineligible)", len(alloc.Pairs))
	}
}

func TestAllocateLaggingGroupRestrictsReceivers(t *testing.T) {
	st := memory.New()
	part := tenant.NewPartition(id.NewTenantID())
	a := allocator.New(st, st, testLimits, allocator.WithGroupLagThreshold(10))
	ctx := context.Background()

	laggingOwner := id.NewUserID()
	busyOwner := id.NewUserID()

	// The busy owner's group is over the threshold; the lagging owner's
	// group is not, so its receivers get priority.
	if err := st.CreateGroup(ctx, part, &profile.Group{
		ID:      id.NewGroupID(),
		Name:    "lagging",
		Members: []id.UserID{laggingOwner},
	}); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if err := st.CreateGroup(ctx, part, &profile.Group{
		ID:      id.NewGroupID(),
		Name:    "busy",
		Members: []id.UserID{busyOwner},
	}); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	seedReceiver(t, st, part, laggingOwner, 0)
	seedReceiver(t, st, part, busyOwner, 20)
	seedGiver(t, st, part, id.NewUserID(), 0)
	seedGiver(t, st, part, id.NewUserID(), 0)

	alloc, err := a.Allocate(ctx, part, "like", 5)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if len(alloc.Pairs) != 1 {
		t.Fatalf("pairs = %d, want 1", len(alloc.Pairs))
	}
	if alloc.Pairs[0].Receiver.OwnerID != laggingOwner {
		t.Fatalf("receiver owner = %s, want lagging group member %s",
			alloc.Pairs[0].Receiver.OwnerID, laggingOwner)
	}
}

func TestAllocateTaskMetadataBestEffort(t *testing.T) {
	st := memory.New()
	part := tenant.NewPartition(id.NewTenantID())
	a := allocator.New(st, st, testLimits)
	ctx := context.Background()

	seedReceiver(t, st, part, id.NewUserID(), 0)
	seedGiver(t, st, part, id.NewUserID(), 0)

	alloc, err := a.Allocate(ctx, part, "like", 5)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if alloc.Task != nil {
		t.Fatalf("task = %+v, want nil without a catalog entry", alloc.Task)
	}

	task := &catalog.Task{
		ID:     id.NewTaskID(),
		Name:   "like",
		Type:   "like",
		Config: map[string]any{"count": 2},
	}
	if err := st.CreateTask(ctx, part, task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	alloc, err = a.Allocate(ctx, part, "like", 5)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if alloc.Task == nil || alloc.Task.Name != "like" {
		t.Fatalf("task = %+v, want catalog entry", alloc.Task)
	}
}
