// Package memory provides a fully in-memory store backend for development
// and testing. Tenant partitions are plain maps created on first use;
// instance row locks are modeled as held/free flags so lock contention
// behaves like the Postgres backend's FOR UPDATE NOWAIT.
package memory

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	engage "github.com/thinhlx1993/tw-backend-sub000"
	"github.com/thinhlx1993/tw-backend-sub000/catalog"
	"github.com/thinhlx1993/tw-backend-sub000/event"
	"github.com/thinhlx1993/tw-backend-sub000/id"
	"github.com/thinhlx1993/tw-backend-sub000/instance"
	"github.com/thinhlx1993/tw-backend-sub000/mission"
	"github.com/thinhlx1993/tw-backend-sub000/profile"
	"github.com/thinhlx1993/tw-backend-sub000/settings"
	"github.com/thinhlx1993/tw-backend-sub000/tenant"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ profile.Store      = (*Store)(nil)
	_ mission.Store      = (*Store)(nil)
	_ instance.Store     = (*Store)(nil)
	_ event.Store        = (*Store)(nil)
	_ catalog.Store      = (*Store)(nil)
	_ settings.Store     = (*Store)(nil)
	_ tenant.Provisioner = (*Store)(nil)
)

// partition holds one tenant's data. All access goes through Store.mu.
type partition struct {
	profiles  map[string]*profile.Profile
	groups    map[string]*profile.Group
	missions  map[string]*mission.Mission
	schedules map[string]*mission.Schedule
	instances map[string]*instance.Instance
	events    []*event.Event
	tasks     map[string]*catalog.Task     // keyed by name
	settings  map[string]*settings.Settings // keyed by "userID:deviceID"

	// lockedInstances models exclusive row locks: an instance ID present
	// here is held by an in-flight UpdateLocked.
	lockedInstances map[string]struct{}
}

func newPartition() *partition {
	return &partition{
		profiles:        make(map[string]*profile.Profile),
		groups:          make(map[string]*profile.Group),
		missions:        make(map[string]*mission.Mission),
		schedules:       make(map[string]*mission.Schedule),
		instances:       make(map[string]*instance.Instance),
		tasks:           make(map[string]*catalog.Task),
		settings:        make(map[string]*settings.Settings),
		lockedInstances: make(map[string]struct{}),
	}
}

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu      sync.Mutex
	parts   map[string]*partition // keyed by partition schema
	tenants []id.TenantID
	closed  bool
}

// Option configures a Store.
type Option func(*Store)

// WithTenants pre-registers tenant IDs with the built-in provisioner.
func WithTenants(ids ...id.TenantID) Option {
	return func(s *Store) {
		s.tenants = append(s.tenants, ids...)
	}
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		parts: make(map[string]*partition),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddTenant registers a tenant ID with the built-in provisioner.
func (m *Store) AddTenant(tenantID id.TenantID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants = append(m.tenants, tenantID)
}

// part returns the partition for a tenant, creating it on first use.
// Caller must hold m.mu.
func (m *Store) part(p tenant.Partition) *partition {
	pt, ok := m.parts[p.Schema()]
	if !ok {
		pt = newPartition()
		m.parts[p.Schema()] = pt
	}
	return pt
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is open.
func (m *Store) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return engage.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Tenant provisioner
// ──────────────────────────────────────────────────

// ListTenants returns the registered tenant IDs.
func (m *Store) ListTenants(_ context.Context) ([]id.TenantID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]id.TenantID, len(m.tenants))
	copy(out, m.tenants)
	return out, nil
}

// ──────────────────────────────────────────────────
// Profile Store
// ──────────────────────────────────────────────────

// CreateProfile persists a new profile.
func (m *Store) CreateProfile(_ context.Context, part tenant.Partition, p *profile.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pt := m.part(part)
	key := p.ID.String()
	if _, exists := pt.profiles[key]; exists {
		return engage.ErrProfileAlreadyExists
	}
	cp := *p
	pt.profiles[key] = &cp
	return nil
}

// GetProfile retrieves a profile by ID.
func (m *Store) GetProfile(_ context.Context, part tenant.Partition, profileID id.ProfileID) (*profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.part(part).profiles[profileID.String()]
	if !ok {
		return nil, engage.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

// UpdateProfile applies the non-nil fields of upd to a profile.
func (m *Store) UpdateProfile(_ context.Context, part tenant.Partition, profileID id.ProfileID, upd profile.Update) (*profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.part(part).profiles[profileID.String()]
	if !ok {
		return nil, engage.ErrProfileNotFound
	}

	if upd.Status != nil {
		p.Status = *upd.Status
	}
	if upd.IsDisable != nil {
		p.IsDisable = *upd.IsDisable
	}
	if upd.MainProfile != nil {
		p.MainProfile = *upd.MainProfile
	}
	if upd.GroupID != nil {
		p.GroupID = *upd.GroupID
	}
	if upd.Data != nil {
		p.Data = *upd.Data
	}
	p.Touch()

	cp := *p
	return &cp, nil
}

// ListProfilesByOwner returns all profiles owned by a user.
func (m *Store) ListProfilesByOwner(_ context.Context, part tenant.Partition, ownerID id.UserID) ([]*profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*profile.Profile
	for _, p := range m.part(part).profiles {
		if p.OwnerID == ownerID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

// ListReceiverCandidates returns enabled main profiles under the daily
// cap, in random order.
func (m *Store) ListReceiverCandidates(_ context.Context, part tenant.Partition, f profile.CandidateFilter) ([]*profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ownerIn := ownerSet(f.OwnerIn)

	var out []*profile.Profile
	for _, p := range m.part(part).profiles {
		if !p.MainProfile || p.IsDisable {
			continue
		}
		if p.CounterValue(f.Counter) >= f.Limit {
			continue
		}
		if ownerIn != nil {
			if _, ok := ownerIn[p.OwnerID.String()]; !ok {
				continue
			}
		}
		cp := *p
		out = append(out, &cp)
	}
	return shuffleCap(out, f.Max), nil
}

// ListGiverCandidates returns enabled, verified, not-suspended non-main
// profiles under the daily cap, in random order.
func (m *Store) ListGiverCandidates(_ context.Context, part tenant.Partition, f profile.CandidateFilter) ([]*profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	excluded := ownerSet(f.ExcludeOwners)

	var out []*profile.Profile
	for _, p := range m.part(part).profiles {
		if p.MainProfile || p.IsDisable {
			continue
		}
		if !p.Data.Verified() || p.Data.IsSuspended() {
			continue
		}
		if p.Status == profile.StatusWrongPassword {
			continue
		}
		if p.CounterValue(f.Counter) >= f.Limit {
			continue
		}
		if excluded != nil {
			if _, ok := excluded[p.OwnerID.String()]; ok {
				continue
			}
		}
		cp := *p
		out = append(out, &cp)
	}
	return shuffleCap(out, f.Max), nil
}

// IncrementCounter bumps the named daily counter by one.
func (m *Store) IncrementCounter(_ context.Context, part tenant.Partition, profileID id.ProfileID, c profile.Counter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.part(part).profiles[profileID.String()]
	if !ok {
		return engage.ErrProfileNotFound
	}
	switch c {
	case profile.CounterComment:
		p.CommentCount++
	case profile.CounterLike:
		p.LikeCount++
	default:
		p.ClickCount++
	}
	p.Touch()
	return nil
}

// ResetDailyCounters zeroes every profile's daily counters.
func (m *Store) ResetDailyCounters(_ context.Context, part tenant.Partition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.part(part).profiles {
		p.ClickCount, p.CommentCount, p.LikeCount = 0, 0, 0
		p.Touch()
	}
	return nil
}

// CreateGroup persists a new group.
func (m *Store) CreateGroup(_ context.Context, part tenant.Partition, g *profile.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *g
	cp.Members = append([]id.UserID(nil), g.Members...)
	m.part(part).groups[g.ID.String()] = &cp
	return nil
}

// GetGroup retrieves a group by ID.
func (m *Store) GetGroup(_ context.Context, part tenant.Partition, groupID id.GroupID) (*profile.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.part(part).groups[groupID.String()]
	if !ok {
		return nil, engage.ErrGroupNotFound
	}
	cp := *g
	cp.Members = append([]id.UserID(nil), g.Members...)
	return &cp, nil
}

// LaggingGroup returns one group whose members' aggregate counter value is
// below threshold.
func (m *Store) LaggingGroup(_ context.Context, part tenant.Partition, c profile.Counter, threshold int) (id.GroupID, []id.UserID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pt := m.part(part)

	// Deterministic iteration so repeated calls favor the same group
	// until it catches up.
	keys := make([]string, 0, len(pt.groups))
	for k := range pt.groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		g := pt.groups[k]
		members := make(map[string]struct{}, len(g.Members))
		for _, u := range g.Members {
			members[u.String()] = struct{}{}
		}

		total := 0
		for _, p := range pt.profiles {
			if _, ok := members[p.OwnerID.String()]; ok {
				total += p.CounterValue(c)
			}
		}
		if total < threshold {
			return g.ID, append([]id.UserID(nil), g.Members...), nil
		}
	}
	return id.Nil, nil, nil
}

// ──────────────────────────────────────────────────
// Mission Store
// ──────────────────────────────────────────────────

// CreateMission persists a new mission.
func (m *Store) CreateMission(_ context.Context, part tenant.Partition, ms *mission.Mission) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pt := m.part(part)
	key := ms.ID.String()
	if _, exists := pt.missions[key]; exists {
		return engage.ErrMissionAlreadyExists
	}
	pt.missions[key] = copyMission(ms)
	return nil
}

// GetMission retrieves a mission by ID.
func (m *Store) GetMission(_ context.Context, part tenant.Partition, missionID id.MissionID) (*mission.Mission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms, ok := m.part(part).missions[missionID.String()]
	if !ok {
		return nil, engage.ErrMissionNotFound
	}
	return copyMission(ms), nil
}

// UpdateMission applies the non-nil fields of upd to a mission.
func (m *Store) UpdateMission(_ context.Context, part tenant.Partition, missionID id.MissionID, upd mission.Update) (*mission.Mission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms, ok := m.part(part).missions[missionID.String()]
	if !ok {
		return nil, engage.ErrMissionNotFound
	}

	if upd.Name != nil {
		ms.Name = *upd.Name
	}
	if upd.CronExpr != nil {
		ms.CronExpr = *upd.CronExpr
	}
	if upd.MissionJSON != nil {
		ms.MissionJSON = *upd.MissionJSON
	}
	if upd.ForceStart != nil {
		ms.ForceStart = *upd.ForceStart
	}
	if upd.Status != nil {
		ms.Status = *upd.Status
	}
	if upd.Tasks != nil {
		ms.Tasks = append([]mission.TaskRef(nil), (*upd.Tasks)...)
	}
	ms.Touch()

	return copyMission(ms), nil
}

// DeleteMission removes a mission and cascades to its schedules and
// instances.
func (m *Store) DeleteMission(_ context.Context, part tenant.Partition, missionID id.MissionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pt := m.part(part)
	key := missionID.String()
	if _, ok := pt.missions[key]; !ok {
		return engage.ErrMissionNotFound
	}
	delete(pt.missions, key)

	for k, s := range pt.schedules {
		if s.MissionID == missionID {
			delete(pt.schedules, k)
		}
	}
	for k, in := range pt.instances {
		if in.MissionID == missionID {
			delete(pt.instances, k)
		}
	}
	return nil
}

// ListMissionsByUser returns all missions owned by a user.
func (m *Store) ListMissionsByUser(_ context.Context, part tenant.Partition, userID id.UserID) ([]*mission.Mission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*mission.Mission
	for _, ms := range m.part(part).missions {
		if ms.UserID == userID {
			out = append(out, copyMission(ms))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

// CreateSchedule persists a schedule spawned from a mission.
func (m *Store) CreateSchedule(_ context.Context, part tenant.Partition, s *mission.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	m.part(part).schedules[s.ID.String()] = &cp
	return nil
}

// ListSchedulesByMission returns every schedule a mission spawned.
func (m *Store) ListSchedulesByMission(_ context.Context, part tenant.Partition, missionID id.MissionID) ([]*mission.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*mission.Schedule
	for _, s := range m.part(part).schedules {
		if s.MissionID == missionID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

// TouchSchedule bumps a schedule's LastUpdatedAt.
func (m *Store) TouchSchedule(_ context.Context, part tenant.Partition, scheduleID id.ScheduleID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.part(part).schedules[scheduleID.String()]
	if !ok {
		return engage.ErrScheduleNotFound
	}
	s.LastUpdatedAt = at
	s.Touch()
	return nil
}

// ConsumeForceStart atomically clears a mission's force-start flag and
// reports whether this caller observed it set.
func (m *Store) ConsumeForceStart(_ context.Context, part tenant.Partition, missionID id.MissionID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms, ok := m.part(part).missions[missionID.String()]
	if !ok {
		return false, engage.ErrMissionNotFound
	}
	if !ms.ForceStart {
		return false, nil
	}
	ms.ForceStart = false
	ms.Touch()
	return true, nil
}

// ──────────────────────────────────────────────────
// Instance Store
// ──────────────────────────────────────────────────

// CreateInstance persists a new instance.
func (m *Store) CreateInstance(_ context.Context, part tenant.Partition, in *instance.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.part(part).instances[in.ID.String()] = in.Clone()
	return nil
}

// GetInstance retrieves an instance by ID.
func (m *Store) GetInstance(_ context.Context, part tenant.Partition, instanceID id.InstanceID) (*instance.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	in, ok := m.part(part).instances[instanceID.String()]
	if !ok {
		return nil, engage.ErrInstanceNotFound
	}
	return in.Clone(), nil
}

// DeleteInstance removes an instance.
func (m *Store) DeleteInstance(_ context.Context, part tenant.Partition, instanceID id.InstanceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pt := m.part(part)
	key := instanceID.String()
	if _, ok := pt.instances[key]; !ok {
		return engage.ErrInstanceNotFound
	}
	delete(pt.instances, key)
	return nil
}

// ListInstancesByMission returns every instance of a mission.
func (m *Store) ListInstancesByMission(_ context.Context, part tenant.Partition, missionID id.MissionID) ([]*instance.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*instance.Instance
	for _, in := range m.part(part).instances {
		if in.MissionID == missionID {
			out = append(out, in.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

// UpdateLocked runs fn with the instance held under an exclusive lock.
// A contended lock returns engage.ErrLockBusy without waiting, mirroring
// the Postgres backend's FOR UPDATE NOWAIT.
func (m *Store) UpdateLocked(_ context.Context, part tenant.Partition, instanceID id.InstanceID, fn instance.LockedUpdateFunc) (*instance.Instance, error) {
	key := instanceID.String()

	// Acquire the row lock and snapshot the instance.
	m.mu.Lock()
	pt := m.part(part)
	in, ok := pt.instances[key]
	if !ok {
		m.mu.Unlock()
		return nil, engage.ErrInstanceNotFound
	}
	if _, held := pt.lockedInstances[key]; held {
		m.mu.Unlock()
		return nil, engage.ErrLockBusy
	}
	pt.lockedInstances[key] = struct{}{}
	work := in.Clone()
	m.mu.Unlock()

	// Run fn outside the store mutex so concurrent callers genuinely
	// contend on the row lock.
	write, err := fn(work)

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(pt.lockedInstances, key)

	if err != nil {
		// Rollback: the stored instance was never touched.
		return nil, err
	}
	if !write {
		return work.Clone(), nil
	}

	pt.instances[key] = work.Clone()

	// Propagate the write to the owning schedule, same transaction.
	if !work.ScheduleID.IsNil() {
		if s, ok := pt.schedules[work.ScheduleID.String()]; ok {
			s.LastUpdatedAt = time.Now().UTC()
			s.Touch()
		}
	}
	return work.Clone(), nil
}

// ──────────────────────────────────────────────────
// Event Store
// ──────────────────────────────────────────────────

// AppendEvent persists a new interaction record.
func (m *Store) AppendEvent(_ context.Context, part tenant.Partition, evt *event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *evt
	pt := m.part(part)
	pt.events = append(pt.events, &cp)
	return nil
}

// ListEventsByProfile returns events involving a profile, newest first.
func (m *Store) ListEventsByProfile(_ context.Context, part tenant.Partition, profileID id.ProfileID, limit int) ([]*event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*event.Event
	for _, e := range m.part(part).events {
		if e.GiverProfileID == profileID || e.ReceiverProfileID == profileID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountEventsSince counts events of a type involving a giver profile
// recorded at or after since.
func (m *Store) CountEventsSince(_ context.Context, part tenant.Partition, giverID id.ProfileID, typ string, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, e := range m.part(part).events {
		if e.GiverProfileID == giverID && e.Type == typ && !e.At.Before(since) {
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Catalog Store
// ──────────────────────────────────────────────────

// CreateTask persists a new catalog entry.
func (m *Store) CreateTask(_ context.Context, part tenant.Partition, t *catalog.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pt := m.part(part)
	if _, exists := pt.tasks[t.Name]; exists {
		return engage.ErrTaskAlreadyExists
	}
	cp := *t
	pt.tasks[t.Name] = &cp
	return nil
}

// GetTaskByName retrieves a catalog entry by name.
func (m *Store) GetTaskByName(_ context.Context, part tenant.Partition, name string) (*catalog.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.part(part).tasks[name]
	if !ok {
		return nil, engage.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

// ListTasks returns the whole catalog.
func (m *Store) ListTasks(_ context.Context, part tenant.Partition) ([]*catalog.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*catalog.Task
	for _, t := range m.part(part).tasks {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ──────────────────────────────────────────────────
// Settings Store
// ──────────────────────────────────────────────────

func settingsKey(userID id.UserID, deviceID id.DeviceID) string {
	return userID.String() + ":" + deviceID.String()
}

// GetSettings retrieves the settings row for a user's device.
func (m *Store) GetSettings(_ context.Context, part tenant.Partition, userID id.UserID, deviceID id.DeviceID) (*settings.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.part(part).settings[settingsKey(userID, deviceID)]
	if !ok {
		return nil, engage.ErrSettingsNotFound
	}
	cp := *s
	return &cp, nil
}

// PutSettings creates or replaces the settings row for a device.
func (m *Store) PutSettings(_ context.Context, part tenant.Partition, s *settings.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	m.part(part).settings[settingsKey(s.UserID, s.DeviceID)] = &cp
	return nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func copyMission(ms *mission.Mission) *mission.Mission {
	cp := *ms
	cp.Tasks = append([]mission.TaskRef(nil), ms.Tasks...)
	return &cp
}

func ownerSet(ids []id.UserID) map[string]struct{} {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(ids))
	for _, u := range ids {
		set[u.String()] = struct{}{}
	}
	return set
}

// shuffleCap randomizes order and caps length, matching the Postgres
// backend's ORDER BY random() LIMIT n.
func shuffleCap(ps []*profile.Profile, max int) []*profile.Profile {
	rand.Shuffle(len(ps), func(i, j int) { ps[i], ps[j] = ps[j], ps[i] })
	if max > 0 && len(ps) > max {
		ps = ps[:max]
	}
	return ps
}
