package event

import (
	"sync"
	"time"

	"github.com/thinhlx1993/tw-backend-sub000/id"
)

// Kind names an engine lifecycle notification.
type Kind string

const (
	// KindMissionFired fires when the aggregator returns a due mission's
	// schedules to a poller.
	KindMissionFired Kind = "mission_fired"

	// KindForceStartConsumed fires when a poller wins a mission's
	// one-shot force-start flag.
	KindForceStartConsumed Kind = "force_start_consumed"

	// KindAllocationMade fires when the allocator produces ad-hoc pairs.
	KindAllocationMade Kind = "allocation_made"

	// KindTaskBatchApplied fires when a status batch mutates an instance.
	KindTaskBatchApplied Kind = "task_batch_applied"

	// KindInteractionRecorded fires when an interaction event is appended.
	KindInteractionRecorded Kind = "interaction_recorded"
)

// Notification is one in-process engine lifecycle signal. Only the fields
// relevant to the kind are populated.
type Notification struct {
	Kind     Kind
	TenantID id.TenantID
	At       time.Time

	MissionID  id.MissionID
	InstanceID id.InstanceID
	UserID     id.UserID

	// Type is the interaction type for allocation and interaction kinds.
	Type string

	// Count is pairings for allocations, tasks for applied batches.
	Count int
}

// Bus is a bounded, non-blocking in-process broadcast of engine
// notifications. Publish never blocks the operation that emits it: a
// subscriber that falls behind misses notifications rather than stalling
// scheduling. Safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Notification
	buffer int
	closed bool
}

// NewBus creates a Bus whose subscriber channels hold buffer
// notifications each.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		subs:   make(map[int]chan Notification),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber. The returned cancel function
// unregisters it and closes the channel.
func (b *Bus) Subscribe() (<-chan Notification, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Notification, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	subID := b.nextID
	b.nextID++
	b.subs[subID] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[subID]; ok {
			delete(b.subs, subID)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers n to every subscriber with room in its buffer.
func (b *Bus) Publish(n Notification) {
	if n.At.IsZero() {
		n.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- n:
		default:
			// Subscriber is full; drop rather than block the engine.
		}
	}
}

// Close unregisters all subscribers and closes their channels. Publish
// after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for subID, ch := range b.subs {
		delete(b.subs, subID)
		close(ch)
	}
}
