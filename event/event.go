// Package event records completed interactions as an append-only log and
// carries in-process notifications of engine activity.
//
// The interaction log is never updated in place: the allocator enforces
// daily limits through denormalized profile counters, but the log remains
// the audit trail and keeps historical uniqueness queries possible.
package event

import (
	"context"
	"time"

	"github.com/thinhlx1993/tw-backend-sub000/id"
	"github.com/thinhlx1993/tw-backend-sub000/tenant"
)

// Event is one immutable interaction record: a giver profile acted on a
// receiver profile.
type Event struct {
	ID                id.EventID   `json:"id"`
	GiverProfileID    id.ProfileID `json:"profile_id"`
	ReceiverProfileID id.ProfileID `json:"profile_id_interact"`
	Type              string       `json:"type"`

	// Issue is the outcome reported by the client; empty means success.
	Issue string `json:"issue,omitempty"`

	At time.Time `json:"at"`
}

// Store defines the append-only persistence contract for events.
type Store interface {
	// AppendEvent persists a new interaction record.
	AppendEvent(ctx context.Context, part tenant.Partition, evt *Event) error

	// ListEventsByProfile returns events where the profile acted as giver
	// or receiver, newest first, capped at limit.
	ListEventsByProfile(ctx context.Context, part tenant.Partition, profileID id.ProfileID, limit int) ([]*Event, error)

	// CountEventsSince counts events of a type involving a giver profile
	// recorded at or after since.
	CountEventsSince(ctx context.Context, part tenant.Partition, giverID id.ProfileID, typ string, since time.Time) (int64, error)
}
