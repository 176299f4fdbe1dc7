// Package profile defines the automation-controlled account records the
// allocator pairs for daily interactions, and their persistence contract.
package profile

import (
	"context"

	engage "github.com/thinhlx1993/tw-backend-sub000"
	"github.com/thinhlx1993/tw-backend-sub000/id"
	"github.com/thinhlx1993/tw-backend-sub000/tenant"
)

// StatusWrongPassword marks profiles whose credentials no longer work.
// They are excluded from giver selection until an operator fixes them.
const StatusWrongPassword = "Wrong password"

// Counter names one of the daily interaction counters on a profile.
type Counter string

const (
	CounterClick   Counter = "click_count"
	CounterComment Counter = "comment_count"
	CounterLike    Counter = "like_count"
)

// Data is the structured profile metadata reported by the automation
// clients. Values are strings as delivered by the clients ("true"/"false").
type Data struct {
	Verify      string `json:"verify,omitempty"`
	Suspended   string `json:"suspended,omitempty"`
	Monetizable string `json:"monetizable,omitempty"`
}

// Verified reports whether the profile passed platform verification.
func (d Data) Verified() bool { return d.Verify == "true" }

// IsSuspended reports whether the platform suspended the profile.
func (d Data) IsSuspended() bool { return d.Suspended == "true" }

// Profile is an automation-controlled account. MainProfile profiles play
// the "receiver" role in interactions; the rest are "givers".
type Profile struct {
	engage.Entity

	ID          id.ProfileID `json:"id"`
	OwnerID     id.UserID    `json:"owner_id"`
	GroupID     id.GroupID   `json:"group_id,omitempty"`
	Username    string       `json:"username"`
	MainProfile bool         `json:"main_profile"`
	IsDisable   bool         `json:"is_disable"`
	Status      string       `json:"status,omitempty"`

	// Daily counters. Read without locking by the allocator (minor
	// over-allocation across concurrent pollers is acceptable), reset by
	// an out-of-band daily job.
	ClickCount   int `json:"click_count"`
	CommentCount int `json:"comment_count"`
	LikeCount    int `json:"like_count"`

	Data Data `json:"profile_data"`
}

// CounterValue returns the current value of the named counter.
func (p *Profile) CounterValue(c Counter) int {
	switch c {
	case CounterComment:
		return p.CommentCount
	case CounterLike:
		return p.LikeCount
	default:
		return p.ClickCount
	}
}

// Update enumerates the mutable profile fields. Only non-nil fields are
// applied, so an update cannot touch columns it did not name.
type Update struct {
	Status      *string
	IsDisable   *bool
	MainProfile *bool
	GroupID     *id.GroupID
	Data        *Data
}

// Group is a named set of users whose profiles are allocated together.
type Group struct {
	engage.Entity

	ID      id.GroupID  `json:"id"`
	Name    string      `json:"name"`
	Members []id.UserID `json:"members"`
}

// CandidateFilter narrows candidate selection for the allocator.
// Matching rows are returned in random order, capped at Max; randomness
// spreads load evenly over repeated allocations.
type CandidateFilter struct {
	// Counter and Limit express the daily cap: candidates must have
	// CounterValue(Counter) < Limit.
	Counter Counter
	Limit   int

	// Max caps the number of returned rows (the caller's threads hint).
	Max int

	// OwnerIn, when non-empty, restricts candidates to profiles owned by
	// these users (group fairness pass).
	OwnerIn []id.UserID

	// ExcludeOwners removes profiles owned by these users (a chosen
	// receiver's owner must not supply its own giver pool).
	ExcludeOwners []id.UserID
}

// Store defines the persistence contract for profiles and groups.
// Every method is scoped to an explicit tenant partition.
type Store interface {
	// CreateProfile persists a new profile. Returns
	// engage.ErrProfileAlreadyExists on a duplicate ID.
	CreateProfile(ctx context.Context, part tenant.Partition, p *Profile) error

	// GetProfile retrieves a profile by ID.
	GetProfile(ctx context.Context, part tenant.Partition, profileID id.ProfileID) (*Profile, error)

	// UpdateProfile applies the non-nil fields of upd to a profile and
	// returns the updated row.
	UpdateProfile(ctx context.Context, part tenant.Partition, profileID id.ProfileID, upd Update) (*Profile, error)

	// ListProfilesByOwner returns all profiles owned by a user.
	ListProfilesByOwner(ctx context.Context, part tenant.Partition, ownerID id.UserID) ([]*Profile, error)

	// ListReceiverCandidates returns enabled main profiles under the daily
	// cap, in random order, honoring OwnerIn.
	ListReceiverCandidates(ctx context.Context, part tenant.Partition, f CandidateFilter) ([]*Profile, error)

	// ListGiverCandidates returns enabled, verified, not-suspended
	// non-main profiles under the daily cap whose status is not
	// StatusWrongPassword, in random order, honoring ExcludeOwners.
	ListGiverCandidates(ctx context.Context, part tenant.Partition, f CandidateFilter) ([]*Profile, error)

	// IncrementCounter bumps the named daily counter by one.
	IncrementCounter(ctx context.Context, part tenant.Partition, profileID id.ProfileID, c Counter) error

	// ResetDailyCounters zeroes every profile's daily counters. Invoked by
	// the out-of-band daily reset job, not by the engine.
	ResetDailyCounters(ctx context.Context, part tenant.Partition) error

	// CreateGroup persists a new group.
	CreateGroup(ctx context.Context, part tenant.Partition, g *Group) error

	// GetGroup retrieves a group by ID.
	GetGroup(ctx context.Context, part tenant.Partition, groupID id.GroupID) (*Group, error)

	// LaggingGroup returns one group whose members' aggregate value of the
	// named counter today is below threshold, together with its member
	// user IDs. Returns id.Nil and no members when every group is at or
	// over the threshold.
	LaggingGroup(ctx context.Context, part tenant.Partition, c Counter, threshold int) (id.GroupID, []id.UserID, error)
}
