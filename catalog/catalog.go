// Package catalog holds the task catalog (the automation steps clients
// know how to execute) and the daily interaction limit table.
package catalog

import (
	"context"
	"math/rand/v2"
	"sort"

	engage "github.com/thinhlx1993/tw-backend-sub000"
	"github.com/thinhlx1993/tw-backend-sub000/id"
	"github.com/thinhlx1993/tw-backend-sub000/profile"
	"github.com/thinhlx1993/tw-backend-sub000/tenant"
)

// Interaction type names shared between the catalog, the allocator, and
// the aggregator's resolved type.
const (
	TypeClickAds     = "clickAds"
	TypeComment      = "comment"
	TypeLike         = "like"
	TypeFollow       = "follow"
	TypeCheckCaptcha = "checkCaptcha"

	// TypeCheckFollow is the fixed daily housekeeping job.
	TypeCheckFollow = "checkFollow"
)

// Task is a catalog entry describing one step of automation.
type Task struct {
	engage.Entity

	ID     id.TaskID      `json:"id"`
	Name   string         `json:"name"`
	Type   string         `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// Store defines the read-mostly persistence contract for the catalog.
type Store interface {
	// CreateTask persists a new catalog entry. Returns
	// engage.ErrTaskAlreadyExists when the name is taken.
	CreateTask(ctx context.Context, part tenant.Partition, t *Task) error

	// GetTaskByName retrieves a catalog entry by name. Returns
	// engage.ErrTaskNotFound when absent; the allocator treats that as
	// "no task metadata", not a failure.
	GetTaskByName(ctx context.Context, part tenant.Partition, name string) (*Task, error)

	// ListTasks returns the whole catalog.
	ListTasks(ctx context.Context, part tenant.Partition) ([]*Task, error)
}

// Limits is the configured interaction type → daily cap table.
type Limits struct {
	caps map[string]int
}

// NewLimits builds a limit table from the configured caps. Unknown or
// non-positive entries are dropped.
func NewLimits(caps map[string]int) Limits {
	clean := make(map[string]int, len(caps))
	for typ, limit := range caps {
		if limit > 0 {
			clean[typ] = limit
		}
	}
	return Limits{caps: clean}
}

// Cap returns the daily cap for an interaction type and whether the type
// is in the table.
func (l Limits) Cap(typ string) (int, bool) {
	c, ok := l.caps[typ]
	return c, ok
}

// Types returns the configured interaction types in stable order.
func (l Limits) Types() []string {
	types := make([]string, 0, len(l.caps))
	for typ := range l.caps {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}

// RandomType picks one configured interaction type uniformly at random.
// Returns false when the table is empty.
func (l Limits) RandomType() (string, bool) {
	types := l.Types()
	if len(types) == 0 {
		return "", false
	}
	return types[rand.IntN(len(types))], true
}

// CounterFor maps an interaction type to the profile counter that
// enforces its daily cap. Click is the default: every interaction that
// has no dedicated counter consumes the click budget.
func CounterFor(typ string) profile.Counter {
	switch typ {
	case TypeComment:
		return profile.CounterComment
	case TypeLike:
		return profile.CounterLike
	default:
		return profile.CounterClick
	}
}
