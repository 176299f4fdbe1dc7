// Package allocator picks which profile pairs may interact today.
//
// Selection relies on the denormalized daily counters on profiles rather
// than scanning the interaction log, so it needs no distributed lock:
// counters are read without locking and minor over-allocation across
// concurrent pollers is acceptable. Candidates come back from the store
// in random order, which spreads load evenly over the long run — repeated
// calls under identical state may return different pairings by design.
package allocator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	engage "github.com/thinhlx1993/tw-backend-sub000"
	"github.com/thinhlx1993/tw-backend-sub000/catalog"
	"github.com/thinhlx1993/tw-backend-sub000/id"
	"github.com/thinhlx1993/tw-backend-sub000/profile"
	"github.com/thinhlx1993/tw-backend-sub000/tenant"
)

// Pair is one receiver/giver interaction assignment for today.
type Pair struct {
	Receiver *profile.Profile `json:"receiver"`
	Giver    *profile.Profile `json:"giver"`
}

// Allocation is the allocator's result for one interaction type. Empty
// Pairs is a valid outcome, not an error. Task is nil when the catalog
// has no entry for the type; pairs are still returned.
type Allocation struct {
	Type  string        `json:"type"`
	Task  *catalog.Task `json:"task,omitempty"`
	Pairs []Pair        `json:"pairs"`
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithGroupLagThreshold sets the aggregate count below which a group is
// prioritized. Zero disables the group fairness pass.
func WithGroupLagThreshold(n int) Option {
	return func(a *Allocator) { a.lagThreshold = n }
}

// WithLogger sets the allocator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Allocator) { a.logger = l }
}

// Allocator selects receiver/giver pairings under daily limits.
type Allocator struct {
	profiles     profile.Store
	tasks        catalog.Store
	limits       catalog.Limits
	lagThreshold int
	logger       *slog.Logger
}

// New creates an Allocator.
func New(profiles profile.Store, tasks catalog.Store, limits catalog.Limits, opts ...Option) *Allocator {
	a := &Allocator{
		profiles: profiles,
		tasks:    tasks,
		limits:   limits,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allocate produces up to threads receiver/giver pairings for the given
// interaction type.
//
// Receivers are enabled main profiles under the type's daily cap; givers
// are enabled, verified, not-suspended non-main profiles under the cap
// whose owner is not among the chosen receivers' owners. The two lists
// are zipped positionally; the shorter bounds the number of pairings.
func (a *Allocator) Allocate(ctx context.Context, part tenant.Partition, typ string, threads int) (Allocation, error) {
	alloc := Allocation{Type: typ}
	if threads <= 0 {
		return alloc, nil
	}

	limit, ok := a.limits.Cap(typ)
	if !ok {
		a.logger.Debug("interaction type has no configured daily limit",
			slog.String("type", typ))
		return alloc, nil
	}
	counter := catalog.CounterFor(typ)

	// Group fairness: when one group lags behind today, restrict
	// receivers to its members so it catches up. Failure here degrades
	// to unrestricted selection rather than blocking allocation.
	var ownerIn []id.UserID
	if a.lagThreshold > 0 {
		groupID, members, err := a.profiles.LaggingGroup(ctx, part, counter, a.lagThreshold)
		if err != nil {
			a.logger.Warn("lagging group lookup failed, allocating unrestricted",
				slog.String("type", typ),
				slog.String("error", err.Error()),
			)
		} else if !groupID.IsNil() {
			ownerIn = members
		}
	}

	receivers, err := a.profiles.ListReceiverCandidates(ctx, part, profile.CandidateFilter{
		Counter: counter,
		Limit:   limit,
		Max:     threads,
		OwnerIn: ownerIn,
	})
	if err != nil {
		return Allocation{}, fmt.Errorf("allocator: list receivers: %w", err)
	}
	if len(receivers) == 0 {
		return alloc, nil
	}

	excludeOwners := ownerSet(receivers)
	givers, err := a.profiles.ListGiverCandidates(ctx, part, profile.CandidateFilter{
		Counter:       counter,
		Limit:         limit,
		Max:           threads,
		ExcludeOwners: excludeOwners,
	})
	if err != nil {
		return Allocation{}, fmt.Errorf("allocator: list givers: %w", err)
	}

	n := min(len(receivers), len(givers))
	alloc.Pairs = make([]Pair, 0, n)
	for i := range n {
		alloc.Pairs = append(alloc.Pairs, Pair{Receiver: receivers[i], Giver: givers[i]})
	}

	// Task metadata is best-effort: a missing catalog entry yields the
	// pairings without it.
	task, err := a.tasks.GetTaskByName(ctx, part, typ)
	switch {
	case err == nil:
		alloc.Task = task
	case errors.Is(err, engage.ErrTaskNotFound):
		a.logger.Debug("no catalog task for interaction type",
			slog.String("type", typ))
	default:
		return Allocation{}, fmt.Errorf("allocator: task lookup: %w", err)
	}

	return alloc, nil
}

// ownerSet returns the distinct owners of the given profiles.
func ownerSet(profiles []*profile.Profile) []id.UserID {
	seen := make(map[string]struct{}, len(profiles))
	owners := make([]id.UserID, 0, len(profiles))
	for _, p := range profiles {
		key := p.OwnerID.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		owners = append(owners, p.OwnerID)
	}
	return owners
}
