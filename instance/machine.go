package instance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	engage "github.com/thinhlx1993/tw-backend-sub000"
	"github.com/thinhlx1993/tw-backend-sub000/backoff"
	"github.com/thinhlx1993/tw-backend-sub000/id"
	"github.com/thinhlx1993/tw-backend-sub000/tenant"
)

// UpdateRequest is one reported task status batch for an instance.
type UpdateRequest struct {
	InstanceID id.InstanceID

	// Statuses is the reported status per task position. Its length must
	// equal the instance's stored task count.
	Statuses []Status

	// ReportedAt is the event time of the batch. Batches are ordered by
	// this timestamp, not by arrival order.
	ReportedAt time.Time

	// Optional instance-level flags carried alongside the batch.
	Completed *bool
	Cancelled *bool
	Deleted   *bool
}

// Result is the outcome of applying a status batch.
type Result struct {
	// Instance is the instance after the call: mutated when Applied,
	// otherwise the stored state at the time of the call.
	Instance *Instance

	// Applied is false when the batch was discarded as stale. Staleness
	// is a valid terminal outcome, not an error.
	Applied bool
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithLockRetry sets the lock retry budget and delay strategy.
func WithLockRetry(attempts int, strategy backoff.Strategy) MachineOption {
	return func(m *Machine) {
		if attempts > 0 {
			m.lockAttempts = attempts
		}
		if strategy != nil {
			m.backoff = strategy
		}
	}
}

// WithLogger sets the machine's logger.
func WithLogger(l *slog.Logger) MachineOption {
	return func(m *Machine) { m.logger = l }
}

// Machine applies task status batches to mission instances. All mutation
// happens inside the store's locked read-modify-write, so concurrent
// reporters for the same instance serialize on the row lock and a failure
// at any point leaves the prior state intact.
type Machine struct {
	store        Store
	logger       *slog.Logger
	lockAttempts int
	backoff      backoff.Strategy
}

// NewMachine creates a Machine over the given instance store.
func NewMachine(store Store, opts ...MachineOption) *Machine {
	m := &Machine{
		store:        store,
		logger:       slog.Default(),
		lockAttempts: 3,
		backoff:      backoff.NewConstant(200 * time.Millisecond),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ApplyTaskUpdate applies one status batch to an instance.
//
// The batch is validated against the stored task count
// (engage.ErrLengthMismatch), discarded as a no-op when its timestamp is
// not newer than the stored task_last_updated_at (idempotence and
// out-of-order safety), and otherwise applied position by position under
// the transition rules. A contended row lock is retried with backoff up
// to the configured budget before surfacing engage.ErrLockTimeout.
func (m *Machine) ApplyTaskUpdate(ctx context.Context, part tenant.Partition, req UpdateRequest) (Result, error) {
	for _, s := range req.Statuses {
		if _, err := ParseStatus(string(s)); err != nil {
			return Result{}, err
		}
	}

	var res Result
	apply := func(inst *Instance) (bool, error) {
		if len(req.Statuses) != len(inst.Tasks) {
			return false, fmt.Errorf("%w: reported %d, stored %d",
				engage.ErrLengthMismatch, len(req.Statuses), len(inst.Tasks))
		}

		// Staleness guard: a batch not newer than what is stored has
		// already been superseded (or is a replay) and is absorbed.
		if !req.ReportedAt.After(inst.TaskLastUpdatedAt) {
			res = Result{Instance: inst, Applied: false}
			return false, nil
		}

		for i := range inst.Tasks {
			transition(&inst.Tasks[i], req.Statuses[i], req.ReportedAt)
		}

		if req.Completed != nil {
			inst.IsCompleted = *req.Completed
		}
		if req.Cancelled != nil {
			inst.IsCancelled = *req.Cancelled
		}
		if req.Deleted != nil {
			inst.IsDeleted = *req.Deleted
		}

		inst.TaskLastUpdatedAt = req.ReportedAt
		inst.LastUpdatedAt = time.Now().UTC()
		res = Result{Instance: inst, Applied: true}
		return true, nil
	}

	var lastErr error
	for attempt := 1; attempt <= m.lockAttempts; attempt++ {
		inst, err := m.store.UpdateLocked(ctx, part, req.InstanceID, apply)
		if err == nil {
			res.Instance = inst
			return res, nil
		}
		if !errors.Is(err, engage.ErrLockBusy) {
			return Result{}, err
		}

		lastErr = err
		m.logger.Debug("instance row lock busy, retrying",
			slog.String("instance_id", req.InstanceID.String()),
			slog.Int("attempt", attempt),
		)
		if attempt < m.lockAttempts {
			if err := sleep(ctx, m.backoff.Delay(attempt)); err != nil {
				return Result{}, err
			}
		}
	}

	return Result{}, fmt.Errorf("%w after %d attempts: %w",
		engage.ErrLockTimeout, m.lockAttempts, lastErr)
}

// transition applies the reported status to one task position.
func transition(e *TaskEntry, reported Status, at time.Time) {
	switch {
	case reported == StatusCompleted || reported == StatusError || reported == StatusCancelled:
		if e.EndTime == nil {
			ts := at
			e.EndTime = &ts
		}
		e.Status = reported

	case reported == StatusRunning:
		if e.StartTime == nil {
			ts := at
			e.StartTime = &ts
		}
		e.Status = reported

	case reported == StatusIdling && e.StartTime != nil:
		// The task started but a later batch reports it idle again: it
		// was superseded before running to completion.
		e.Status = StatusSkipped
		if e.EndTime == nil {
			ts := at
			e.EndTime = &ts
		}

	default:
		e.Status = reported
	}
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
