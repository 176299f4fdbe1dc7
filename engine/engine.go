package engine

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	engage "github.com/thinhlx1993/tw-backend-sub000"
	"github.com/thinhlx1993/tw-backend-sub000/allocator"
	"github.com/thinhlx1993/tw-backend-sub000/backoff"
	"github.com/thinhlx1993/tw-backend-sub000/catalog"
	"github.com/thinhlx1993/tw-backend-sub000/cron"
	"github.com/thinhlx1993/tw-backend-sub000/event"
	"github.com/thinhlx1993/tw-backend-sub000/id"
	"github.com/thinhlx1993/tw-backend-sub000/instance"
	mw "github.com/thinhlx1993/tw-backend-sub000/middleware"
	"github.com/thinhlx1993/tw-backend-sub000/mission"
	"github.com/thinhlx1993/tw-backend-sub000/schedule"
	"github.com/thinhlx1993/tw-backend-sub000/store"
	"github.com/thinhlx1993/tw-backend-sub000/tenant"
	"github.com/thinhlx1993/tw-backend-sub000/throttle"
)

// Operation names used for middleware, metrics, and throttling.
const (
	OpGetSchedule      = "schedule.get"
	OpUpdateTaskStatus = "instance.update_task_status"
	OpForceStart       = "mission.force_start"
	OpRecordEvent      = "event.record"
)

// Engine wires the scheduling subsystems together and exposes the four
// client-facing operations: schedule polls, task status batches, manual
// force starts, and interaction records. Every operation resolves its
// tenant partition through the router and runs inside the middleware
// chain.
type Engine struct {
	store      store.Store
	logger     *slog.Logger
	cfg        engage.Config
	router     *tenant.Router
	evaluator  *cron.Evaluator
	aggregator *schedule.Aggregator
	machine    *instance.Machine
	bus        *event.Bus
	limiter    *throttle.Manager
	bo         backoff.Strategy
	mws        []mw.Middleware

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore sets the backing store. Required.
func WithStore(s store.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithConfig replaces the default configuration.
func WithConfig(cfg engage.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithBackoff sets the lock retry backoff strategy.
// If not set, a constant delay from Config.LockRetryDelay is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(e *Engine) { e.bo = b }
}

// WithThrottle sets per-operation and per-tenant admission limits.
// Without one, no operation is throttled.
func WithThrottle(m *throttle.Manager) Option {
	return func(e *Engine) { e.limiter = m }
}

// WithMiddleware appends middleware to the engine's chain, after the
// built-in recover/tracing/metrics/logging stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(e *Engine) { e.mws = append(e.mws, m) }
}

// WithBus sets the in-process notification bus.
func WithBus(b *event.Bus) Option {
	return func(e *Engine) { e.bus = b }
}

// WithTracerProvider sets a custom OTel TracerProvider. When set, the
// tracing middleware uses this provider instead of the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider. When set, the
// metrics middleware uses this provider instead of the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.meterProvider = mp }
}

// New creates an Engine.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger: slog.Default(),
		cfg:    engage.DefaultConfig(),
		bus:    event.NewBus(64),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.store == nil {
		return nil, engage.ErrNoStore
	}

	loc, err := time.LoadLocation(e.cfg.ReferenceTimezone)
	if err != nil {
		return nil, fmt.Errorf("engage/engine: load reference timezone %q: %w",
			e.cfg.ReferenceTimezone, err)
	}

	if e.bo == nil {
		e.bo = backoff.NewConstant(e.cfg.LockRetryDelay)
	}

	e.router = tenant.NewRouter(e.store, tenant.WithLogger(e.logger))
	e.evaluator = cron.NewEvaluator(loc, cron.WithLogger(e.logger))

	limits := catalog.NewLimits(e.cfg.DailyLimits)
	alloc := allocator.New(e.store, e.store, limits,
		allocator.WithGroupLagThreshold(e.cfg.GroupLagThreshold),
		allocator.WithLogger(e.logger),
	)

	e.aggregator = schedule.NewAggregator(
		schedule.Stores{
			Profiles: e.store,
			Missions: e.store,
			Settings: e.store,
			Tasks:    e.store,
		},
		e.evaluator, alloc, limits,
		schedule.WithCheckFollowCrons(e.cfg.CheckFollowCrons),
		schedule.WithTolerance(e.cfg.CronTolerance),
		schedule.WithDefaultThreads(e.cfg.DefaultThreads),
		schedule.WithBus(e.bus),
		schedule.WithLogger(e.logger),
	)

	e.machine = instance.NewMachine(e.store,
		instance.WithLockRetry(e.cfg.LockRetryAttempts, e.bo),
		instance.WithLogger(e.logger),
	)

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if e.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(e.tracerProvider.Tracer("engage"))
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if e.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(e.meterProvider.Meter("engage"))
	} else {
		metricsMw = mw.Metrics()
	}

	// Default stack: recover → tracing → metrics → logging, then
	// whatever the caller added.
	defaults := []mw.Middleware{
		mw.Recover(),
		tracingMw,
		metricsMw,
		mw.Logging(e.logger),
	}
	e.mws = append(defaults, e.mws...)

	return e, nil
}

// Router returns the tenant router for callers that resolve partitions
// themselves (request middleware, provisioning tooling).
func (e *Engine) Router() *tenant.Router { return e.router }

// Bus returns the in-process notification bus.
func (e *Engine) Bus() *event.Bus { return e.bus }

// Store returns the backing store.
func (e *Engine) Store() store.Store { return e.store }

// Close releases engine resources. The store is closed last so in-flight
// notifications can still read.
func (e *Engine) Close() error {
	e.bus.Close()
	return e.store.Close()
}

// ──────────────────────────────────────────────────
// Operations
// ──────────────────────────────────────────────────

// GetSchedule resolves what the requesting user's device should work on
// right now. See schedule.Aggregator for the priority order.
func (e *Engine) GetSchedule(ctx context.Context, tenantID string, userID id.UserID, deviceID id.DeviceID, hint string) (schedule.WorkList, error) {
	part, err := e.router.Resolve(ctx, tenantID)
	if err != nil {
		return schedule.WorkList{}, err
	}

	var list schedule.WorkList
	err = e.run(ctx, &mw.Op{Name: OpGetSchedule, TenantID: part.TenantID(), UserID: userID},
		func(ctx context.Context) error {
			var opErr error
			list, opErr = e.aggregator.Get(ctx, part, userID, deviceID, hint)
			return opErr
		})
	return list, err
}

// UpdateTaskStatus applies one reported task status batch to a mission
// instance. See instance.Machine for ordering and locking semantics.
func (e *Engine) UpdateTaskStatus(ctx context.Context, tenantID string, req instance.UpdateRequest) (instance.Result, error) {
	part, err := e.router.Resolve(ctx, tenantID)
	if err != nil {
		return instance.Result{}, err
	}

	var res instance.Result
	err = e.run(ctx, &mw.Op{Name: OpUpdateTaskStatus, TenantID: part.TenantID()},
		func(ctx context.Context) error {
			var opErr error
			res, opErr = e.machine.ApplyTaskUpdate(ctx, part, req)
			if opErr != nil {
				return opErr
			}
			if res.Applied {
				e.bus.Publish(event.Notification{
					Kind:       event.KindTaskBatchApplied,
					TenantID:   part.TenantID(),
					At:         time.Now().UTC(),
					InstanceID: req.InstanceID,
					Count:      len(req.Statuses),
				})
			}
			return nil
		})
	return res, err
}

// ForceStart flags a mission for a manual one-shot firing. The flag is
// consumed by exactly one subsequent schedule poll.
func (e *Engine) ForceStart(ctx context.Context, tenantID string, missionID id.MissionID) error {
	part, err := e.router.Resolve(ctx, tenantID)
	if err != nil {
		return err
	}

	return e.run(ctx, &mw.Op{Name: OpForceStart, TenantID: part.TenantID()},
		func(ctx context.Context) error {
			forceStart := true
			_, opErr := e.store.UpdateMission(ctx, part, missionID,
				mission.Update{ForceStart: &forceStart})
			return opErr
		})
}

// RecordEvent persists one completed interaction and bumps the giver's
// daily counter for the interaction's type.
func (e *Engine) RecordEvent(ctx context.Context, tenantID string, evt *event.Event) error {
	part, err := e.router.Resolve(ctx, tenantID)
	if err != nil {
		return err
	}

	return e.run(ctx, &mw.Op{Name: OpRecordEvent, TenantID: part.TenantID()},
		func(ctx context.Context) error {
			if evt.ID.IsNil() {
				evt.ID = id.NewEventID()
			}
			if evt.At.IsZero() {
				evt.At = time.Now().UTC()
			}

			if opErr := e.store.AppendEvent(ctx, part, evt); opErr != nil {
				return opErr
			}

			// Counter drift on a failed increment is tolerable; the event
			// row is the source of truth and counters reset daily.
			counter := catalog.CounterFor(evt.Type)
			if incErr := e.store.IncrementCounter(ctx, part, evt.GiverProfileID, counter); incErr != nil {
				e.logger.Warn("interaction counter increment failed",
					slog.String("profile_id", evt.GiverProfileID.String()),
					slog.String("type", evt.Type),
					slog.String("error", incErr.Error()),
				)
			}

			e.bus.Publish(event.Notification{
				Kind:     event.KindInteractionRecorded,
				TenantID: part.TenantID(),
				At:       evt.At,
				Type:     evt.Type,
				Count:    1,
			})
			return nil
		})
}

// run executes op's handler inside the throttle gate and middleware
// chain.
func (e *Engine) run(ctx context.Context, op *mw.Op, h mw.Handler) error {
	if e.limiter != nil {
		if !e.limiter.Acquire(op.Name, op.TenantID.String()) {
			return fmt.Errorf("%w: %s", engage.ErrThrottled, op.Name)
		}
		defer e.limiter.Release(op.Name, op.TenantID.String())
	}
	return mw.Chain(e.mws...)(ctx, op, h)
}
