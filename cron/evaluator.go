package cron

import (
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// cronParser accepts standard 5-field cron expressions
// (minute, hour, day-of-month, month, day-of-week).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// ParseSchedule parses a cron expression and returns the schedule.
// Exported for callers that need to validate expressions up front.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the evaluator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

// Evaluator answers "is this schedule due now?" deterministically.
// All expressions are evaluated in a single reference timezone, not the
// caller's local time, so scheduling behaves the same for every user
// regardless of where they poll from. Safe for concurrent use.
type Evaluator struct {
	loc    *time.Location
	logger *slog.Logger

	// parsed caches parsed cron expressions.
	parsedMu sync.RWMutex
	parsed   map[string]cronlib.Schedule
}

// NewEvaluator creates an Evaluator pinned to the given reference zone.
func NewEvaluator(loc *time.Location, opts ...Option) *Evaluator {
	if loc == nil {
		loc = time.UTC
	}
	e := &Evaluator{
		loc:    loc,
		logger: slog.Default(),
		parsed: make(map[string]cronlib.Schedule),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Location returns the reference timezone expressions are evaluated in.
func (e *Evaluator) Location() *time.Location { return e.loc }

// IsDue reports whether expr has a fire time within tolerance of now.
//
// An empty expression is never due. A malformed expression fails closed:
// it is logged and reported as not due rather than surfaced as an error,
// because one broken mission must not block evaluation of the others.
func (e *Evaluator) IsDue(expr string, now time.Time, tolerance time.Duration) bool {
	if expr == "" {
		return false
	}

	sched, err := e.getOrParse(expr)
	if err != nil {
		e.logger.Debug("malformed cron expression, treating as not due",
			slog.String("expr", expr),
			slog.String("error", err.Error()),
		)
		return false
	}

	// Anchor the search just before the window so a fire time that now has
	// already passed (by less than the tolerance) still counts as due.
	ref := now.In(e.loc)
	next := sched.Next(ref.Add(-tolerance))

	diff := next.Sub(ref)
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}

// getOrParse caches parsed cron expressions.
func (e *Evaluator) getOrParse(expr string) (cronlib.Schedule, error) {
	e.parsedMu.RLock()
	sched, ok := e.parsed[expr]
	e.parsedMu.RUnlock()
	if ok {
		return sched, nil
	}

	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, err
	}

	e.parsedMu.Lock()
	e.parsed[expr] = sched
	e.parsedMu.Unlock()
	return sched, nil
}
