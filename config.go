package engage

import "time"

// Config holds tunables for the scheduling engine.
type Config struct {
	// ReferenceTimezone is the IANA zone in which all cron expressions are
	// evaluated, regardless of the caller's local time. Scheduling must be
	// deterministic across users in different timezones.
	ReferenceTimezone string

	// CronTolerance is the window around a computed fire time within which
	// a schedule counts as due. It absorbs polling jitter from clients
	// that poll roughly once per minute.
	CronTolerance time.Duration

	// CheckFollowCrons are the fixed daily windows for the follow-check
	// housekeeping mission, evaluated in ReferenceTimezone.
	CheckFollowCrons []string

	// DefaultThreads is the concurrency hint used when device settings
	// are missing or unreadable.
	DefaultThreads int

	// LockRetryAttempts is how many times the state machine retries the
	// mission instance row lock before surfacing ErrLockTimeout.
	LockRetryAttempts int

	// LockRetryDelay is the base delay between lock attempts.
	LockRetryDelay time.Duration

	// DailyLimits maps an interaction type to its per-profile daily cap.
	DailyLimits map[string]int

	// GroupLagThreshold is the aggregate today's-interaction count below
	// which a group is prioritized for allocation. Zero disables the
	// group fairness pass.
	GroupLagThreshold int
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		ReferenceTimezone: "Asia/Ho_Chi_Minh",
		CronTolerance:     60 * time.Second,
		CheckFollowCrons:  []string{"0 8 * * *", "30 20 * * *"},
		DefaultThreads:    20,
		LockRetryAttempts: 3,
		LockRetryDelay:    200 * time.Millisecond,
		DailyLimits: map[string]int{
			"clickAds":     50,
			"comment":      30,
			"like":         60,
			"follow":       80,
			"checkCaptcha": 20,
		},
		GroupLagThreshold: 100,
	}
}
