package engage

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("engage: no store configured")
	ErrStoreClosed     = errors.New("engage: store closed")
	ErrMigrationFailed = errors.New("engage: migration failed")

	// Not found errors.
	ErrTenantNotFound   = errors.New("engage: tenant not found")
	ErrProfileNotFound  = errors.New("engage: profile not found")
	ErrGroupNotFound    = errors.New("engage: group not found")
	ErrMissionNotFound  = errors.New("engage: mission not found")
	ErrScheduleNotFound = errors.New("engage: mission schedule not found")
	ErrInstanceNotFound = errors.New("engage: mission instance not found")
	ErrTaskNotFound     = errors.New("engage: task not found")
	ErrSettingsNotFound = errors.New("engage: settings not found")
	ErrEventNotFound    = errors.New("engage: event not found")

	// Conflict errors.
	ErrProfileAlreadyExists = errors.New("engage: profile already exists")
	ErrMissionAlreadyExists = errors.New("engage: mission already exists")
	ErrTaskAlreadyExists    = errors.New("engage: task already exists")

	// State errors.
	ErrLengthMismatch = errors.New("engage: task status list length mismatch")
	ErrInvalidStatus  = errors.New("engage: invalid task status")

	// Locking errors. ErrLockBusy is returned by stores for a single failed
	// lock acquisition; the state machine retries and surfaces
	// ErrLockTimeout once the retry budget is exhausted.
	ErrLockBusy    = errors.New("engage: instance row lock busy")
	ErrLockTimeout = errors.New("engage: instance row lock timeout")

	// Throttling.
	ErrThrottled = errors.New("engage: tenant poll throttled")
)
