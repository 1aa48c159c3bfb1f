package groupstate

import "errors"

var (
	// ErrNotFound means the referenced group has no state record.
	ErrNotFound = errors.New("group state not found")
	// ErrExists means Create hit an already-existing record.
	ErrExists = errors.New("group state already exists")
	// ErrConflict means a conditional write lost the race; the caller must
	// re-read current state before any retry.
	ErrConflict = errors.New("group state version conflict")
)

// DenyReason names why a group refused a post right now.
type DenyReason string

const (
	DenyNone         DenyReason = ""
	DenyNotFound     DenyReason = "group_not_found"
	DenyUnauthorized DenyReason = "unauthorized"
	DenyInitialDelay DenyReason = "ramp_initial_delay"
	DenyRampLimit    DenyReason = "ramp_phase_limit"
	DenyRampInterval DenyReason = "ramp_min_interval"
	DenyCooldown     DenyReason = "group_cooldown"
	DenyDailyLimit   DenyReason = "daily_limit"
)

// RampRelated reports whether the denial came from the onboarding ramp.
func (r DenyReason) RampRelated() bool {
	switch r {
	case DenyInitialDelay, DenyRampLimit, DenyRampInterval:
		return true
	}
	return false
}

// RateLimitRelated reports whether the denial came from steady-state limits.
func (r DenyReason) RateLimitRelated() bool {
	return r == DenyCooldown || r == DenyDailyLimit
}
