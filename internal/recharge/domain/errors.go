package domain

import "errors"

var (
	ErrInvalidTenant  = errors.New("invalid_tenant")
	ErrInvalidAttempt = errors.New("invalid_attempt")
	ErrInvalidAmount  = errors.New("invalid_amount")

	ErrAttemptNotFound = errors.New("recharge_attempt_not_found")
	// ErrAttemptInFlight is returned by Enqueue while the tenant already has a queued charge.
	ErrAttemptInFlight = errors.New("recharge_attempt_in_flight")
	// ErrAttemptState means the attempt already moved past the requested transition.
	ErrAttemptState = errors.New("recharge_attempt_invalid_state")

	ErrRechargeFailed = errors.New("recharge_failed")
)
