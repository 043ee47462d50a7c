package domain

import "errors"

var (
	ErrInvalidTenant           = errors.New("invalid_tenant")
	ErrInvalidAmount           = errors.New("invalid_amount")
	ErrInvalidDirection        = errors.New("invalid_direction")
	ErrInvalidSourceType       = errors.New("invalid_source_type")
	ErrInvalidSourceRef        = errors.New("invalid_source_ref")
	ErrInvalidOverdraftPercent = errors.New("invalid_overdraft_percent")
	ErrInvalidThreshold        = errors.New("invalid_threshold")
	ErrInvalidPageToken        = errors.New("invalid_page_token")
	ErrInvalidDateRange        = errors.New("invalid_date_range")

	ErrWalletNotFound = errors.New("wallet_not_found")

	ErrInsufficientCredits = errors.New("insufficient_credits")
	ErrHardStopActive      = errors.New("hard_stop_active")

	// ErrConcurrencyConflict never leaves the service; callers see
	// ErrServiceUnavailable once retries are exhausted.
	ErrConcurrencyConflict = errors.New("concurrency_conflict")
	ErrServiceUnavailable  = errors.New("service_unavailable")
)

// IsValidationError reports whether err rejects the request input.
func IsValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidTenant),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidDirection),
		errors.Is(err, ErrInvalidSourceType),
		errors.Is(err, ErrInvalidSourceRef),
		errors.Is(err, ErrInvalidOverdraftPercent),
		errors.Is(err, ErrInvalidThreshold),
		errors.Is(err, ErrInvalidPageToken),
		errors.Is(err, ErrInvalidDateRange):
		return true
	default:
		return false
	}
}
