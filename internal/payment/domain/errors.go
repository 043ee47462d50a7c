package domain

import "errors"

var (
	ErrInvalidProvider  = errors.New("invalid_provider")
	ErrProviderNotFound = errors.New("provider_not_found")
	ErrInvalidConfig    = errors.New("invalid_config")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrInvalidCustomer  = errors.New("invalid_customer")
	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrInvalidAmount    = errors.New("invalid_amount")

	// ErrEventIgnored is returned by adapters for event types the engine does not act on.
	ErrEventIgnored = errors.New("event_ignored")

	ErrCustomerNotFound = errors.New("payment_customer_not_found")
	ErrUnknownCustomer  = errors.New("unknown_payment_customer")
)

// IsValidationError reports whether err rejects the request input.
func IsValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidProvider),
		errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrInvalidPayload),
		errors.Is(err, ErrInvalidEvent),
		errors.Is(err, ErrInvalidCustomer),
		errors.Is(err, ErrInvalidTenant),
		errors.Is(err, ErrInvalidAmount):
		return true
	default:
		return false
	}
}
