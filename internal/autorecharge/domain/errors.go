package domain

import "errors"

var (
	ErrInvalidTenant         = errors.New("invalid_tenant")
	ErrInvalidThreshold      = errors.New("invalid_threshold")
	ErrInvalidRechargeAmount = errors.New("invalid_recharge_amount")
	ErrPaymentMethodRequired = errors.New("payment_method_required")

	ErrConfigNotFound = errors.New("auto_recharge_config_not_found")
)

// IsValidationError reports whether err rejects the request input.
func IsValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidTenant),
		errors.Is(err, ErrInvalidThreshold),
		errors.Is(err, ErrInvalidRechargeAmount),
		errors.Is(err, ErrPaymentMethodRequired):
		return true
	default:
		return false
	}
}
