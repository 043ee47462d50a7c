package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	autorechargedomain "github.com/smallbiznis/credits/internal/autorecharge/domain"
	paymentdomain "github.com/smallbiznis/credits/internal/payment/domain"
	"github.com/smallbiznis/credits/internal/payment/processor"
	rechargedomain "github.com/smallbiznis/credits/internal/recharge/domain"
	walletdomain "github.com/smallbiznis/credits/internal/wallet/domain"
	"github.com/smallbiznis/credits/pkg/db"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrTenantRequired     = errors.New("tenant_required")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// errorRule maps a class of errors to a status and public type. Rules are
// checked in order; the first match wins.
type errorRule struct {
	status  int
	typ     string
	message string
	match   func(error) bool
}

func is(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}
}

func isProcessorError(err error) bool {
	var procErr *processor.Error
	return errors.As(err, &procErr)
}

// processorMessage is the decline reason; processor messages are safe to
// show tenants.
func processorMessage(err error) string {
	var procErr *processor.Error
	if errors.As(err, &procErr) {
		return procErr.Error()
	}
	return "payment processor error"
}

var errorRules = []errorRule{
	{http.StatusUnauthorized, "tenant_required", "tenant header is required", is(ErrTenantRequired)},
	{http.StatusPaymentRequired, "insufficient_credits", "insufficient credits", is(walletdomain.ErrInsufficientCredits)},
	{http.StatusPaymentRequired, "hard_stop_active", "wallet is past its overdraft limit", is(walletdomain.ErrHardStopActive)},
	{http.StatusConflict, "conflict", "a recharge attempt is already in progress", is(rechargedomain.ErrAttemptInFlight)},
	{http.StatusConflict, "conflict", "recharge attempt is not in a state that allows this", is(rechargedomain.ErrAttemptState)},
	{http.StatusNotFound, "not_found", "not found", is(
		ErrNotFound,
		walletdomain.ErrWalletNotFound,
		autorechargedomain.ErrConfigNotFound,
		rechargedomain.ErrAttemptNotFound,
		paymentdomain.ErrCustomerNotFound,
		paymentdomain.ErrProviderNotFound,
		gorm.ErrRecordNotFound,
	)},
	{http.StatusTooManyRequests, "rate_limited", "too many requests", is(ErrRateLimited)},
	{http.StatusBadGateway, "payment_processor_error", "", isProcessorError},
	{http.StatusServiceUnavailable, "service_unavailable", "service unavailable", is(
		ErrServiceUnavailable,
		walletdomain.ErrServiceUnavailable,
		processor.ErrNotConfigured,
	)},
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}
	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: "validation error",
			Errors: []ValidationError{{
				Field:   validationErrorField(code),
				Code:    code,
				Message: validationErrorMessage(code),
			}},
		}
	}

	for _, rule := range errorRules {
		if !rule.match(err) {
			continue
		}
		message := rule.message
		if message == "" {
			message = processorMessage(err)
		}
		return rule.status, errorPayload{Type: rule.typ, Message: message}
	}
	return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var isRechargeValidationError = is(
	rechargedomain.ErrInvalidTenant,
	rechargedomain.ErrInvalidAttempt,
	rechargedomain.ErrInvalidAmount,
)

func isValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		walletdomain.IsValidationError(err) ||
		autorechargedomain.IsValidationError(err) ||
		paymentdomain.IsValidationError(err) ||
		isRechargeValidationError(err)
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return rootError(err).Error()
}

// rootError follows the single-error unwrap chain to the domain sentinel.
func rootError(err error) error {
	for inner := errors.Unwrap(err); inner != nil; inner = errors.Unwrap(err) {
		err = inner
	}
	return err
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "payment_method_required":
		return "a payment method is required to enable auto-recharge"
	default:
		return "invalid value"
	}
}

// classifyErrorForLog returns the error type and code attached to request logs.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	if db.IsStorageErr(err) {
		return "storage_error", "storage_error"
	}
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}
