// Package processor is the outbound payment capability: charging a saved
// payment method and managing the customer records that make that possible.
package processor

import (
	"context"
	"errors"
	"fmt"
)

var ErrNotConfigured = errors.New("payment_processor_not_configured")

type ChargeRequest struct {
	CustomerRef      string
	PaymentMethodRef string
	AmountMinorUnits int64
	Currency         string
	IdempotencyKey   string
	Description      string
	Metadata         map[string]string
}

type ChargeResult struct {
	ChargeID string
	Status   string
}

type CreateCustomerRequest struct {
	TenantID string
	Email    string
	Name     string
}

type SetupIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

type PortalSession struct {
	URL string `json:"url"`
}

type PaymentMethod struct {
	ID    string
	Brand string
	Last4 string
}

type Processor interface {
	Provider() string
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	CreateCustomer(ctx context.Context, req CreateCustomerRequest) (string, error)
	CreateSetupIntent(ctx context.Context, customerRef string) (*SetupIntent, error)
	CreatePortalSession(ctx context.Context, customerRef, returnURL string) (*PortalSession, error)
	DescribePaymentMethod(ctx context.Context, paymentMethodRef string) (*PaymentMethod, error)
}

// Error is a synchronous rejection reported by the processor.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unconfigured rejects every call. It stands in when no processor
// credentials are present so the rest of the engine can still run.
type Unconfigured struct{}

func (Unconfigured) Provider() string { return "none" }

func (Unconfigured) Charge(context.Context, ChargeRequest) (*ChargeResult, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) CreateCustomer(context.Context, CreateCustomerRequest) (string, error) {
	return "", ErrNotConfigured
}

func (Unconfigured) CreateSetupIntent(context.Context, string) (*SetupIntent, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) CreatePortalSession(context.Context, string, string) (*PortalSession, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) DescribePaymentMethod(context.Context, string) (*PaymentMethod, error) {
	return nil, ErrNotConfigured
}
