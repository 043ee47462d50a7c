// Package processortest provides a testify mock of processor.Processor.
package processortest

import (
	"context"

	"github.com/smallbiznis/credits/internal/payment/processor"
	"github.com/stretchr/testify/mock"
)

type Mock struct {
	mock.Mock
}

var _ processor.Processor = (*Mock)(nil)

func (m *Mock) Provider() string {
	return "stripe"
}

func (m *Mock) Charge(ctx context.Context, req processor.ChargeRequest) (*processor.ChargeResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*processor.ChargeResult)
	return result, args.Error(1)
}

func (m *Mock) CreateCustomer(ctx context.Context, req processor.CreateCustomerRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *Mock) CreateSetupIntent(ctx context.Context, customerRef string) (*processor.SetupIntent, error) {
	args := m.Called(ctx, customerRef)
	intent, _ := args.Get(0).(*processor.SetupIntent)
	return intent, args.Error(1)
}

func (m *Mock) CreatePortalSession(ctx context.Context, customerRef, returnURL string) (*processor.PortalSession, error) {
	args := m.Called(ctx, customerRef, returnURL)
	session, _ := args.Get(0).(*processor.PortalSession)
	return session, args.Error(1)
}

func (m *Mock) DescribePaymentMethod(ctx context.Context, paymentMethodRef string) (*processor.PaymentMethod, error) {
	args := m.Called(ctx, paymentMethodRef)
	method, _ := args.Get(0).(*processor.PaymentMethod)
	return method, args.Error(1)
}
