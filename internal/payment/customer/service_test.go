package customer_test

import (
	"context"
	"testing"

	"github.com/smallbiznis/credits/internal/payment/domain"
	"github.com/smallbiznis/credits/internal/payment/processor"
	"github.com/smallbiznis/credits/internal/testutil/harness"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestEnsureCustomerCreatesOnce(t *testing.T) {
	ctx := context.Background()
	e := harness.New(t)
	tenantID := e.Node.Generate()

	e.Processor.On("CreateCustomer", mock.Anything, processor.CreateCustomerRequest{
		TenantID: tenantID.String(),
		Email:    "ops@example.com",
	}).Return("cus_new", nil).Once()

	first, err := e.Customers.EnsureCustomer(ctx, domain.CustomerRequest{TenantID: tenantID, Email: " ops@example.com "})
	require.NoError(t, err)
	assert.Equal(t, "cus_new", first.CustomerRef)

	second, err := e.Customers.EnsureCustomer(ctx, domain.CustomerRequest{TenantID: tenantID})
	require.NoError(t, err)
	assert.Equal(t, "cus_new", second.CustomerRef)

	ref, err := e.Customers.GetCustomerRef(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, "cus_new", ref)

	resolved, err := e.Customers.ResolveTenant(ctx, "Stripe", "cus_new")
	require.NoError(t, err)
	assert.Equal(t, tenantID, resolved)
	e.Processor.AssertExpectations(t)
}

func TestSetupIntentAndPortal(t *testing.T) {
	ctx := context.Background()
	e := harness.New(t)
	tenantID := e.Node.Generate()

	_, err := e.Customers.CreatePortalSession(ctx, domain.PortalSessionRequest{TenantID: tenantID})
	assert.ErrorIs(t, err, domain.ErrCustomerNotFound)

	e.Processor.On("CreateCustomer", mock.Anything, mock.Anything).Return("cus_portal", nil).Once()
	e.Processor.On("CreateSetupIntent", mock.Anything, "cus_portal").
		Return(&processor.SetupIntent{ID: "seti_1", ClientSecret: "seti_1_secret"}, nil).Once()
	e.Processor.On("CreatePortalSession", mock.Anything, "cus_portal", "https://app.example.com/billing").
		Return(&processor.PortalSession{URL: "https://billing.stripe.com/session/1"}, nil).Once()

	intent, err := e.Customers.CreateSetupIntent(ctx, domain.CustomerRequest{TenantID: tenantID})
	require.NoError(t, err)
	assert.Equal(t, "seti_1_secret", intent.ClientSecret)
	assert.Equal(t, "cus_portal", intent.CustomerRef)

	session, err := e.Customers.CreatePortalSession(ctx, domain.PortalSessionRequest{
		TenantID:  tenantID,
		ReturnURL: "https://app.example.com/billing",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://billing.stripe.com/session/1", session.URL)
	e.Processor.AssertExpectations(t)
}

func TestResolveTenantUnknown(t *testing.T) {
	e := harness.New(t)

	_, err := e.Customers.ResolveTenant(context.Background(), "stripe", "cus_missing")
	assert.ErrorIs(t, err, domain.ErrUnknownCustomer)
	_, err = e.Customers.ResolveTenant(context.Background(), "stripe", "")
	assert.ErrorIs(t, err, domain.ErrUnknownCustomer)
}
