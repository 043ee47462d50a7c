package adapters_test

import (
	"errors"
	"testing"

	"github.com/smallbiznis/credits/internal/payment/adapters"
	"github.com/smallbiznis/credits/internal/payment/adapters/stripe"
	"github.com/smallbiznis/credits/internal/payment/domain"
	"github.com/stretchr/testify/require"
)

func TestRegistryResolvesConfiguredProvider(t *testing.T) {
	registry := adapters.NewRegistry(map[string]string{"Stripe": "whsec_test"}, stripe.NewFactory(), nil)

	require.True(t, registry.ProviderExists("STRIPE"))
	require.Equal(t, []string{"stripe"}, registry.Providers())

	adapter, err := registry.Adapter(" stripe ")
	require.NoError(t, err)
	require.NotNil(t, adapter)

	_, err = registry.Adapter("adyen")
	require.True(t, errors.Is(err, domain.ErrProviderNotFound))
}

func TestRegistryWithoutSecret(t *testing.T) {
	registry := adapters.NewRegistry(nil, stripe.NewFactory())

	_, err := registry.Adapter("stripe")
	require.True(t, errors.Is(err, domain.ErrInvalidConfig))

	var empty *adapters.Registry
	require.False(t, empty.ProviderExists("stripe"))
}
