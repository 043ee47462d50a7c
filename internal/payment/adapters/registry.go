package adapters

import (
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/smallbiznis/credits/internal/payment/domain"
)

// Registry resolves the webhook adapter for a provider name. Secrets are
// keyed by provider; a provider without a secret cannot accept webhooks.
type Registry struct {
	factories map[string]domain.AdapterFactory
	secrets   map[string]string
}

func NewRegistry(secrets map[string]string, factories ...domain.AdapterFactory) *Registry {
	registry := &Registry{
		factories: map[string]domain.AdapterFactory{},
		secrets:   map[string]string{},
	}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		provider := normalize(factory.Provider())
		if provider == "" {
			continue
		}
		registry.factories[provider] = factory
	}
	for provider, secret := range secrets {
		registry.secrets[normalize(provider)] = strings.TrimSpace(secret)
	}
	return registry
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	_, ok := r.factories[normalize(provider)]
	return ok
}

func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	providers := lo.Keys(r.factories)
	sort.Strings(providers)
	return providers
}

func (r *Registry) Adapter(provider string) (domain.PaymentAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	provider = normalize(provider)
	factory, ok := r.factories[provider]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return factory.NewAdapter(domain.AdapterConfig{
		Provider:      provider,
		WebhookSecret: r.secrets[provider],
	})
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
