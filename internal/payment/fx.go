package payment

import (
	"github.com/smallbiznis/credits/internal/config"
	"github.com/smallbiznis/credits/internal/payment/adapters"
	"github.com/smallbiznis/credits/internal/payment/adapters/stripe"
	"github.com/smallbiznis/credits/internal/payment/customer"
	paymentdomain "github.com/smallbiznis/credits/internal/payment/domain"
	"github.com/smallbiznis/credits/internal/payment/processor"
	"github.com/smallbiznis/credits/internal/payment/repository"
	paymentservice "github.com/smallbiznis/credits/internal/payment/service"
	"github.com/smallbiznis/credits/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(processor.New),
	fx.Provide(func(cfg config.Config) *adapters.Registry {
		return adapters.NewRegistry(
			map[string]string{paymentdomain.ProviderStripe: cfg.Stripe.WebhookSecret},
			stripe.NewFactory(),
		)
	}),
	fx.Provide(customer.NewService),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)
