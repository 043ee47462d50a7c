package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/smallbiznis/credits/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/credits/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Events   paymentdomain.EventService
	Adapters *adapters.Registry
}

type Service struct {
	log      *zap.Logger
	events   paymentdomain.EventService
	adapters *adapters.Registry
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		log:      p.Log.Named("payment.webhook"),
		events:   p.Events,
		adapters: p.Adapters,
	}
}

func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (paymentdomain.Outcome, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return "", paymentdomain.ErrInvalidProvider
	}
	if !s.adapters.ProviderExists(provider) {
		return "", paymentdomain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return "", paymentdomain.ErrInvalidPayload
	}

	adapter, err := s.adapters.Adapter(provider)
	if err != nil {
		return "", err
	}
	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.log.Warn("payment webhook rejected", zap.String("provider", provider), zap.Error(err))
		return "", err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			return paymentdomain.OutcomeIgnored, nil
		}
		return "", err
	}
	if event.RawPayload == nil {
		event.RawPayload = payload
	}
	event.Provider = provider

	return s.events.HandleEvent(ctx, event)
}
