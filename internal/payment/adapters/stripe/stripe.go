package stripe

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	paymentdomain "github.com/smallbiznis/credits/internal/payment/domain"
	stripego "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const signatureHeader = "Stripe-Signature"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return paymentdomain.ProviderStripe
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	return &Adapter{webhookSecret: secret}, nil
}

type Adapter struct {
	webhookSecret string
}

// Verify checks the Stripe-Signature header, including its timestamp tolerance.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get(signatureHeader))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}
	_, err := webhook.ConstructEventWithOptions(payload, sigHeader, a.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event stripego.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" || event.Data == nil {
		return nil, paymentdomain.ErrInvalidEvent
	}

	switch string(event.Type) {
	case paymentdomain.EventTypePaymentSucceeded, paymentdomain.EventTypePaymentFailed:
		return parsePaymentIntent(event, payload)
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
}

func parsePaymentIntent(event stripego.Event, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var intent stripego.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(intent.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	amount := intent.AmountReceived
	if amount <= 0 {
		amount = intent.Amount
	}

	out := &paymentdomain.PaymentEvent{
		Provider:         paymentdomain.ProviderStripe,
		EventType:        string(event.Type),
		EventID:          event.ID,
		PaymentRef:       intent.ID,
		AmountMinorUnits: amount,
		Currency:         strings.ToLower(string(intent.Currency)),
		Metadata:         intent.Metadata,
		RawPayload:       payload,
	}
	if intent.Customer != nil {
		out.CustomerRef = intent.Customer.ID
	}
	if intent.LastPaymentError != nil {
		out.FailureMessage = strings.TrimSpace(intent.LastPaymentError.Msg)
	}
	if out.EventType == paymentdomain.EventTypePaymentFailed && out.FailureMessage == "" {
		out.FailureMessage = "payment failed"
	}
	return out, nil
}
