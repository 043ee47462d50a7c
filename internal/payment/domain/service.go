package domain

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
)

type AdapterConfig struct {
	Provider      string
	WebhookSecret string
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}

// PaymentAdapter turns one provider's webhook deliveries into PaymentEvents.
type PaymentAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)
}

// EventService applies verified payment events to the ledger.
type EventService interface {
	HandleEvent(ctx context.Context, event *PaymentEvent) (Outcome, error)
	ShouldProcess(ctx context.Context, tenantID snowflake.ID, sourceRef string) (bool, error)
}

type WebhookService interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (Outcome, error)
}

type CustomerService interface {
	EnsureCustomer(ctx context.Context, req CustomerRequest) (*Customer, error)
	GetCustomerRef(ctx context.Context, tenantID snowflake.ID) (string, error)
	ResolveTenant(ctx context.Context, provider string, customerRef string) (snowflake.ID, error)
	CreateSetupIntent(ctx context.Context, req CustomerRequest) (*SetupIntentResponse, error)
	CreatePortalSession(ctx context.Context, req PortalSessionRequest) (*PortalSessionResponse, error)
}
