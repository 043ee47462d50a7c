package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const ProviderStripe = "stripe"

// Metadata keys stamped on processor charges so webhooks can find their way back.
const (
	MetadataTenantID  = "tenant_id"
	MetadataAttemptID = "attempt_id"
	MetadataConfigID  = "config_id"
)

const (
	EventTypePaymentSucceeded = "payment_intent.succeeded"
	EventTypePaymentFailed    = "payment_intent.payment_failed"
)

type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeIgnored   Outcome = "ignored"
)

// EventRecord is the audit row kept for every webhook delivery.
type EventRecord struct {
	ID               snowflake.ID   `json:"id" gorm:"primaryKey"`
	TenantID         *snowflake.ID  `json:"tenant_id,omitempty" gorm:"index"`
	Provider         string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID  string         `json:"provider_event_id" gorm:"type:text;not null"`
	EventType        string         `json:"event_type" gorm:"type:text;not null"`
	CustomerRef      string         `json:"customer_ref" gorm:"type:text;not null;default:''"`
	AmountMinorUnits int64          `json:"amount_minor_units" gorm:"not null;default:0"`
	Payload          datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	Outcome          *string        `json:"outcome,omitempty" gorm:"type:text"`
	ReceivedAt       time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt      *time.Time     `json:"processed_at,omitempty"`
}

func (EventRecord) TableName() string { return "payment_events" }

// Customer maps a tenant to its customer object at a payment provider.
type Customer struct {
	TenantID    snowflake.ID `json:"tenant_id" gorm:"primaryKey"`
	Provider    string       `json:"provider" gorm:"primaryKey;type:text"`
	CustomerRef string       `json:"customer_ref" gorm:"type:text;not null"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
}

func (Customer) TableName() string { return "payment_customers" }

// PaymentEvent is the provider-neutral shape adapters parse webhooks into.
type PaymentEvent struct {
	Provider         string
	EventType        string
	EventID          string
	PaymentRef       string
	CustomerRef      string
	AmountMinorUnits int64
	Currency         string
	Metadata         map[string]string
	FailureMessage   string
	RawPayload       []byte
}

type CustomerRequest struct {
	TenantID snowflake.ID `json:"-"`
	Email    string       `json:"email"`
	Name     string       `json:"name"`
}

type SetupIntentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	CustomerRef  string `json:"customer_ref"`
}

type PortalSessionRequest struct {
	TenantID  snowflake.ID `json:"-"`
	ReturnURL string       `json:"return_url"`
}

type PortalSessionResponse struct {
	URL string `json:"url"`
}
