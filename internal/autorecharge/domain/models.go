package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Config is a tenant's auto-recharge setup. The trigger only reads it.
type Config struct {
	ID                    snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID              snowflake.ID `json:"tenant_id" gorm:"not null;uniqueIndex"`
	IsEnabled             bool         `json:"is_enabled" gorm:"not null"`
	ThresholdCredits      int64        `json:"threshold_credits" gorm:"not null"`
	RechargeAmountCents   int64        `json:"recharge_amount_cents" gorm:"not null"`
	StripePaymentMethodID string       `json:"stripe_payment_method_id" gorm:"type:text;not null;default:''"`
	CardLast4             string       `json:"card_last4" gorm:"type:text;not null;default:''"`
	CardBrand             string       `json:"card_brand" gorm:"type:text;not null;default:''"`
	LastTriggeredAt       *time.Time   `json:"last_triggered_at,omitempty"`
	LastError             *string      `json:"last_error,omitempty" gorm:"type:text"`
	CreatedAt             time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt             time.Time    `json:"updated_at" gorm:"not null"`
}

func (Config) TableName() string { return "auto_recharge_configs" }

type UpsertRequest struct {
	TenantID              snowflake.ID `json:"-"`
	IsEnabled             bool         `json:"is_enabled"`
	ThresholdCredits      int64        `json:"threshold_credits"`
	RechargeAmountCents   int64        `json:"recharge_amount_cents"`
	StripePaymentMethodID string       `json:"stripe_payment_method_id"`
}

type Reason string

const (
	ReasonDisabled       Reason = "disabled"
	ReasonAboveThreshold Reason = "above_threshold"
	ReasonCooldown       Reason = "cooldown"
	ReasonInFlight       Reason = "in_flight"
	ReasonTriggered      Reason = "triggered"
)

// Decision is the outcome of one trigger evaluation.
type Decision struct {
	Triggered bool          `json:"triggered"`
	Reason    Reason        `json:"reason"`
	AttemptID *snowflake.ID `json:"attempt_id,omitempty"`
}
