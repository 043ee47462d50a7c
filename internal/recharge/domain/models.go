package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type State string

const (
	StateChargeRequested      State = "charge_requested"
	StateChargeFailed         State = "charge_failed"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateCredited             State = "credited"
	StateConfirmationFailed   State = "confirmation_failed"
)

// Terminal reports whether no further transition leaves s.
func (s State) Terminal() bool {
	switch s {
	case StateChargeFailed, StateCredited, StateConfirmationFailed:
		return true
	default:
		return false
	}
}

// Attempt is one off-session charge started by the auto-recharge trigger.
// Rows in charge_requested form the durable work queue.
type Attempt struct {
	ID                snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID          snowflake.ID `json:"tenant_id" gorm:"not null;index"`
	ConfigID          snowflake.ID `json:"config_id" gorm:"not null"`
	State             State        `json:"state" gorm:"type:text;not null"`
	AmountCents       int64        `json:"amount_cents" gorm:"not null"`
	Currency          string       `json:"currency" gorm:"type:text;not null"`
	IdempotencyKey    string       `json:"idempotency_key" gorm:"type:text;not null"`
	LockToken         string       `json:"-" gorm:"type:text;not null;default:''"`
	ProcessorChargeID *string      `json:"processor_charge_id,omitempty" gorm:"type:text"`
	Error             *string      `json:"error,omitempty" gorm:"type:text"`
	ClaimedAt         *time.Time   `json:"claimed_at,omitempty"`
	CompletedAt       *time.Time   `json:"completed_at,omitempty"`
	CreatedAt         time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time    `json:"updated_at" gorm:"not null"`
}

func (Attempt) TableName() string { return "recharge_attempts" }

type EnqueueRequest struct {
	TenantID    snowflake.ID
	ConfigID    snowflake.ID
	AmountCents int64
	LockToken   string
}

type TriggerRequest struct {
	AttemptID snowflake.ID
}

// TriggerResult reports whether a charge was accepted by the processor.
// Err carries the processor failure when Started is false.
type TriggerResult struct {
	Started           bool
	ProcessorChargeID string
	Err               error
}

type ConfirmRequest struct {
	AttemptID         snowflake.ID
	ProcessorChargeID string
	LedgerEntryID     snowflake.ID
}

type FailConfirmationRequest struct {
	AttemptID snowflake.ID
	Message   string
}

type ListAttemptsRequest struct {
	TenantID snowflake.ID
	Limit    int
}

// Transition moves an attempt out of From. Nil pointer fields are left untouched.
type Transition struct {
	AttemptID         snowflake.ID
	From              State
	To                State
	ProcessorChargeID *string
	Error             *string
	CompletedAt       *time.Time
	UpdatedAt         time.Time
}
