package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Direction is the sign of a ledger entry.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

type SourceType string

const (
	SourceTypePurchase   SourceType = "purchase"   // confirmed payment (webhook or manual)
	SourceTypeUsage      SourceType = "usage"      // metered consumption
	SourceTypeAdjustment SourceType = "adjustment" // operator correction
	SourceTypeRefund     SourceType = "refund"     // credits returned to the tenant
)

type Status string

const (
	StatusOK       Status = "ok"
	StatusLow      Status = "low"
	StatusCritical Status = "critical"
)

// Wallet is the per-tenant cached view of the ledger. Version is bumped on
// every write and doubles as the sequence of the newest ledger entry.
type Wallet struct {
	TenantID                   snowflake.ID    `json:"tenant_id" gorm:"primaryKey"`
	BalanceCredits             int64           `json:"balance_credits" gorm:"not null;default:0"`
	OverdraftPercent           decimal.Decimal `json:"overdraft_percent" gorm:"type:numeric(5,4);not null;default:0"`
	LowBalanceThresholdCredits int64           `json:"low_balance_threshold_credits" gorm:"not null;default:0"`
	HardStopActive             bool            `json:"hard_stop_active" gorm:"not null;default:false"`
	NotifyLowBalance           bool            `json:"notify_low_balance" gorm:"not null;default:false"`
	NotifyHardStop             bool            `json:"notify_hard_stop" gorm:"not null;default:false"`
	Version                    int64           `json:"version" gorm:"not null;default:0"`
	CreatedAt                  time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt                  time.Time       `json:"updated_at" gorm:"not null"`
}

func (Wallet) TableName() string { return "wallets" }

// LedgerEntry is an immutable balance-affecting record.
type LedgerEntry struct {
	ID            snowflake.ID      `json:"id" gorm:"primaryKey"`
	TenantID      snowflake.ID      `json:"tenant_id" gorm:"not null;uniqueIndex:ux_ledger_entries_tenant_seq,priority:1"`
	Sequence      int64             `json:"sequence" gorm:"not null;uniqueIndex:ux_ledger_entries_tenant_seq,priority:2"`
	Direction     Direction         `json:"direction" gorm:"type:text;not null"`
	AmountCredits int64             `json:"amount_credits" gorm:"not null"`
	BalanceAfter  int64             `json:"balance_after" gorm:"not null"`
	SourceType    SourceType        `json:"source_type" gorm:"type:text;not null"`
	SourceRef     *string           `json:"source_ref,omitempty" gorm:"type:text"`
	Description   string            `json:"description" gorm:"type:text;not null;default:''"`
	Meta          datatypes.JSONMap `json:"meta,omitempty" gorm:"type:jsonb"`
	CreatedAt     time.Time         `json:"created_at" gorm:"not null"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

// SignedAmount returns the entry amount with the sign of its direction.
func (e LedgerEntry) SignedAmount() int64 {
	if e.Direction == DirectionDebit {
		return -e.AmountCredits
	}
	return e.AmountCredits
}

type WalletView struct {
	TenantID                   string    `json:"tenant_id"`
	BalanceCredits             int64     `json:"balance_credits"`
	AvailableCredits           int64     `json:"available_credits"`
	OverdraftAllowance         int64     `json:"overdraft_allowance"`
	OverdraftPercent           string    `json:"overdraft_percent"`
	LowBalanceThresholdCredits int64     `json:"low_balance_threshold_credits"`
	Status                     Status    `json:"status"`
	HardStopActive             bool      `json:"hard_stop_active"`
	UpdatedAt                  time.Time `json:"updated_at"`
}

type AppendRequest struct {
	TenantID      snowflake.ID
	Direction     Direction
	AmountCredits int64
	SourceType    SourceType
	SourceRef     string
	Description   string
	Meta          map[string]any
}

type DebitRequest struct {
	TenantID      snowflake.ID   `json:"-"`
	AmountCredits int64          `json:"amount_credits"`
	SourceType    SourceType     `json:"source_type"`
	SourceRef     string         `json:"source_ref"`
	Description   string         `json:"description"`
	Meta          map[string]any `json:"meta"`
}

type CreditRequest struct {
	TenantID      snowflake.ID   `json:"-"`
	AmountCredits int64          `json:"amount_credits"`
	SourceType    SourceType     `json:"source_type"`
	SourceRef     string         `json:"source_ref"`
	Description   string         `json:"description"`
	Meta          map[string]any `json:"meta"`
}

// Result is returned by every ledger mutation. Replayed is set when the
// request matched an existing entry by source reference.
type Result struct {
	Entry    *LedgerEntry `json:"entry"`
	Wallet   *WalletView  `json:"wallet"`
	Replayed bool         `json:"replayed"`
}

type ListLedgerRequest struct {
	StartDate  *time.Time
	EndDate    *time.Time
	Direction  Direction
	SourceType SourceType
	PageToken  string
	PageSize   int
}

type ListLedgerResponse struct {
	Entries       []LedgerEntry `json:"entries"`
	NextPageToken string        `json:"next_page_token,omitempty"`
	HasMore       bool          `json:"has_more"`
}

type ProvisionRequest struct {
	TenantID                   snowflake.ID
	OverdraftPercent           *decimal.Decimal
	LowBalanceThresholdCredits *int64
}

type UpdateSettingsRequest struct {
	TenantID                   snowflake.ID
	OverdraftPercent           *decimal.Decimal
	LowBalanceThresholdCredits *int64
}

// Reconciliation compares the cached balance with the ledger sum.
type Reconciliation struct {
	TenantID       string `json:"tenant_id"`
	BalanceCredits int64  `json:"balance_credits"`
	LedgerSum      int64  `json:"ledger_sum"`
	EntryCount     int64  `json:"entry_count"`
	LastSequence   int64  `json:"last_sequence"`
	Version        int64  `json:"version"`
	InSync         bool   `json:"in_sync"`
}
