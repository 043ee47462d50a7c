package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Append(ctx context.Context, req AppendRequest) (*Result, error)
	Debit(ctx context.Context, req DebitRequest) (*Result, error)
	Credit(ctx context.Context, req CreditRequest) (*Result, error)
	GetWallet(ctx context.Context, tenantID snowflake.ID) (*WalletView, error)
	ListLedger(ctx context.Context, tenantID snowflake.ID, req ListLedgerRequest) (*ListLedgerResponse, error)
	ProvisionWallet(ctx context.Context, req ProvisionRequest) (*Wallet, error)
	UpdateSettings(ctx context.Context, req UpdateSettingsRequest) (*WalletView, error)
	VerifyBalance(ctx context.Context, tenantID snowflake.ID) (*Reconciliation, error)
	FindBySource(ctx context.Context, tenantID snowflake.ID, sourceType SourceType, sourceRef string) (*LedgerEntry, error)
}

// DebitObserver is told about every committed debit before Debit returns.
type DebitObserver interface {
	AfterDebit(ctx context.Context, tenantID snowflake.ID, balanceCredits int64) error
}

type NoticeKind string

const (
	NoticeLowBalance NoticeKind = "low_balance"
	NoticeHardStop   NoticeKind = "hard_stop"
)

// Notifier delivers tenant-facing balance notices. It runs after commit.
type Notifier interface {
	Notify(ctx context.Context, kind NoticeKind, wallet Wallet) error
}
