package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type LedgerFilter struct {
	StartDate  *time.Time
	EndDate    *time.Time
	Direction  Direction
	SourceType SourceType
	BeforeSeq  int64
	Limit      int
}

type Repository interface {
	InsertWallet(ctx context.Context, db *gorm.DB, w *Wallet) (bool, error)
	FindWallet(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*Wallet, error)
	// CompareAndSwapWallet writes w only if the stored version equals
	// expectedVersion. It reports whether the row was updated.
	CompareAndSwapWallet(ctx context.Context, db *gorm.DB, w *Wallet, expectedVersion int64) (bool, error)

	InsertEntry(ctx context.Context, db *gorm.DB, e *LedgerEntry) error
	FindEntryBySource(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, sourceType SourceType, sourceRef string) (*LedgerEntry, error)
	ListEntries(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter LedgerFilter) ([]*LedgerEntry, error)
	SumEntries(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (sum int64, count int64, lastSeq int64, err error)
}
