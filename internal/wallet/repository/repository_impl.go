package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/credits/internal/wallet/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const walletColumns = `tenant_id, balance_credits, overdraft_percent, low_balance_threshold_credits,
	hard_stop_active, notify_low_balance, notify_hard_stop, version, created_at, updated_at`

const entryColumns = `id, tenant_id, sequence, direction, amount_credits, balance_after,
	source_type, source_ref, description, meta, created_at`

func (r *repo) InsertWallet(ctx context.Context, db *gorm.DB, w *domain.Wallet) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO wallets (`+walletColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id) DO NOTHING`,
		w.TenantID,
		w.BalanceCredits,
		w.OverdraftPercent,
		w.LowBalanceThresholdCredits,
		w.HardStopActive,
		w.NotifyLowBalance,
		w.NotifyHardStop,
		w.Version,
		w.CreatedAt,
		w.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindWallet(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*domain.Wallet, error) {
	var item domain.Wallet
	err := db.WithContext(ctx).Raw(
		`SELECT `+walletColumns+`
		 FROM wallets
		 WHERE tenant_id = ?
		 LIMIT 1`,
		tenantID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.TenantID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) CompareAndSwapWallet(ctx context.Context, db *gorm.DB, w *domain.Wallet, expectedVersion int64) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE wallets
		 SET balance_credits = ?,
			overdraft_percent = ?,
			low_balance_threshold_credits = ?,
			hard_stop_active = ?,
			notify_low_balance = ?,
			notify_hard_stop = ?,
			version = ?,
			updated_at = ?
		 WHERE tenant_id = ? AND version = ?`,
		w.BalanceCredits,
		w.OverdraftPercent,
		w.LowBalanceThresholdCredits,
		w.HardStopActive,
		w.NotifyLowBalance,
		w.NotifyHardStop,
		w.Version,
		w.UpdatedAt,
		w.TenantID,
		expectedVersion,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) InsertEntry(ctx context.Context, db *gorm.DB, e *domain.LedgerEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO ledger_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.TenantID,
		e.Sequence,
		string(e.Direction),
		e.AmountCredits,
		e.BalanceAfter,
		string(e.SourceType),
		e.SourceRef,
		e.Description,
		e.Meta,
		e.CreatedAt,
	).Error
}

func (r *repo) FindEntryBySource(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, sourceType domain.SourceType, sourceRef string) (*domain.LedgerEntry, error) {
	var item domain.LedgerEntry
	err := db.WithContext(ctx).Raw(
		`SELECT `+entryColumns+`
		 FROM ledger_entries
		 WHERE tenant_id = ? AND source_type = ? AND source_ref = ?
		 LIMIT 1`,
		tenantID,
		string(sourceType),
		sourceRef,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListEntries(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter domain.LedgerFilter) ([]*domain.LedgerEntry, error) {
	var (
		where = []string{"tenant_id = ?"}
		args  = []any{tenantID}
	)
	if filter.StartDate != nil {
		where = append(where, "created_at >= ?")
		args = append(args, filter.StartDate.UTC())
	}
	if filter.EndDate != nil {
		where = append(where, "created_at < ?")
		args = append(args, filter.EndDate.UTC())
	}
	if filter.Direction != "" {
		where = append(where, "direction = ?")
		args = append(args, string(filter.Direction))
	}
	if filter.SourceType != "" {
		where = append(where, "source_type = ?")
		args = append(args, string(filter.SourceType))
	}
	if filter.BeforeSeq > 0 {
		where = append(where, "sequence < ?")
		args = append(args, filter.BeforeSeq)
	}
	args = append(args, filter.Limit)

	var items []*domain.LedgerEntry
	err := db.WithContext(ctx).Raw(
		`SELECT `+entryColumns+`
		 FROM ledger_entries
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY sequence DESC
		 LIMIT ?`,
		args...,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) SumEntries(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (int64, int64, int64, error) {
	var row struct {
		Total   int64 `gorm:"column:total"`
		Entries int64 `gorm:"column:entries"`
		LastSeq int64 `gorm:"column:last_seq"`
	}
	err := db.WithContext(ctx).Raw(
		`SELECT
			COALESCE(SUM(CASE direction WHEN 'debit' THEN -amount_credits ELSE amount_credits END), 0) AS total,
			COUNT(1) AS entries,
			COALESCE(MAX(sequence), 0) AS last_seq
		 FROM ledger_entries
		 WHERE tenant_id = ?`,
		tenantID,
	).Scan(&row).Error
	if err != nil {
		return 0, 0, 0, err
	}
	return row.Total, row.Entries, row.LastSeq, nil
}
