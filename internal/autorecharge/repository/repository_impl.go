package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/credits/internal/autorecharge/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*domain.Config, error) {
	var item domain.Config
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, is_enabled, threshold_credits, recharge_amount_cents,
			stripe_payment_method_id, card_last4, card_brand, last_triggered_at,
			last_error, created_at, updated_at
		 FROM auto_recharge_configs
		 WHERE tenant_id = ?
		 LIMIT 1`,
		tenantID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

// Upsert writes the tenant-editable columns. Trigger bookkeeping
// (last_triggered_at, last_error) survives an update.
func (r *repo) Upsert(ctx context.Context, db *gorm.DB, cfg *domain.Config) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO auto_recharge_configs (
			id, tenant_id, is_enabled, threshold_credits, recharge_amount_cents,
			stripe_payment_method_id, card_last4, card_brand, last_triggered_at,
			last_error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id) DO UPDATE SET
			is_enabled = excluded.is_enabled,
			threshold_credits = excluded.threshold_credits,
			recharge_amount_cents = excluded.recharge_amount_cents,
			stripe_payment_method_id = excluded.stripe_payment_method_id,
			card_last4 = excluded.card_last4,
			card_brand = excluded.card_brand,
			updated_at = excluded.updated_at`,
		cfg.ID,
		cfg.TenantID,
		cfg.IsEnabled,
		cfg.ThresholdCredits,
		cfg.RechargeAmountCents,
		cfg.StripePaymentMethodID,
		cfg.CardLast4,
		cfg.CardBrand,
		cfg.LastTriggeredAt,
		cfg.LastError,
		cfg.CreatedAt,
		cfg.UpdatedAt,
	).Error
}

func (r *repo) Disable(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, updatedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE auto_recharge_configs
		 SET is_enabled = ?, updated_at = ?
		 WHERE tenant_id = ?`,
		false,
		updatedAt,
		tenantID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) RecordSuccess(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, triggeredAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE auto_recharge_configs
		 SET last_triggered_at = ?, last_error = NULL, updated_at = ?
		 WHERE tenant_id = ?`,
		triggeredAt,
		triggeredAt,
		tenantID,
	).Error
}

func (r *repo) RecordError(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, message string, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE auto_recharge_configs
		 SET last_error = ?, updated_at = ?
		 WHERE tenant_id = ?`,
		message,
		updatedAt,
		tenantID,
	).Error
}
