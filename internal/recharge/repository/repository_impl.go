package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/credits/internal/recharge/domain"
	"gorm.io/gorm"
)

const attemptColumns = `id, tenant_id, config_id, state, amount_cents, currency,
	idempotency_key, lock_token, processor_charge_id, error, claimed_at,
	completed_at, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertAttempt(ctx context.Context, db *gorm.DB, attempt *domain.Attempt) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO recharge_attempts (`+attemptColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.ID,
		attempt.TenantID,
		attempt.ConfigID,
		string(attempt.State),
		attempt.AmountCents,
		attempt.Currency,
		attempt.IdempotencyKey,
		attempt.LockToken,
		attempt.ProcessorChargeID,
		attempt.Error,
		attempt.ClaimedAt,
		attempt.CompletedAt,
		attempt.CreatedAt,
		attempt.UpdatedAt,
	).Error
}

func (r *repo) FindAttempt(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Attempt, error) {
	var item domain.Attempt
	err := db.WithContext(ctx).Raw(
		`SELECT `+attemptColumns+`
		 FROM recharge_attempts
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindOpenAttempt(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*domain.Attempt, error) {
	var item domain.Attempt
	err := db.WithContext(ctx).Raw(
		`SELECT `+attemptColumns+`
		 FROM recharge_attempts
		 WHERE tenant_id = ? AND state = ?
		 ORDER BY created_at DESC
		 LIMIT 1`,
		tenantID,
		string(domain.StateChargeRequested),
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListAttempts(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, limit int) ([]domain.Attempt, error) {
	var items []domain.Attempt
	err := db.WithContext(ctx).Raw(
		`SELECT `+attemptColumns+`
		 FROM recharge_attempts
		 WHERE tenant_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		tenantID,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListClaimable(ctx context.Context, db *gorm.DB, limit int) ([]domain.Attempt, error) {
	var items []domain.Attempt
	err := db.WithContext(ctx).Raw(
		`SELECT `+attemptColumns+`
		 FROM recharge_attempts
		 WHERE state = ? AND claimed_at IS NULL
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		string(domain.StateChargeRequested),
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListStale(ctx context.Context, db *gorm.DB, claimedBefore time.Time, limit int) ([]domain.Attempt, error) {
	var items []domain.Attempt
	err := db.WithContext(ctx).Raw(
		`SELECT `+attemptColumns+`
		 FROM recharge_attempts
		 WHERE state = ? AND claimed_at IS NOT NULL AND claimed_at <= ?
		 ORDER BY claimed_at ASC
		 LIMIT ?`,
		string(domain.StateChargeRequested),
		claimedBefore,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ClaimAttempt reports false when another worker claimed the row first.
func (r *repo) ClaimAttempt(ctx context.Context, db *gorm.DB, id snowflake.ID, claimedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE recharge_attempts
		 SET claimed_at = ?, updated_at = ?
		 WHERE id = ? AND state = ? AND claimed_at IS NULL`,
		claimedAt,
		claimedAt,
		id,
		string(domain.StateChargeRequested),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) TransitionAttempt(ctx context.Context, db *gorm.DB, t domain.Transition) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE recharge_attempts
		 SET state = ?,
			processor_charge_id = COALESCE(?, processor_charge_id),
			error = COALESCE(?, error),
			completed_at = COALESCE(?, completed_at),
			updated_at = ?
		 WHERE id = ? AND state = ?`,
		string(t.To),
		t.ProcessorChargeID,
		t.Error,
		t.CompletedAt,
		t.UpdatedAt,
		t.AttemptID,
		string(t.From),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
