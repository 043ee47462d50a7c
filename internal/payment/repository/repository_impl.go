package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/credits/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, provider, provider_event_id, event_type, customer_ref,
			amount_minor_units, payload, outcome, received_at, processed_at
		 FROM payment_events
		 WHERE provider = ? AND provider_event_id = ?
		 LIMIT 1`,
		provider,
		providerEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_events (
			id, tenant_id, provider, provider_event_id, event_type, customer_ref,
			amount_minor_units, payload, outcome, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		event.ID,
		event.TenantID,
		event.Provider,
		event.ProviderEventID,
		event.EventType,
		event.CustomerRef,
		event.AmountMinorUnits,
		event.Payload,
		event.Outcome,
		event.ReceivedAt,
		event.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, tenantID *snowflake.ID, outcome domain.Outcome, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events
		 SET processed_at = ?, outcome = ?, tenant_id = COALESCE(?, tenant_id)
		 WHERE id = ?`,
		processedAt,
		string(outcome),
		tenantID,
		id,
	).Error
}

func (r *repo) InsertCustomer(ctx context.Context, db *gorm.DB, customer *domain.Customer) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_customers (tenant_id, provider, customer_ref, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (tenant_id, provider) DO NOTHING`,
		customer.TenantID,
		customer.Provider,
		customer.CustomerRef,
		customer.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindCustomer(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, provider string) (*domain.Customer, error) {
	var item domain.Customer
	err := db.WithContext(ctx).Raw(
		`SELECT tenant_id, provider, customer_ref, created_at
		 FROM payment_customers
		 WHERE tenant_id = ? AND provider = ?
		 LIMIT 1`,
		tenantID,
		provider,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.TenantID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindCustomerByRef(ctx context.Context, db *gorm.DB, provider string, customerRef string) (*domain.Customer, error) {
	var item domain.Customer
	err := db.WithContext(ctx).Raw(
		`SELECT tenant_id, provider, customer_ref, created_at
		 FROM payment_customers
		 WHERE provider = ? AND customer_ref = ?
		 LIMIT 1`,
		provider,
		customerRef,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.TenantID == 0 {
		return nil, nil
	}
	return &item, nil
}
