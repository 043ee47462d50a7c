// Package testutil provides an in-memory database carrying the credits
// schema, for package tests that exercise raw SQL repositories.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// schema is the sqlite rendition of internal/migration/sql/*.up.sql. Table,
// column and unique index names must stay in step with those files;
// TestSQLiteSchemaMatchesMigrations in internal/migration fails when they
// drift.
var schema = []string{
	`CREATE TABLE wallets (
		tenant_id BIGINT PRIMARY KEY,
		balance_credits BIGINT NOT NULL DEFAULT 0,
		overdraft_percent TEXT NOT NULL DEFAULT '0',
		low_balance_threshold_credits BIGINT NOT NULL DEFAULT 0,
		hard_stop_active BOOLEAN NOT NULL DEFAULT FALSE,
		notify_low_balance BOOLEAN NOT NULL DEFAULT FALSE,
		notify_hard_stop BOOLEAN NOT NULL DEFAULT FALSE,
		version BIGINT NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE ledger_entries (
		id BIGINT PRIMARY KEY,
		tenant_id BIGINT NOT NULL,
		sequence BIGINT NOT NULL,
		direction TEXT NOT NULL,
		amount_credits BIGINT NOT NULL,
		balance_after BIGINT NOT NULL,
		source_type TEXT NOT NULL,
		source_ref TEXT,
		description TEXT NOT NULL DEFAULT '',
		meta TEXT,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_ledger_entries_tenant_seq ON ledger_entries(tenant_id, sequence)`,
	`CREATE UNIQUE INDEX ux_ledger_entries_source ON ledger_entries(tenant_id, source_type, source_ref) WHERE source_ref IS NOT NULL`,
	`CREATE TABLE auto_recharge_configs (
		id BIGINT PRIMARY KEY,
		tenant_id BIGINT NOT NULL UNIQUE,
		is_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		threshold_credits BIGINT NOT NULL,
		recharge_amount_cents BIGINT NOT NULL,
		stripe_payment_method_id TEXT NOT NULL DEFAULT '',
		card_last4 TEXT NOT NULL DEFAULT '',
		card_brand TEXT NOT NULL DEFAULT '',
		last_triggered_at DATETIME,
		last_error TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE recharge_attempts (
		id BIGINT PRIMARY KEY,
		tenant_id BIGINT NOT NULL,
		config_id BIGINT NOT NULL,
		state TEXT NOT NULL,
		amount_cents BIGINT NOT NULL,
		currency TEXT NOT NULL,
		idempotency_key TEXT NOT NULL,
		lock_token TEXT NOT NULL DEFAULT '',
		processor_charge_id TEXT,
		error TEXT,
		claimed_at DATETIME,
		completed_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE INDEX ix_recharge_attempts_state ON recharge_attempts(state, created_at)`,
	`CREATE TABLE recharge_locks (
		lock_key TEXT PRIMARY KEY,
		token TEXT NOT NULL,
		expires_at DATETIME NOT NULL
	)`,
	`CREATE TABLE payment_customers (
		tenant_id BIGINT NOT NULL,
		provider TEXT NOT NULL,
		customer_ref TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (tenant_id, provider)
	)`,
	`CREATE UNIQUE INDEX ux_payment_customers_ref ON payment_customers(provider, customer_ref)`,
	`CREATE TABLE payment_events (
		id BIGINT PRIMARY KEY,
		tenant_id BIGINT,
		provider TEXT NOT NULL,
		provider_event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		customer_ref TEXT NOT NULL DEFAULT '',
		amount_minor_units BIGINT NOT NULL DEFAULT 0,
		payload TEXT NOT NULL,
		outcome TEXT,
		received_at DATETIME NOT NULL,
		processed_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_payment_events_provider_event_id ON payment_events(provider, provider_event_id)`,
}

// Schema returns the statements OpenDB runs.
func Schema() []string {
	return append([]string(nil), schema...)
}

// OpenDB returns a fresh shared-cache in-memory database with every credits
// table created. A single connection serializes transactions.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 logger.Discard,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

// Count runs a COUNT query and returns its value.
func Count(t testing.TB, db *gorm.DB, query string, args ...any) int64 {
	t.Helper()

	var count int64
	if err := db.Raw(query, args...).Scan(&count).Error; err != nil {
		t.Fatalf("count query: %v", err)
	}
	return count
}
