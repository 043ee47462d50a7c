package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*EventRecord, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, tenantID *snowflake.ID, outcome Outcome, processedAt time.Time) error

	InsertCustomer(ctx context.Context, db *gorm.DB, customer *Customer) (bool, error)
	FindCustomer(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, provider string) (*Customer, error)
	FindCustomerByRef(ctx context.Context, db *gorm.DB, provider string, customerRef string) (*Customer, error)
}
