package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*Config, error)
	Upsert(ctx context.Context, db *gorm.DB, cfg *Config) error
	Disable(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, updatedAt time.Time) (bool, error)
	RecordSuccess(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, triggeredAt time.Time) error
	RecordError(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, message string, updatedAt time.Time) error
}
