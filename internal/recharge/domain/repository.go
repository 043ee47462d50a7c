package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertAttempt(ctx context.Context, db *gorm.DB, attempt *Attempt) error
	FindAttempt(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Attempt, error)
	FindOpenAttempt(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*Attempt, error)
	ListAttempts(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, limit int) ([]Attempt, error)
	ListClaimable(ctx context.Context, db *gorm.DB, limit int) ([]Attempt, error)
	ListStale(ctx context.Context, db *gorm.DB, claimedBefore time.Time, limit int) ([]Attempt, error)
	ClaimAttempt(ctx context.Context, db *gorm.DB, id snowflake.ID, claimedAt time.Time) (bool, error)
	TransitionAttempt(ctx context.Context, db *gorm.DB, t Transition) (bool, error)
}
