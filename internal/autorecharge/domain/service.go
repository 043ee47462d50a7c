package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	GetConfig(ctx context.Context, tenantID snowflake.ID) (*Config, error)
	UpsertConfig(ctx context.Context, req UpsertRequest) (*Config, error)
	DisableAutoRecharge(ctx context.Context, tenantID snowflake.ID) (*Config, error)
	RecordSuccess(ctx context.Context, tenantID snowflake.ID) error
	RecordError(ctx context.Context, tenantID snowflake.ID, message string) error
}

// Trigger decides, after a debit, whether a recharge should start.
type Trigger interface {
	Evaluate(ctx context.Context, tenantID snowflake.ID, currentBalance int64) (*Decision, error)
}
