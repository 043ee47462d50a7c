package domain

import (
	"context"
)

// Enqueuer is the narrow capability the auto-recharge trigger needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, req EnqueueRequest) (*Attempt, error)
}

type Service interface {
	Enqueuer
	Trigger(ctx context.Context, req TriggerRequest) (*TriggerResult, error)
	Confirm(ctx context.Context, req ConfirmRequest) (*Attempt, error)
	FailConfirmation(ctx context.Context, req FailConfirmationRequest) (*Attempt, error)
	ClaimPending(ctx context.Context, limit int) ([]Attempt, error)
	RecoverStale(ctx context.Context) (int, error)
	ListAttempts(ctx context.Context, req ListAttemptsRequest) ([]Attempt, error)
}
