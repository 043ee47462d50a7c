// Package worker drains the recharge queue: it claims charge_requested
// attempts and runs the orchestrator on each one.
package worker

import (
	"context"
	"time"

	"github.com/smallbiznis/credits/internal/config"
	"github.com/smallbiznis/credits/internal/recharge/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultBatchSize    = 25
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Recharge domain.Service
	Policy   *config.PolicyHolder
}

type Worker struct {
	log      *zap.Logger
	recharge domain.Service
	policy   *config.PolicyHolder
}

func NewWorker(p Params) *Worker {
	return &Worker{
		log:      p.Log.Named("recharge.worker"),
		recharge: p.Recharge,
		policy:   p.Policy,
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	for {
		if _, err := w.RunOnce(ctx); err != nil {
			w.log.Warn("recharge worker run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.pollInterval()):
		}
	}
}

// RunOnce fails stale claims, then triggers one batch of queued attempts.
// It returns how many charges were accepted by the processor.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	if _, err := w.recharge.RecoverStale(ctx); err != nil {
		w.log.Warn("recover stale recharge attempts", zap.Error(err))
	}

	attempts, err := w.recharge.ClaimPending(ctx, w.batchSize())
	if err != nil {
		return 0, err
	}

	started := 0
	for _, attempt := range attempts {
		result, err := w.recharge.Trigger(ctx, domain.TriggerRequest{AttemptID: attempt.ID})
		if err != nil {
			w.log.Warn("recharge trigger failed",
				zap.String("attempt_id", attempt.ID.String()),
				zap.String("tenant_id", attempt.TenantID.String()),
				zap.Error(err),
			)
			continue
		}
		if !result.Started {
			w.log.Info("recharge not started",
				zap.String("attempt_id", attempt.ID.String()),
				zap.String("tenant_id", attempt.TenantID.String()),
				zap.Error(result.Err),
			)
			continue
		}
		started++
	}
	return started, nil
}

func (w *Worker) pollInterval() time.Duration {
	if interval := w.policy.Get().WorkerPollInterval; interval > 0 {
		return interval
	}
	return defaultPollInterval
}

func (w *Worker) batchSize() int {
	if size := w.policy.Get().WorkerBatchSize; size > 0 {
		return size
	}
	return defaultBatchSize
}
