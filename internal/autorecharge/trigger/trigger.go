// Package trigger decides after each debit whether the tenant's balance
// warrants an automatic recharge and hands accepted decisions to the
// recharge queue.
package trigger

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/credits/internal/autorecharge/domain"
	"github.com/smallbiznis/credits/internal/clock"
	"github.com/smallbiznis/credits/internal/config"
	"github.com/smallbiznis/credits/internal/lock"
	obsmetrics "github.com/smallbiznis/credits/internal/observability/metrics"
	rechargedomain "github.com/smallbiznis/credits/internal/recharge/domain"
	"github.com/smallbiznis/credits/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Repo       domain.Repository
	Locker     lock.Locker
	Queue      rechargedomain.Enqueuer
	Policy     *config.PolicyHolder
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Trigger struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       domain.Repository
	locker     lock.Locker
	queue      rechargedomain.Enqueuer
	policy     *config.PolicyHolder
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) *Trigger {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Trigger{
		db:         p.DB,
		log:        p.Log.Named("autorecharge.trigger"),
		repo:       p.Repo,
		locker:     p.Locker,
		queue:      p.Queue,
		policy:     p.Policy,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
	}
}

// Evaluate never writes the config row. The lock taken here travels with
// the queued attempt and is released once the charge request resolves.
func (t *Trigger) Evaluate(ctx context.Context, tenantID snowflake.ID, currentBalance int64) (*domain.Decision, error) {
	decision, err := t.evaluate(ctx, tenantID, currentBalance)
	if err != nil {
		return nil, err
	}
	t.obsMetrics.RecordRechargeDecision(ctx, string(decision.Reason))
	return decision, nil
}

func (t *Trigger) evaluate(ctx context.Context, tenantID snowflake.ID, currentBalance int64) (*domain.Decision, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}

	cfg, err := t.repo.FindByTenant(ctx, t.db, tenantID)
	if err != nil {
		return nil, db.WrapStorage("find auto-recharge config", err)
	}
	if cfg == nil || !cfg.IsEnabled {
		return skip(domain.ReasonDisabled), nil
	}
	if currentBalance > cfg.ThresholdCredits {
		return skip(domain.ReasonAboveThreshold), nil
	}

	policy := t.policy.Get()
	now := t.clock.Now()
	if cfg.LastTriggeredAt != nil && now.Sub(*cfg.LastTriggeredAt) < policy.CooldownWindow {
		return skip(domain.ReasonCooldown), nil
	}

	key := lock.RechargeKey(tenantID)
	token, ok, err := t.locker.TryLock(ctx, key, policy.LockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return skip(domain.ReasonInFlight), nil
	}

	attempt, err := t.queue.Enqueue(ctx, rechargedomain.EnqueueRequest{
		TenantID:    tenantID,
		ConfigID:    cfg.ID,
		AmountCents: cfg.RechargeAmountCents,
		LockToken:   token,
	})
	if err != nil {
		if releaseErr := t.locker.Release(ctx, key, token); releaseErr != nil {
			t.log.Warn("release recharge lock", zap.String("tenant_id", tenantID.String()), zap.Error(releaseErr))
		}
		if errors.Is(err, rechargedomain.ErrAttemptInFlight) {
			return skip(domain.ReasonInFlight), nil
		}
		return nil, err
	}

	t.log.Info("auto-recharge triggered",
		zap.String("tenant_id", tenantID.String()),
		zap.String("attempt_id", attempt.ID.String()),
		zap.Int64("balance_credits", currentBalance),
		zap.Int64("threshold_credits", cfg.ThresholdCredits),
	)
	return &domain.Decision{
		Triggered: true,
		Reason:    domain.ReasonTriggered,
		AttemptID: &attempt.ID,
	}, nil
}

// AfterDebit runs the trigger for a committed debit.
func (t *Trigger) AfterDebit(ctx context.Context, tenantID snowflake.ID, balanceCredits int64) error {
	decision, err := t.Evaluate(ctx, tenantID, balanceCredits)
	if err != nil {
		return err
	}
	t.log.Debug("auto-recharge evaluated",
		zap.String("tenant_id", tenantID.String()),
		zap.String("reason", string(decision.Reason)),
	)
	return nil
}

func skip(reason domain.Reason) *domain.Decision {
	return &domain.Decision{Reason: reason}
}
