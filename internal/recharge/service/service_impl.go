package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	autorechargedomain "github.com/smallbiznis/credits/internal/autorecharge/domain"
	"github.com/smallbiznis/credits/internal/clock"
	"github.com/smallbiznis/credits/internal/config"
	"github.com/smallbiznis/credits/internal/lock"
	obsmetrics "github.com/smallbiznis/credits/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/credits/internal/payment/domain"
	"github.com/smallbiznis/credits/internal/payment/processor"
	"github.com/smallbiznis/credits/internal/recharge/domain"
	"github.com/smallbiznis/credits/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	staleBatchSize   = 100
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Configs    autorechargedomain.Service
	Customers  paymentdomain.CustomerService
	Processor  processor.Processor
	Locker     lock.Locker
	Policy     *config.PolicyHolder
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	configs    autorechargedomain.Service
	customers  paymentdomain.CustomerService
	processor  processor.Processor
	locker     lock.Locker
	policy     *config.PolicyHolder
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("recharge.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		configs:    p.Configs,
		customers:  p.Customers,
		processor:  p.Processor,
		locker:     p.Locker,
		policy:     p.Policy,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Enqueue(ctx context.Context, req domain.EnqueueRequest) (*domain.Attempt, error) {
	if req.TenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	if req.AmountCents <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	open, err := s.repo.FindOpenAttempt(ctx, s.db, req.TenantID)
	if err != nil {
		return nil, db.WrapStorage("find open recharge attempt", err)
	}
	if open != nil {
		return nil, domain.ErrAttemptInFlight
	}

	now := s.clock.Now().UTC()
	attempt := &domain.Attempt{
		ID:             s.genID.Generate(),
		TenantID:       req.TenantID,
		ConfigID:       req.ConfigID,
		State:          domain.StateChargeRequested,
		AmountCents:    req.AmountCents,
		Currency:       strings.ToLower(s.policy.Get().Currency),
		IdempotencyKey: IdempotencyKey(req.TenantID, req.ConfigID, now),
		LockToken:      req.LockToken,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.InsertAttempt(ctx, s.db, attempt); err != nil {
		return nil, db.WrapStorage("insert recharge attempt", err)
	}

	s.obsMetrics.RecordRechargeOutcome(ctx, string(attempt.State))
	return attempt, nil
}

// Trigger requests the charge for a queued attempt. A processor failure is
// reported through TriggerResult, not the error return.
func (s *Service) Trigger(ctx context.Context, req domain.TriggerRequest) (*domain.TriggerResult, error) {
	attempt, err := s.loadAttempt(ctx, req.AttemptID)
	if err != nil {
		return nil, err
	}
	if attempt.State != domain.StateChargeRequested {
		return nil, domain.ErrAttemptState
	}

	cfg, err := s.configs.GetConfig(ctx, attempt.TenantID)
	if err != nil {
		if errors.Is(err, autorechargedomain.ErrConfigNotFound) {
			return s.fail(ctx, attempt, "auto-recharge is not configured")
		}
		return nil, err
	}
	if !cfg.IsEnabled {
		return s.fail(ctx, attempt, "auto-recharge was disabled")
	}

	customerRef, err := s.customers.GetCustomerRef(ctx, attempt.TenantID)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrCustomerNotFound) {
			return s.fail(ctx, attempt, "no payment customer on file")
		}
		return nil, err
	}

	policy := s.policy.Get()
	chargeCtx, cancel := context.WithTimeout(ctx, policy.ProcessorTimeout)
	result, err := s.processor.Charge(chargeCtx, processor.ChargeRequest{
		CustomerRef:      customerRef,
		PaymentMethodRef: cfg.StripePaymentMethodID,
		AmountMinorUnits: attempt.AmountCents,
		Currency:         attempt.Currency,
		IdempotencyKey:   attempt.IdempotencyKey,
		Description:      "Credit auto-recharge",
		Metadata: map[string]string{
			paymentdomain.MetadataTenantID:  attempt.TenantID.String(),
			paymentdomain.MetadataAttemptID: attempt.ID.String(),
			paymentdomain.MetadataConfigID:  attempt.ConfigID.String(),
		},
	})
	timedOut := errors.Is(chargeCtx.Err(), context.DeadlineExceeded)
	cancel()
	if err != nil {
		message := err.Error()
		if timedOut {
			message = "payment processor timed out"
		}
		s.log.Warn("recharge charge failed",
			zap.String("tenant_id", attempt.TenantID.String()),
			zap.String("attempt_id", attempt.ID.String()),
			zap.Error(err),
		)
		return s.fail(ctx, attempt, message)
	}

	// bookkeeping must finish even if the caller gave up meanwhile
	ctx = context.WithoutCancel(ctx)
	now := s.clock.Now().UTC()
	chargeID := result.ChargeID
	moved, err := s.repo.TransitionAttempt(ctx, s.db, domain.Transition{
		AttemptID:         attempt.ID,
		From:              domain.StateChargeRequested,
		To:                domain.StateAwaitingConfirmation,
		ProcessorChargeID: &chargeID,
		UpdatedAt:         now,
	})
	if err != nil {
		return nil, db.WrapStorage("transition recharge attempt", err)
	}
	if !moved {
		s.log.Info("recharge attempt already advanced", zap.String("attempt_id", attempt.ID.String()))
	}
	if err := s.configs.RecordSuccess(ctx, attempt.TenantID); err != nil {
		s.log.Error("record recharge success", zap.String("tenant_id", attempt.TenantID.String()), zap.Error(err))
	}
	s.releaseLock(ctx, attempt)
	s.obsMetrics.RecordRechargeOutcome(ctx, string(domain.StateAwaitingConfirmation))

	s.log.Info("recharge charge requested",
		zap.String("tenant_id", attempt.TenantID.String()),
		zap.String("attempt_id", attempt.ID.String()),
		zap.String("processor_charge_id", chargeID),
		zap.Int64("amount_cents", attempt.AmountCents),
	)
	return &domain.TriggerResult{Started: true, ProcessorChargeID: chargeID}, nil
}

func (s *Service) fail(ctx context.Context, attempt *domain.Attempt, message string) (*domain.TriggerResult, error) {
	ctx = context.WithoutCancel(ctx)
	err := s.failAttempt(ctx, attempt, domain.StateChargeRequested, domain.StateChargeFailed, message)
	s.releaseLock(ctx, attempt)
	if err != nil {
		return nil, err
	}
	return &domain.TriggerResult{
		Started: false,
		Err:     fmt.Errorf("%w: %s", domain.ErrRechargeFailed, message),
	}, nil
}

// failAttempt records a terminal failure on the attempt and the config.
// The config stays enabled; the next threshold crossing starts over.
func (s *Service) failAttempt(ctx context.Context, attempt *domain.Attempt, from, to domain.State, message string) error {
	now := s.clock.Now().UTC()
	moved, err := s.repo.TransitionAttempt(ctx, s.db, domain.Transition{
		AttemptID:   attempt.ID,
		From:        from,
		To:          to,
		Error:       &message,
		CompletedAt: &now,
		UpdatedAt:   now,
	})
	if err != nil {
		return db.WrapStorage("transition recharge attempt", err)
	}
	if !moved {
		return domain.ErrAttemptState
	}
	if err := s.configs.RecordError(ctx, attempt.TenantID, message); err != nil {
		s.log.Error("record recharge error", zap.String("tenant_id", attempt.TenantID.String()), zap.Error(err))
	}
	s.obsMetrics.RecordRechargeOutcome(ctx, string(to))
	return nil
}

func (s *Service) Confirm(ctx context.Context, req domain.ConfirmRequest) (*domain.Attempt, error) {
	attempt, err := s.loadAttempt(ctx, req.AttemptID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	var chargeID *string
	if ref := strings.TrimSpace(req.ProcessorChargeID); ref != "" {
		chargeID = &ref
	}

	switch attempt.State {
	case domain.StateCredited:
		return attempt, nil
	case domain.StateChargeRequested:
		// the webhook beat the synchronous processor response
		if _, err := s.repo.TransitionAttempt(ctx, s.db, domain.Transition{
			AttemptID:         attempt.ID,
			From:              domain.StateChargeRequested,
			To:                domain.StateAwaitingConfirmation,
			ProcessorChargeID: chargeID,
			UpdatedAt:         now,
		}); err != nil {
			return nil, db.WrapStorage("transition recharge attempt", err)
		}
	case domain.StateAwaitingConfirmation:
	default:
		return nil, domain.ErrAttemptState
	}

	moved, err := s.repo.TransitionAttempt(ctx, s.db, domain.Transition{
		AttemptID:         attempt.ID,
		From:              domain.StateAwaitingConfirmation,
		To:                domain.StateCredited,
		ProcessorChargeID: chargeID,
		CompletedAt:       &now,
		UpdatedAt:         now,
	})
	if err != nil {
		return nil, db.WrapStorage("transition recharge attempt", err)
	}
	if !moved {
		return nil, domain.ErrAttemptState
	}

	s.obsMetrics.RecordRechargeOutcome(ctx, string(domain.StateCredited))
	s.log.Info("recharge credited",
		zap.String("tenant_id", attempt.TenantID.String()),
		zap.String("attempt_id", attempt.ID.String()),
		zap.String("entry_id", req.LedgerEntryID.String()),
	)
	return s.loadAttempt(ctx, attempt.ID)
}

func (s *Service) FailConfirmation(ctx context.Context, req domain.FailConfirmationRequest) (*domain.Attempt, error) {
	attempt, err := s.loadAttempt(ctx, req.AttemptID)
	if err != nil {
		return nil, err
	}
	if attempt.State != domain.StateAwaitingConfirmation {
		return nil, domain.ErrAttemptState
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		message = "payment confirmation failed"
	}
	if err := s.failAttempt(ctx, attempt, domain.StateAwaitingConfirmation, domain.StateConfirmationFailed, message); err != nil {
		return nil, err
	}

	s.log.Warn("recharge confirmation failed",
		zap.String("tenant_id", attempt.TenantID.String()),
		zap.String("attempt_id", attempt.ID.String()),
		zap.String("error", message),
	)
	return s.loadAttempt(ctx, attempt.ID)
}

// ClaimPending marks up to limit queued attempts as taken by this caller.
func (s *Service) ClaimPending(ctx context.Context, limit int) ([]domain.Attempt, error) {
	if limit <= 0 {
		limit = s.policy.Get().WorkerBatchSize
	}
	candidates, err := s.repo.ListClaimable(ctx, s.db, limit)
	if err != nil {
		return nil, db.WrapStorage("list claimable recharge attempts", err)
	}

	now := s.clock.Now().UTC()
	claimed := make([]domain.Attempt, 0, len(candidates))
	for _, attempt := range candidates {
		ok, err := s.repo.ClaimAttempt(ctx, s.db, attempt.ID, now)
		if err != nil {
			return claimed, db.WrapStorage("claim recharge attempt", err)
		}
		if !ok {
			continue
		}
		attempt.ClaimedAt = &now
		claimed = append(claimed, attempt)
	}
	return claimed, nil
}

// RecoverStale fails attempts whose worker vanished mid-charge. Nothing is
// retried; the failure is recorded like any other.
func (s *Service) RecoverStale(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().UTC().Add(-s.policy.Get().LockTTL)
	stale, err := s.repo.ListStale(ctx, s.db, cutoff, staleBatchSize)
	if err != nil {
		return 0, db.WrapStorage("list stale recharge attempts", err)
	}

	recovered := 0
	for i := range stale {
		attempt := &stale[i]
		err := s.failAttempt(ctx, attempt, domain.StateChargeRequested, domain.StateChargeFailed, "orchestrator timed out")
		if errors.Is(err, domain.ErrAttemptState) {
			continue
		}
		if err != nil {
			return recovered, err
		}
		s.releaseLock(ctx, attempt)
		recovered++
	}
	if recovered > 0 {
		s.log.Warn("recovered stale recharge attempts", zap.Int("count", recovered))
	}
	return recovered, nil
}

func (s *Service) ListAttempts(ctx context.Context, req domain.ListAttemptsRequest) ([]domain.Attempt, error) {
	if req.TenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	items, err := s.repo.ListAttempts(ctx, s.db, req.TenantID, limit)
	if err != nil {
		return nil, db.WrapStorage("list recharge attempts", err)
	}
	return items, nil
}

func (s *Service) loadAttempt(ctx context.Context, id snowflake.ID) (*domain.Attempt, error) {
	if id == 0 {
		return nil, domain.ErrInvalidAttempt
	}
	attempt, err := s.repo.FindAttempt(ctx, s.db, id)
	if err != nil {
		return nil, db.WrapStorage("find recharge attempt", err)
	}
	if attempt == nil {
		return nil, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *Service) releaseLock(ctx context.Context, attempt *domain.Attempt) {
	if s.locker == nil || attempt.LockToken == "" {
		return
	}
	if err := s.locker.Release(ctx, lock.RechargeKey(attempt.TenantID), attempt.LockToken); err != nil {
		s.log.Warn("release recharge lock",
			zap.String("tenant_id", attempt.TenantID.String()),
			zap.Error(err),
		)
	}
}
