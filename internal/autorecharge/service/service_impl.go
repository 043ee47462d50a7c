package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/credits/internal/autorecharge/domain"
	"github.com/smallbiznis/credits/internal/clock"
	"github.com/smallbiznis/credits/internal/config"
	"github.com/smallbiznis/credits/internal/payment/processor"
	"github.com/smallbiznis/credits/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// last_error is shown to operators; keep it short.
const maxErrorLength = 500

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      domain.Repository
	Policy    *config.PolicyHolder
	Processor processor.Processor
	Clock     clock.Clock `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	policy    *config.PolicyHolder
	processor processor.Processor
	clock     clock.Clock
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("autorecharge.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		policy:    p.Policy,
		processor: p.Processor,
		clock:     clk,
	}
}

func (s *Service) GetConfig(ctx context.Context, tenantID snowflake.ID) (*domain.Config, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	cfg, err := s.repo.FindByTenant(ctx, s.db, tenantID)
	if err != nil {
		return nil, db.WrapStorage("find auto-recharge config", err)
	}
	if cfg == nil {
		return nil, domain.ErrConfigNotFound
	}
	return cfg, nil
}

func (s *Service) UpsertConfig(ctx context.Context, req domain.UpsertRequest) (*domain.Config, error) {
	if req.TenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	if req.ThresholdCredits < 0 {
		return nil, domain.ErrInvalidThreshold
	}
	if req.RechargeAmountCents <= 0 || req.RechargeAmountCents < s.policy.Get().MinRechargeAmountCents {
		return nil, domain.ErrInvalidRechargeAmount
	}
	req.StripePaymentMethodID = strings.TrimSpace(req.StripePaymentMethodID)
	if req.IsEnabled && req.StripePaymentMethodID == "" {
		return nil, domain.ErrPaymentMethodRequired
	}

	existing, err := s.repo.FindByTenant(ctx, s.db, req.TenantID)
	if err != nil {
		return nil, db.WrapStorage("find auto-recharge config", err)
	}

	now := s.clock.Now().UTC()
	cfg := &domain.Config{
		ID:                    s.genID.Generate(),
		TenantID:              req.TenantID,
		IsEnabled:             req.IsEnabled,
		ThresholdCredits:      req.ThresholdCredits,
		RechargeAmountCents:   req.RechargeAmountCents,
		StripePaymentMethodID: req.StripePaymentMethodID,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if existing != nil {
		cfg.ID = existing.ID
		cfg.CreatedAt = existing.CreatedAt
		cfg.LastTriggeredAt = existing.LastTriggeredAt
		cfg.LastError = existing.LastError
		if existing.StripePaymentMethodID == cfg.StripePaymentMethodID {
			cfg.CardBrand = existing.CardBrand
			cfg.CardLast4 = existing.CardLast4
		}
	}

	if cfg.StripePaymentMethodID != "" && cfg.CardLast4 == "" {
		if err := s.describeCard(ctx, cfg); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Upsert(ctx, s.db, cfg); err != nil {
		return nil, db.WrapStorage("upsert auto-recharge config", err)
	}

	s.log.Info("auto-recharge config saved",
		zap.String("tenant_id", req.TenantID.String()),
		zap.Bool("is_enabled", cfg.IsEnabled),
		zap.Int64("threshold_credits", cfg.ThresholdCredits),
		zap.Int64("recharge_amount_cents", cfg.RechargeAmountCents),
	)
	return s.GetConfig(ctx, req.TenantID)
}

// describeCard fills the display fields. Without processor credentials the
// config is still saved, just without them.
func (s *Service) describeCard(ctx context.Context, cfg *domain.Config) error {
	if s.processor == nil {
		return nil
	}
	method, err := s.processor.DescribePaymentMethod(ctx, cfg.StripePaymentMethodID)
	if err != nil {
		if errors.Is(err, processor.ErrNotConfigured) {
			s.log.Warn("payment method details unavailable", zap.String("tenant_id", cfg.TenantID.String()))
			return nil
		}
		return err
	}
	cfg.CardBrand = method.Brand
	cfg.CardLast4 = method.Last4
	return nil
}

func (s *Service) DisableAutoRecharge(ctx context.Context, tenantID snowflake.ID) (*domain.Config, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	updated, err := s.repo.Disable(ctx, s.db, tenantID, s.clock.Now().UTC())
	if err != nil {
		return nil, db.WrapStorage("disable auto-recharge config", err)
	}
	if !updated {
		return nil, domain.ErrConfigNotFound
	}
	s.log.Info("auto-recharge disabled", zap.String("tenant_id", tenantID.String()))
	return s.GetConfig(ctx, tenantID)
}

func (s *Service) RecordSuccess(ctx context.Context, tenantID snowflake.ID) error {
	if err := s.repo.RecordSuccess(ctx, s.db, tenantID, s.clock.Now().UTC()); err != nil {
		return db.WrapStorage("record recharge success", err)
	}
	return nil
}

func (s *Service) RecordError(ctx context.Context, tenantID snowflake.ID, message string) error {
	message = strings.TrimSpace(message)
	if len(message) > maxErrorLength {
		message = message[:maxErrorLength]
	}
	if err := s.repo.RecordError(ctx, s.db, tenantID, message, s.clock.Now().UTC()); err != nil {
		return db.WrapStorage("record recharge error", err)
	}
	return nil
}
