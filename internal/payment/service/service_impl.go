package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/credits/internal/clock"
	"github.com/smallbiznis/credits/internal/config"
	obsmetrics "github.com/smallbiznis/credits/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/credits/internal/payment/domain"
	rechargedomain "github.com/smallbiznis/credits/internal/recharge/domain"
	walletdomain "github.com/smallbiznis/credits/internal/wallet/domain"
	"github.com/smallbiznis/credits/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       paymentdomain.Repository
	Wallet     walletdomain.Service
	Customers  paymentdomain.CustomerService
	Policy     *config.PolicyHolder
	Recharge   rechargedomain.Service `optional:"true"`
	Clock      clock.Clock            `optional:"true"`
	ObsMetrics *obsmetrics.Metrics    `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       paymentdomain.Repository
	wallet     walletdomain.Service
	customers  paymentdomain.CustomerService
	policy     *config.PolicyHolder
	recharge   rechargedomain.Service
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.EventService {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		wallet:     p.Wallet,
		customers:  p.Customers,
		policy:     p.Policy,
		recharge:   p.Recharge,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
	}
}

// HandleEvent records the delivery and applies it at most once. A failed
// application leaves the record unprocessed so the provider's redelivery
// runs it again.
func (s *Service) HandleEvent(ctx context.Context, event *paymentdomain.PaymentEvent) (paymentdomain.Outcome, error) {
	if err := validateEvent(event); err != nil {
		return "", err
	}

	payload := event.RawPayload
	if len(payload) == 0 || !json.Valid(payload) {
		payload = []byte("{}")
	}

	now := s.clock.Now().UTC()
	received := paymentdomain.EventRecord{
		ID:               s.genID.Generate(),
		Provider:         event.Provider,
		ProviderEventID:  event.EventID,
		EventType:        event.EventType,
		CustomerRef:      event.CustomerRef,
		AmountMinorUnits: event.AmountMinorUnits,
		Payload:          datatypes.JSON(payload),
		ReceivedAt:       now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return "", db.WrapStorage("insert payment event", err)
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, event.Provider, event.EventID)
		if err != nil {
			return "", db.WrapStorage("find payment event", err)
		}
		if stored == nil {
			return "", paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			s.log.Info("payment event redelivered",
				zap.String("provider", event.Provider),
				zap.String("event_id", event.EventID),
			)
			s.obsMetrics.RecordPaymentEvent(ctx, event.Provider, event.EventType, string(paymentdomain.OutcomeSkipped))
			return paymentdomain.OutcomeSkipped, nil
		}
	}

	outcome, tenantID, err := s.apply(ctx, event)
	if err != nil {
		s.log.Warn("payment event not applied",
			zap.String("provider", event.Provider),
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
		return "", err
	}

	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, tenantID, outcome, s.clock.Now().UTC()); err != nil {
		return "", db.WrapStorage("mark payment event", err)
	}

	s.obsMetrics.RecordPaymentEvent(ctx, event.Provider, event.EventType, string(outcome))
	return outcome, nil
}

// ShouldProcess reports whether no purchase entry exists yet for sourceRef.
// Refunds or adjustments that reuse the reference do not count.
func (s *Service) ShouldProcess(ctx context.Context, tenantID snowflake.ID, sourceRef string) (bool, error) {
	sourceRef = strings.TrimSpace(sourceRef)
	if tenantID == 0 {
		return false, paymentdomain.ErrInvalidTenant
	}
	if sourceRef == "" {
		return false, paymentdomain.ErrInvalidEvent
	}
	entry, err := s.wallet.FindBySource(ctx, tenantID, walletdomain.SourceTypePurchase, sourceRef)
	if err != nil {
		return false, err
	}
	return entry == nil, nil
}

func validateEvent(event *paymentdomain.PaymentEvent) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	if event.Provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	event.EventID = strings.TrimSpace(event.EventID)
	event.EventType = strings.TrimSpace(event.EventType)
	if event.EventID == "" || event.EventType == "" {
		return paymentdomain.ErrInvalidEvent
	}
	event.CustomerRef = strings.TrimSpace(event.CustomerRef)
	return nil
}

func (s *Service) apply(ctx context.Context, event *paymentdomain.PaymentEvent) (paymentdomain.Outcome, *snowflake.ID, error) {
	switch event.EventType {
	case paymentdomain.EventTypePaymentSucceeded:
		return s.applyPayment(ctx, event)
	case paymentdomain.EventTypePaymentFailed:
		return s.applyFailure(ctx, event)
	default:
		return paymentdomain.OutcomeIgnored, nil, nil
	}
}

func (s *Service) applyPayment(ctx context.Context, event *paymentdomain.PaymentEvent) (paymentdomain.Outcome, *snowflake.ID, error) {
	if event.AmountMinorUnits <= 0 {
		return "", nil, paymentdomain.ErrInvalidAmount
	}
	tenantID, err := s.resolveTenant(ctx, event)
	if err != nil {
		return "", nil, err
	}

	process, err := s.ShouldProcess(ctx, tenantID, event.EventID)
	if err != nil {
		return "", nil, err
	}
	if !process {
		// the credit landed on an earlier delivery; make sure the attempt caught up
		existing, err := s.wallet.FindBySource(ctx, tenantID, walletdomain.SourceTypePurchase, event.EventID)
		if err != nil {
			return "", nil, err
		}
		if existing != nil {
			if err := s.confirmAttempt(ctx, event, existing.ID); err != nil {
				return "", nil, err
			}
		}
		return paymentdomain.OutcomeSkipped, &tenantID, nil
	}

	credits := event.AmountMinorUnits * s.policy.Get().CreditsPerMinorUnit
	meta := map[string]any{
		"provider":    event.Provider,
		"payment_ref": event.PaymentRef,
		"currency":    event.Currency,
	}
	if attemptID := event.Metadata[paymentdomain.MetadataAttemptID]; attemptID != "" {
		meta["attempt_id"] = attemptID
	}

	result, err := s.wallet.Credit(ctx, walletdomain.CreditRequest{
		TenantID:      tenantID,
		AmountCredits: credits,
		SourceType:    walletdomain.SourceTypePurchase,
		SourceRef:     event.EventID,
		Description:   "Credit purchase",
		Meta:          meta,
	})
	if err != nil {
		return "", nil, err
	}

	if err := s.confirmAttempt(ctx, event, result.Entry.ID); err != nil {
		return "", nil, err
	}
	if result.Replayed {
		return paymentdomain.OutcomeSkipped, &tenantID, nil
	}

	s.log.Info("credits purchased",
		zap.String("tenant_id", tenantID.String()),
		zap.String("event_id", event.EventID),
		zap.Int64("amount_credits", credits),
		zap.String("entry_id", result.Entry.ID.String()),
	)
	return paymentdomain.OutcomeProcessed, &tenantID, nil
}

func (s *Service) applyFailure(ctx context.Context, event *paymentdomain.PaymentEvent) (paymentdomain.Outcome, *snowflake.ID, error) {
	attemptID, ok := attemptFromMetadata(event.Metadata)
	if !ok || s.recharge == nil {
		return paymentdomain.OutcomeIgnored, nil, nil
	}

	attempt, err := s.recharge.FailConfirmation(ctx, rechargedomain.FailConfirmationRequest{
		AttemptID: attemptID,
		Message:   event.FailureMessage,
	})
	if err != nil {
		if errors.Is(err, rechargedomain.ErrAttemptNotFound) || errors.Is(err, rechargedomain.ErrAttemptState) {
			s.log.Info("payment failure without open attempt",
				zap.String("event_id", event.EventID),
				zap.String("attempt_id", attemptID.String()),
				zap.Error(err),
			)
			return paymentdomain.OutcomeIgnored, nil, nil
		}
		return "", nil, err
	}
	return paymentdomain.OutcomeProcessed, &attempt.TenantID, nil
}

func (s *Service) confirmAttempt(ctx context.Context, event *paymentdomain.PaymentEvent, entryID snowflake.ID) error {
	attemptID, ok := attemptFromMetadata(event.Metadata)
	if !ok || s.recharge == nil {
		return nil
	}
	_, err := s.recharge.Confirm(ctx, rechargedomain.ConfirmRequest{
		AttemptID:         attemptID,
		ProcessorChargeID: event.PaymentRef,
		LedgerEntryID:     entryID,
	})
	if errors.Is(err, rechargedomain.ErrAttemptNotFound) || errors.Is(err, rechargedomain.ErrAttemptState) {
		s.log.Warn("recharge attempt not confirmable",
			zap.String("event_id", event.EventID),
			zap.String("attempt_id", attemptID.String()),
			zap.Error(err),
		)
		return nil
	}
	return err
}

func (s *Service) resolveTenant(ctx context.Context, event *paymentdomain.PaymentEvent) (snowflake.ID, error) {
	if raw := strings.TrimSpace(event.Metadata[paymentdomain.MetadataTenantID]); raw != "" {
		tenantID, err := snowflake.ParseString(raw)
		if err == nil && tenantID != 0 {
			return tenantID, nil
		}
		s.log.Warn("payment event carries malformed tenant metadata",
			zap.String("event_id", event.EventID),
			zap.String("tenant_id", raw),
		)
	}
	return s.customers.ResolveTenant(ctx, event.Provider, event.CustomerRef)
}

func attemptFromMetadata(metadata map[string]string) (snowflake.ID, bool) {
	raw := strings.TrimSpace(metadata[paymentdomain.MetadataAttemptID])
	if raw == "" {
		return 0, false
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
