package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/credits/internal/clock"
	"github.com/smallbiznis/credits/internal/config"
	obsmetrics "github.com/smallbiznis/credits/internal/observability/metrics"
	"github.com/smallbiznis/credits/internal/wallet/domain"
	"github.com/smallbiznis/credits/internal/wallet/policy"
	"github.com/smallbiznis/credits/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Policy     *config.PolicyHolder
	Clock      clock.Clock          `optional:"true"`
	Notifier   domain.Notifier      `optional:"true"`
	Observer   domain.DebitObserver `optional:"true"`
	ObsMetrics *obsmetrics.Metrics  `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	policy     *config.PolicyHolder
	clock      clock.Clock
	notifier   domain.Notifier
	observer   domain.DebitObserver
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("wallet.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		policy:     p.Policy,
		clock:      clk,
		notifier:   p.Notifier,
		observer:   p.Observer,
		obsMetrics: p.ObsMetrics,
	}
}

// appendOutcome is what a single committed append transaction decided.
type appendOutcome struct {
	entry    *domain.LedgerEntry
	wallet   domain.Wallet
	replayed bool
	rejected bool
	notices  []domain.NoticeKind
}

func (s *Service) Append(ctx context.Context, req domain.AppendRequest) (*domain.Result, error) {
	req, err := normalizeAppend(req)
	if err != nil {
		return nil, err
	}

	out, err := s.appendWithRetry(ctx, req)
	if err != nil {
		if errors.Is(err, domain.ErrHardStopActive) {
			s.obsMetrics.RecordDebitRejected(ctx, "hard_stop")
		}
		return nil, err
	}

	s.emit(ctx, out.notices, out.wallet)

	if out.rejected {
		s.obsMetrics.RecordDebitRejected(ctx, "insufficient_credits")
		s.log.Info("debit rejected, hard stop activated",
			zap.String("tenant_id", req.TenantID.String()),
			zap.Int64("amount_credits", req.AmountCredits),
			zap.Int64("balance_credits", out.wallet.BalanceCredits),
		)
		return nil, domain.ErrInsufficientCredits
	}

	if out.replayed {
		s.log.Debug("ledger append replayed",
			zap.String("tenant_id", req.TenantID.String()),
			zap.String("source_ref", req.SourceRef),
			zap.String("entry_id", out.entry.ID.String()),
		)
	} else {
		s.obsMetrics.RecordLedgerEntry(ctx, string(out.entry.Direction), string(out.entry.SourceType))
	}

	return &domain.Result{
		Entry:    out.entry,
		Wallet:   toView(out.wallet),
		Replayed: out.replayed,
	}, nil
}

func (s *Service) appendWithRetry(ctx context.Context, req domain.AppendRequest) (*appendOutcome, error) {
	var out *appendOutcome
	op := func() error {
		res, err := s.appendOnce(ctx, req)
		if err != nil {
			if errors.Is(err, domain.ErrConcurrencyConflict) {
				s.obsMetrics.RecordAppendConflict(ctx)
				return err
			}
			return backoff.Permanent(err)
		}
		out = res
		return nil
	}

	if err := backoff.Retry(op, s.retryPolicy(ctx)); err != nil {
		if errors.Is(err, domain.ErrConcurrencyConflict) {
			s.log.Warn("ledger append retries exhausted",
				zap.String("tenant_id", req.TenantID.String()),
				zap.String("direction", string(req.Direction)),
			)
			return nil, fmt.Errorf("%w: wallet write conflict", domain.ErrServiceUnavailable)
		}
		return nil, err
	}
	return out, nil
}

func (s *Service) retryPolicy(ctx context.Context) backoff.BackOffContext {
	retries := s.policy.Get().MaxAppendRetries
	if retries < 0 {
		retries = 0
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// appendOnce runs one read-check-write cycle in a single transaction. The
// wallet row is only written when its version is still the one that was read.
func (s *Service) appendOnce(ctx context.Context, req domain.AppendRequest) (*appendOutcome, error) {
	var out appendOutcome
	now := s.clock.Now().UTC()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindWallet(ctx, tx, req.TenantID)
		if err != nil {
			return db.WrapStorage("find wallet", err)
		}
		if current == nil {
			return domain.ErrWalletNotFound
		}

		if req.SourceRef != "" {
			existing, err := s.repo.FindEntryBySource(ctx, tx, req.TenantID, req.SourceType, req.SourceRef)
			if err != nil {
				return db.WrapStorage("find ledger entry", err)
			}
			if existing != nil {
				out.entry = existing
				out.wallet = *current
				out.replayed = true
				return nil
			}
		}

		next := *current
		next.Version = current.Version + 1
		next.UpdatedAt = now

		var transition policy.Transition
		switch req.Direction {
		case domain.DirectionDebit:
			if current.HardStopActive {
				return domain.ErrHardStopActive
			}
			if !policy.CanSpend(*current, req.AmountCredits) {
				transition = policy.AfterRejectedDebit(*current)
				transition.Apply(&next)
				if err := s.swapWallet(ctx, tx, &next, current.Version); err != nil {
					return err
				}
				out.wallet = next
				out.rejected = true
				out.notices = transition.Notices
				return nil
			}
			next.BalanceCredits = current.BalanceCredits - req.AmountCredits
			transition = policy.AfterDebit(*current, next.BalanceCredits)
		case domain.DirectionCredit:
			next.BalanceCredits = current.BalanceCredits + req.AmountCredits
			transition = policy.AfterCredit(*current, next.BalanceCredits)
		default:
			return domain.ErrInvalidDirection
		}
		transition.Apply(&next)

		entry := &domain.LedgerEntry{
			ID:            s.genID.Generate(),
			TenantID:      req.TenantID,
			Sequence:      next.Version,
			Direction:     req.Direction,
			AmountCredits: req.AmountCredits,
			BalanceAfter:  next.BalanceCredits,
			SourceType:    req.SourceType,
			Description:   req.Description,
			Meta:          req.Meta,
			CreatedAt:     now,
		}
		if req.SourceRef != "" {
			ref := req.SourceRef
			entry.SourceRef = &ref
		}

		if err := s.repo.InsertEntry(ctx, tx, entry); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrConcurrencyConflict
			}
			return db.WrapStorage("insert ledger entry", err)
		}
		if err := s.swapWallet(ctx, tx, &next, current.Version); err != nil {
			return err
		}

		out.entry = entry
		out.wallet = next
		out.notices = transition.Notices
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) swapWallet(ctx context.Context, tx *gorm.DB, next *domain.Wallet, expectedVersion int64) error {
	ok, err := s.repo.CompareAndSwapWallet(ctx, tx, next, expectedVersion)
	if err != nil {
		return db.WrapStorage("update wallet", err)
	}
	if !ok {
		return domain.ErrConcurrencyConflict
	}
	return nil
}

// Debit authorizes and records spend. A wallet under hard stop refuses new
// debits, but a retry of a debit that already committed still replays its
// original entry: the source lookup in appendOnce runs before the hard stop
// check.
func (s *Service) Debit(ctx context.Context, req domain.DebitRequest) (*domain.Result, error) {
	if req.TenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	if req.SourceType == "" {
		req.SourceType = domain.SourceTypeUsage
	}

	res, err := s.Append(ctx, domain.AppendRequest{
		TenantID:      req.TenantID,
		Direction:     domain.DirectionDebit,
		AmountCredits: req.AmountCredits,
		SourceType:    req.SourceType,
		SourceRef:     req.SourceRef,
		Description:   req.Description,
		Meta:          req.Meta,
	})
	if err != nil {
		return nil, err
	}

	if !res.Replayed && s.observer != nil {
		if err := s.observer.AfterDebit(ctx, req.TenantID, res.Entry.BalanceAfter); err != nil {
			s.log.Warn("auto-recharge evaluation failed",
				zap.String("tenant_id", req.TenantID.String()),
				zap.Error(err),
			)
		}
	}
	return res, nil
}

func (s *Service) Credit(ctx context.Context, req domain.CreditRequest) (*domain.Result, error) {
	if req.SourceType == "" {
		req.SourceType = domain.SourceTypeAdjustment
	}
	return s.Append(ctx, domain.AppendRequest{
		TenantID:      req.TenantID,
		Direction:     domain.DirectionCredit,
		AmountCredits: req.AmountCredits,
		SourceType:    req.SourceType,
		SourceRef:     req.SourceRef,
		Description:   req.Description,
		Meta:          req.Meta,
	})
}

func (s *Service) GetWallet(ctx context.Context, tenantID snowflake.ID) (*domain.WalletView, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	w, err := s.repo.FindWallet(ctx, s.db, tenantID)
	if err != nil {
		return nil, db.WrapStorage("find wallet", err)
	}
	if w == nil {
		return nil, domain.ErrWalletNotFound
	}
	return toView(*w), nil
}

// FindBySource returns the entry recorded for (sourceType, sourceRef), the
// same key Append deduplicates on.
func (s *Service) FindBySource(ctx context.Context, tenantID snowflake.ID, sourceType domain.SourceType, sourceRef string) (*domain.LedgerEntry, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	sourceType, err := normalizeSourceType(sourceType)
	if err != nil {
		return nil, err
	}
	sourceRef = strings.TrimSpace(sourceRef)
	if sourceRef == "" {
		return nil, domain.ErrInvalidSourceRef
	}
	entry, err := s.repo.FindEntryBySource(ctx, s.db, tenantID, sourceType, sourceRef)
	if err != nil {
		return nil, db.WrapStorage("find ledger entry", err)
	}
	return entry, nil
}

func (s *Service) ProvisionWallet(ctx context.Context, req domain.ProvisionRequest) (*domain.Wallet, error) {
	if req.TenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}

	defaults := s.policy.Get()
	pct := decimal.NewFromFloat(defaults.DefaultOverdraftPercent)
	if req.OverdraftPercent != nil {
		pct = *req.OverdraftPercent
	}
	if !policy.ValidOverdraftPercent(pct) {
		return nil, domain.ErrInvalidOverdraftPercent
	}
	threshold := defaults.DefaultLowBalanceThreshold
	if req.LowBalanceThresholdCredits != nil {
		threshold = *req.LowBalanceThresholdCredits
	}
	if threshold < 0 {
		return nil, domain.ErrInvalidThreshold
	}

	now := s.clock.Now().UTC()
	inserted, err := s.repo.InsertWallet(ctx, s.db, &domain.Wallet{
		TenantID:                   req.TenantID,
		OverdraftPercent:           pct,
		LowBalanceThresholdCredits: threshold,
		CreatedAt:                  now,
		UpdatedAt:                  now,
	})
	if err != nil {
		return nil, db.WrapStorage("insert wallet", err)
	}
	if inserted {
		s.log.Info("wallet provisioned", zap.String("tenant_id", req.TenantID.String()))
	}

	w, err := s.repo.FindWallet(ctx, s.db, req.TenantID)
	if err != nil {
		return nil, db.WrapStorage("find wallet", err)
	}
	if w == nil {
		return nil, domain.ErrWalletNotFound
	}
	return w, nil
}

// UpdateSettings changes enforcement parameters only. Neither the balance
// nor hard_stop_active is touched: a hard stop is released by a credit, never
// by moving the threshold under the balance.
func (s *Service) UpdateSettings(ctx context.Context, req domain.UpdateSettingsRequest) (*domain.WalletView, error) {
	if req.TenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	if req.OverdraftPercent != nil && !policy.ValidOverdraftPercent(*req.OverdraftPercent) {
		return nil, domain.ErrInvalidOverdraftPercent
	}
	if req.LowBalanceThresholdCredits != nil && *req.LowBalanceThresholdCredits < 0 {
		return nil, domain.ErrInvalidThreshold
	}

	var updated domain.Wallet
	op := func() error {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			current, err := s.repo.FindWallet(ctx, tx, req.TenantID)
			if err != nil {
				return db.WrapStorage("find wallet", err)
			}
			if current == nil {
				return domain.ErrWalletNotFound
			}

			next := *current
			if req.OverdraftPercent != nil {
				next.OverdraftPercent = *req.OverdraftPercent
			}
			if req.LowBalanceThresholdCredits != nil {
				next.LowBalanceThresholdCredits = *req.LowBalanceThresholdCredits
			}
			next.Version = current.Version + 1
			next.UpdatedAt = s.clock.Now().UTC()

			if err := s.swapWallet(ctx, tx, &next, current.Version); err != nil {
				return err
			}
			updated = next
			return nil
		})
		if err != nil && !errors.Is(err, domain.ErrConcurrencyConflict) {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(op, s.retryPolicy(ctx)); err != nil {
		if errors.Is(err, domain.ErrConcurrencyConflict) {
			return nil, fmt.Errorf("%w: wallet write conflict", domain.ErrServiceUnavailable)
		}
		return nil, err
	}
	return toView(updated), nil
}

func (s *Service) VerifyBalance(ctx context.Context, tenantID snowflake.ID) (*domain.Reconciliation, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}

	var rec domain.Reconciliation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := s.repo.FindWallet(ctx, tx, tenantID)
		if err != nil {
			return db.WrapStorage("find wallet", err)
		}
		if w == nil {
			return domain.ErrWalletNotFound
		}
		sum, count, lastSeq, err := s.repo.SumEntries(ctx, tx, tenantID)
		if err != nil {
			return db.WrapStorage("sum ledger entries", err)
		}
		rec = domain.Reconciliation{
			TenantID:       tenantID.String(),
			BalanceCredits: w.BalanceCredits,
			LedgerSum:      sum,
			EntryCount:     count,
			LastSequence:   lastSeq,
			Version:        w.Version,
			InSync:         sum == w.BalanceCredits,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !rec.InSync {
		s.log.Error("wallet balance drifted from ledger",
			zap.String("tenant_id", rec.TenantID),
			zap.Int64("balance_credits", rec.BalanceCredits),
			zap.Int64("ledger_sum", rec.LedgerSum),
		)
	}
	return &rec, nil
}

func (s *Service) emit(ctx context.Context, notices []domain.NoticeKind, w domain.Wallet) {
	if s.notifier == nil {
		return
	}
	for _, kind := range notices {
		if err := s.notifier.Notify(ctx, kind, w); err != nil {
			s.log.Warn("failed to deliver wallet notice",
				zap.String("tenant_id", w.TenantID.String()),
				zap.String("notice", string(kind)),
				zap.Error(err),
			)
		}
	}
}

func normalizeAppend(req domain.AppendRequest) (domain.AppendRequest, error) {
	if req.TenantID == 0 {
		return req, domain.ErrInvalidTenant
	}
	if req.AmountCredits <= 0 {
		return req, domain.ErrInvalidAmount
	}
	direction, err := normalizeDirection(req.Direction)
	if err != nil {
		return req, err
	}
	req.Direction = direction

	sourceType, err := normalizeSourceType(req.SourceType)
	if err != nil {
		return req, err
	}
	req.SourceType = sourceType

	req.SourceRef = strings.TrimSpace(req.SourceRef)
	if len(req.SourceRef) > 255 {
		return req, domain.ErrInvalidSourceRef
	}
	req.Description = strings.TrimSpace(req.Description)
	return req, nil
}

func normalizeDirection(direction domain.Direction) (domain.Direction, error) {
	switch domain.Direction(strings.ToLower(strings.TrimSpace(string(direction)))) {
	case domain.DirectionDebit:
		return domain.DirectionDebit, nil
	case domain.DirectionCredit:
		return domain.DirectionCredit, nil
	default:
		return "", domain.ErrInvalidDirection
	}
}

func normalizeSourceType(sourceType domain.SourceType) (domain.SourceType, error) {
	normalized := domain.SourceType(strings.ToLower(strings.TrimSpace(string(sourceType))))
	switch normalized {
	case domain.SourceTypePurchase,
		domain.SourceTypeUsage,
		domain.SourceTypeAdjustment,
		domain.SourceTypeRefund:
		return normalized, nil
	default:
		return "", domain.ErrInvalidSourceType
	}
}

func toView(w domain.Wallet) *domain.WalletView {
	allowance := policy.OverdraftAllowance(w.BalanceCredits, w.OverdraftPercent)
	return &domain.WalletView{
		TenantID:                   w.TenantID.String(),
		BalanceCredits:             w.BalanceCredits,
		AvailableCredits:           w.BalanceCredits + allowance,
		OverdraftAllowance:         allowance,
		OverdraftPercent:           w.OverdraftPercent.String(),
		LowBalanceThresholdCredits: w.LowBalanceThresholdCredits,
		Status:                     policy.Status(w),
		HardStopActive:             w.HardStopActive,
		UpdatedAt:                  w.UpdatedAt,
	}
}
