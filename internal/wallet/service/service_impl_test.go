package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/credits/internal/config"
	"github.com/smallbiznis/credits/internal/testutil"
	"github.com/smallbiznis/credits/internal/wallet/domain"
	"github.com/smallbiznis/credits/internal/wallet/repository"
	"github.com/smallbiznis/credits/internal/wallet/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingObserver struct {
	mu       sync.Mutex
	balances []int64
}

func (o *recordingObserver) AfterDebit(ctx context.Context, tenantID snowflake.ID, balance int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.balances = append(o.balances, balance)
	return nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []domain.NoticeKind
}

func (n *recordingNotifier) Notify(ctx context.Context, kind domain.NoticeKind, w domain.Wallet) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, kind)
	return nil
}

// conflictingRepo loses the compare-and-swap race a fixed number of times.
type conflictingRepo struct {
	domain.Repository
	remaining atomic.Int64
}

func (r *conflictingRepo) CompareAndSwapWallet(ctx context.Context, db *gorm.DB, w *domain.Wallet, expectedVersion int64) (bool, error) {
	if r.remaining.Add(-1) >= 0 {
		return false, nil
	}
	return r.Repository.CompareAndSwapWallet(ctx, db, w, expectedVersion)
}

type fixture struct {
	svc      domain.Service
	db       *gorm.DB
	node     *snowflake.Node
	observer *recordingObserver
	notifier *recordingNotifier
}

func newFixture(t *testing.T, repo domain.Repository) *fixture {
	t.Helper()

	db := testutil.OpenDB(t)
	node, err := snowflake.NewNode(7)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	if repo == nil {
		repo = repository.Provide()
	}
	observer := &recordingObserver{}
	notifier := &recordingNotifier{}
	svc := service.NewService(service.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     repo,
		Policy:   config.NewStaticPolicyHolder(config.DefaultPolicy()),
		Notifier: notifier,
		Observer: observer,
	})
	return &fixture{svc: svc, db: db, node: node, observer: observer, notifier: notifier}
}

func (f *fixture) provision(t *testing.T, pct string, threshold int64) snowflake.ID {
	t.Helper()

	tenantID := f.node.Generate()
	percent := decimal.RequireFromString(pct)
	if _, err := f.svc.ProvisionWallet(context.Background(), domain.ProvisionRequest{
		TenantID:                   tenantID,
		OverdraftPercent:           &percent,
		LowBalanceThresholdCredits: &threshold,
	}); err != nil {
		t.Fatalf("provision wallet: %v", err)
	}
	return tenantID
}

func (f *fixture) credit(t *testing.T, tenantID snowflake.ID, amount int64, ref string) *domain.Result {
	t.Helper()

	res, err := f.svc.Credit(context.Background(), domain.CreditRequest{
		TenantID:      tenantID,
		AmountCredits: amount,
		SourceType:    domain.SourceTypePurchase,
		SourceRef:     ref,
	})
	if err != nil {
		t.Fatalf("credit %d: %v", amount, err)
	}
	return res
}

func TestOverdraftThenHardStop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	tenantID := f.provision(t, "0.1", 1000)
	f.credit(t, tenantID, 1500, "seed")

	view, err := f.svc.GetWallet(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, int64(1650), view.AvailableCredits)

	res, err := f.svc.Debit(ctx, domain.DebitRequest{TenantID: tenantID, AmountCredits: 1600})
	require.NoError(t, err)
	assert.Equal(t, int64(-100), res.Entry.BalanceAfter)
	assert.False(t, res.Wallet.HardStopActive)
	assert.Equal(t, domain.StatusCritical, res.Wallet.Status)

	_, err = f.svc.Debit(ctx, domain.DebitRequest{TenantID: tenantID, AmountCredits: 100})
	assert.ErrorIs(t, err, domain.ErrInsufficientCredits)

	view, err = f.svc.GetWallet(ctx, tenantID)
	require.NoError(t, err)
	assert.True(t, view.HardStopActive)
	assert.Equal(t, int64(-100), view.BalanceCredits)
	assert.Equal(t, int64(2), testutil.Count(t, f.db, "SELECT COUNT(1) FROM ledger_entries WHERE tenant_id = ?", tenantID))

	// hard stop holds across further attempts, even tiny ones
	for i := 0; i < 3; i++ {
		_, err = f.svc.Debit(ctx, domain.DebitRequest{TenantID: tenantID, AmountCredits: 1})
		assert.ErrorIs(t, err, domain.ErrHardStopActive)
	}

	res = f.credit(t, tenantID, 500, "topup-1")
	assert.True(t, res.Wallet.HardStopActive, "balance 400 is not above the threshold")

	res = f.credit(t, tenantID, 700, "topup-2")
	assert.Equal(t, int64(1100), res.Wallet.BalanceCredits)
	assert.False(t, res.Wallet.HardStopActive)

	_, err = f.svc.Debit(ctx, domain.DebitRequest{TenantID: tenantID, AmountCredits: 50})
	assert.NoError(t, err)

	assert.Equal(t, []domain.NoticeKind{domain.NoticeLowBalance, domain.NoticeHardStop}, f.notifier.notices)
	assert.Equal(t, []int64{-100, 1050}, f.observer.balances)
}

func TestAppendIsIdempotentOnSourceRef(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	tenantID := f.provision(t, "0", 0)

	first := f.credit(t, tenantID, 2000, "evt_123")
	second := f.credit(t, tenantID, 2000, "evt_123")

	assert.False(t, first.Replayed)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Entry.ID, second.Entry.ID)
	assert.Equal(t, first.Entry.BalanceAfter, second.Entry.BalanceAfter)
	assert.Equal(t, int64(1), testutil.Count(t, f.db, "SELECT COUNT(1) FROM ledger_entries WHERE source_ref = ?", "evt_123"))

	view, err := f.svc.GetWallet(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), view.BalanceCredits)

	// the same reference under another source type is a distinct event
	_, err = f.svc.Credit(ctx, domain.CreditRequest{
		TenantID:      tenantID,
		AmountCredits: 10,
		SourceType:    domain.SourceTypeRefund,
		SourceRef:     "evt_123",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), testutil.Count(t, f.db, "SELECT COUNT(1) FROM ledger_entries WHERE source_ref = ?", "evt_123"))
}

func TestConcurrentDebitsNeverBothApply(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	tenantID := f.provision(t, "0", 0)
	f.credit(t, tenantID, 1000, "seed")

	amounts := []int64{500, 700}
	errs := make([]error, len(amounts))
	var wg sync.WaitGroup
	for i, amount := range amounts {
		wg.Add(1)
		go func(i int, amount int64) {
			defer wg.Done()
			_, errs[i] = f.svc.Debit(ctx, domain.DebitRequest{TenantID: tenantID, AmountCredits: amount})
		}(i, amount)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t,
			errors.Is(err, domain.ErrInsufficientCredits) || errors.Is(err, domain.ErrHardStopActive),
			"unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	view, err := f.svc.GetWallet(ctx, tenantID)
	require.NoError(t, err)
	assert.Contains(t, []int64{500, 300}, view.BalanceCredits)

	rec, err := f.svc.VerifyBalance(ctx, tenantID)
	require.NoError(t, err)
	assert.True(t, rec.InSync)
}

func TestAppendRetriesLostCompareAndSwap(t *testing.T) {
	repo := &conflictingRepo{Repository: repository.Provide()}
	f := newFixture(t, repo)
	tenantID := f.provision(t, "0", 0)

	repo.remaining.Store(2)
	res := f.credit(t, tenantID, 300, "retry-me")
	assert.Equal(t, int64(300), res.Entry.BalanceAfter)
	assert.Equal(t, int64(1), testutil.Count(t, f.db, "SELECT COUNT(1) FROM ledger_entries"))
}

func TestAppendGivesUpAfterMaxRetries(t *testing.T) {
	repo := &conflictingRepo{Repository: repository.Provide()}
	f := newFixture(t, repo)
	tenantID := f.provision(t, "0", 0)

	repo.remaining.Store(100)
	_, err := f.svc.Credit(context.Background(), domain.CreditRequest{TenantID: tenantID, AmountCredits: 10})
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
	assert.Equal(t, int64(0), testutil.Count(t, f.db, "SELECT COUNT(1) FROM ledger_entries"))
}

func TestLedgerMatchesWalletBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	tenantID := f.provision(t, "0.2", 100)

	f.credit(t, tenantID, 1000, "p1")
	for _, amount := range []int64{120, 80, 400} {
		_, err := f.svc.Debit(ctx, domain.DebitRequest{TenantID: tenantID, AmountCredits: amount})
		require.NoError(t, err)
	}
	_, err := f.svc.Credit(ctx, domain.CreditRequest{
		TenantID:      tenantID,
		AmountCredits: 50,
		SourceType:    domain.SourceTypeAdjustment,
		Description:   "goodwill",
	})
	require.NoError(t, err)

	rec, err := f.svc.VerifyBalance(ctx, tenantID)
	require.NoError(t, err)
	assert.True(t, rec.InSync)
	assert.Equal(t, int64(450), rec.LedgerSum)
	assert.Equal(t, int64(5), rec.EntryCount)

	page, err := f.svc.ListLedger(ctx, tenantID, domain.ListLedgerRequest{PageSize: 10})
	require.NoError(t, err)
	require.Len(t, page.Entries, 5)

	// entries come newest first; walk them oldest first
	balance := int64(0)
	for i := len(page.Entries) - 1; i >= 0; i-- {
		entry := page.Entries[i]
		balance += entry.SignedAmount()
		assert.Equal(t, balance, entry.BalanceAfter, "entry %d", entry.Sequence)
	}
}

func TestListLedgerPaginatesAndFilters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	tenantID := f.provision(t, "0", 0)

	f.credit(t, tenantID, 1000, "p1")
	for i := 0; i < 4; i++ {
		_, err := f.svc.Debit(ctx, domain.DebitRequest{TenantID: tenantID, AmountCredits: 10})
		require.NoError(t, err)
	}

	first, err := f.svc.ListLedger(ctx, tenantID, domain.ListLedgerRequest{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first.Entries, 2)
	assert.True(t, first.HasMore)
	assert.NotEmpty(t, first.NextPageToken)

	second, err := f.svc.ListLedger(ctx, tenantID, domain.ListLedgerRequest{PageSize: 2, PageToken: first.NextPageToken})
	require.NoError(t, err)
	require.Len(t, second.Entries, 2)
	assert.Less(t, second.Entries[0].Sequence, first.Entries[1].Sequence)

	credits, err := f.svc.ListLedger(ctx, tenantID, domain.ListLedgerRequest{Direction: domain.DirectionCredit})
	require.NoError(t, err)
	require.Len(t, credits.Entries, 1)
	assert.False(t, credits.HasMore)

	_, err = f.svc.ListLedger(ctx, tenantID, domain.ListLedgerRequest{PageToken: "%%%"})
	assert.ErrorIs(t, err, domain.ErrInvalidPageToken)
}

func TestUpdateSettingsKeepsHardStopUntilCredit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	tenantID := f.provision(t, "0", 1000)
	f.credit(t, tenantID, 500, "p1")

	_, err := f.svc.Debit(ctx, domain.DebitRequest{TenantID: tenantID, AmountCredits: 600})
	require.ErrorIs(t, err, domain.ErrInsufficientCredits)

	threshold := int64(100)
	view, err := f.svc.UpdateSettings(ctx, domain.UpdateSettingsRequest{
		TenantID:                   tenantID,
		LowBalanceThresholdCredits: &threshold,
	})
	require.NoError(t, err)
	assert.True(t, view.HardStopActive, "lowering the threshold is not a credit")
	assert.Equal(t, int64(500), view.BalanceCredits)
	assert.Equal(t, int64(100), view.LowBalanceThresholdCredits)

	_, err = f.svc.Debit(ctx, domain.DebitRequest{TenantID: tenantID, AmountCredits: 1})
	assert.ErrorIs(t, err, domain.ErrHardStopActive)

	res := f.credit(t, tenantID, 1, "p2")
	assert.False(t, res.Wallet.HardStopActive)

	bad := decimal.RequireFromString("1.5")
	_, err = f.svc.UpdateSettings(ctx, domain.UpdateSettingsRequest{TenantID: tenantID, OverdraftPercent: &bad})
	assert.ErrorIs(t, err, domain.ErrInvalidOverdraftPercent)
}

func TestDebitRetryReplaysUnderHardStop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	tenantID := f.provision(t, "0", 0)
	f.credit(t, tenantID, 100, "seed")

	first, err := f.svc.Debit(ctx, domain.DebitRequest{TenantID: tenantID, AmountCredits: 100, SourceRef: "usage-1"})
	require.NoError(t, err)

	_, err = f.svc.Debit(ctx, domain.DebitRequest{TenantID: tenantID, AmountCredits: 1, SourceRef: "usage-2"})
	require.ErrorIs(t, err, domain.ErrInsufficientCredits)

	// a timed-out caller retrying usage-1 gets the committed entry back
	retry, err := f.svc.Debit(ctx, domain.DebitRequest{TenantID: tenantID, AmountCredits: 100, SourceRef: "usage-1"})
	require.NoError(t, err)
	assert.True(t, retry.Replayed)
	assert.Equal(t, first.Entry.ID, retry.Entry.ID)
	assert.Equal(t, first.Entry.BalanceAfter, retry.Entry.BalanceAfter)
	assert.True(t, retry.Wallet.HardStopActive)

	// new usage is still refused
	_, err = f.svc.Debit(ctx, domain.DebitRequest{TenantID: tenantID, AmountCredits: 1, SourceRef: "usage-3"})
	assert.ErrorIs(t, err, domain.ErrHardStopActive)

	view, err := f.svc.GetWallet(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), view.BalanceCredits)
	assert.Equal(t, []int64{0}, f.observer.balances)
}

func TestAppendValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	tenantID := f.provision(t, "0", 0)

	tests := []struct {
		name string
		req  domain.AppendRequest
		want error
	}{
		{name: "missing tenant", req: domain.AppendRequest{Direction: domain.DirectionCredit, AmountCredits: 1, SourceType: domain.SourceTypeUsage}, want: domain.ErrInvalidTenant},
		{name: "zero amount", req: domain.AppendRequest{TenantID: tenantID, Direction: domain.DirectionCredit, SourceType: domain.SourceTypeUsage}, want: domain.ErrInvalidAmount},
		{name: "bad direction", req: domain.AppendRequest{TenantID: tenantID, Direction: "sideways", AmountCredits: 1, SourceType: domain.SourceTypeUsage}, want: domain.ErrInvalidDirection},
		{name: "bad source type", req: domain.AppendRequest{TenantID: tenantID, Direction: domain.DirectionDebit, AmountCredits: 1, SourceType: "gift"}, want: domain.ErrInvalidSourceType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Append(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := f.svc.GetWallet(ctx, f.node.Generate())
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
}

func TestProvisionWalletIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	tenantID := f.provision(t, "0.05", 250)
	f.credit(t, tenantID, 100, "p1")

	w, err := f.svc.ProvisionWallet(ctx, domain.ProvisionRequest{TenantID: tenantID})
	require.NoError(t, err)
	assert.Equal(t, int64(100), w.BalanceCredits)
	assert.Equal(t, int64(250), w.LowBalanceThresholdCredits)
	assert.True(t, w.OverdraftPercent.Equal(decimal.RequireFromString("0.05")))
}
