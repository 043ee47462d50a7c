package policy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/credits/internal/wallet/domain"
	"github.com/stretchr/testify/assert"
)

func wallet(balance int64, pct string, threshold int64) domain.Wallet {
	return domain.Wallet{
		BalanceCredits:             balance,
		OverdraftPercent:           decimal.RequireFromString(pct),
		LowBalanceThresholdCredits: threshold,
	}
}

func TestOverdraftAllowance(t *testing.T) {
	tests := []struct {
		name    string
		balance int64
		pct     string
		want    int64
	}{
		{name: "ten percent", balance: 1500, pct: "0.1", want: 150},
		{name: "floors fractions", balance: 999, pct: "0.1", want: 99},
		{name: "negative balance earns nothing", balance: -100, pct: "0.5", want: 0},
		{name: "zero percent", balance: 1500, pct: "0", want: 0},
		{name: "full percent", balance: 200, pct: "1", want: 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OverdraftAllowance(tt.balance, decimal.RequireFromString(tt.pct))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanSpendUsesPreDebitAllowance(t *testing.T) {
	w := wallet(1500, "0.1", 1000)
	assert.Equal(t, int64(1650), AvailableCredits(w))
	assert.True(t, CanSpend(w, 1600))
	assert.True(t, CanSpend(w, 1650))
	assert.False(t, CanSpend(w, 1651))

	overdrawn := wallet(-100, "0.1", 1000)
	assert.Equal(t, int64(-100), AvailableCredits(overdrawn))
	assert.False(t, CanSpend(overdrawn, 100))
	assert.False(t, CanSpend(overdrawn, 1))
}

func TestStatus(t *testing.T) {
	assert.Equal(t, domain.StatusOK, Status(wallet(5000, "0", 1000)))
	assert.Equal(t, domain.StatusLow, Status(wallet(1000, "0", 1000)))
	assert.Equal(t, domain.StatusCritical, Status(wallet(0, "0", 1000)))

	stopped := wallet(5000, "0", 1000)
	stopped.HardStopActive = true
	assert.Equal(t, domain.StatusCritical, Status(stopped))
}

func TestHardStopHysteresis(t *testing.T) {
	w := wallet(-100, "0.1", 1000)

	tr := AfterRejectedDebit(w)
	assert.True(t, tr.HardStopActive)
	assert.Equal(t, []domain.NoticeKind{domain.NoticeHardStop}, tr.Notices)
	tr.Apply(&w)

	again := AfterRejectedDebit(w)
	assert.True(t, again.HardStopActive)
	assert.Empty(t, again.Notices)
	assert.False(t, again.Changed(w))

	// a credit that stays at or below the threshold keeps the stop
	partial := AfterCredit(w, 1000)
	assert.True(t, partial.HardStopActive)

	release := AfterCredit(w, 1001)
	assert.False(t, release.HardStopActive)
	assert.False(t, release.NotifyHardStop)
	assert.False(t, release.NotifyLowBalance)
}

func TestAfterDebitLowBalanceNoticeOncePerEpisode(t *testing.T) {
	w := wallet(1200, "0", 1000)

	tr := AfterDebit(w, 900)
	assert.True(t, tr.NotifyLowBalance)
	assert.Equal(t, []domain.NoticeKind{domain.NoticeLowBalance}, tr.Notices)
	assert.False(t, tr.HardStopActive)
	tr.Apply(&w)

	next := AfterDebit(w, 850)
	assert.Empty(t, next.Notices)

	above := AfterDebit(wallet(5000, "0", 1000), 4000)
	assert.False(t, above.NotifyLowBalance)
	assert.Empty(t, above.Notices)
}

func TestValidOverdraftPercent(t *testing.T) {
	assert.True(t, ValidOverdraftPercent(decimal.Zero))
	assert.True(t, ValidOverdraftPercent(decimal.RequireFromString("0.25")))
	assert.True(t, ValidOverdraftPercent(decimal.NewFromInt(1)))
	assert.False(t, ValidOverdraftPercent(decimal.RequireFromString("1.01")))
	assert.False(t, ValidOverdraftPercent(decimal.RequireFromString("-0.1")))
}
