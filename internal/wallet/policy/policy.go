// Package policy holds the balance enforcement rules. Every function here is
// pure: it reads wallet state and returns a decision or a transition, and
// never touches storage.
package policy

import (
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/credits/internal/wallet/domain"
)

var maxOverdraftPercent = decimal.NewFromInt(1)

// OverdraftAllowance is floor(max(balance, 0) * pct). An overdrawn balance
// earns no further allowance.
func OverdraftAllowance(balance int64, pct decimal.Decimal) int64 {
	if balance <= 0 || pct.Sign() <= 0 {
		return 0
	}
	return decimal.NewFromInt(balance).Mul(pct).Floor().IntPart()
}

func AvailableCredits(w domain.Wallet) int64 {
	return w.BalanceCredits + OverdraftAllowance(w.BalanceCredits, w.OverdraftPercent)
}

// CanSpend reports whether a debit of amount keeps the balance within the
// allowance computed from the pre-debit balance.
func CanSpend(w domain.Wallet, amount int64) bool {
	allowance := OverdraftAllowance(w.BalanceCredits, w.OverdraftPercent)
	return w.BalanceCredits-amount >= -allowance
}

func Status(w domain.Wallet) domain.Status {
	switch {
	case w.HardStopActive || w.BalanceCredits <= 0:
		return domain.StatusCritical
	case w.BalanceCredits <= w.LowBalanceThresholdCredits:
		return domain.StatusLow
	default:
		return domain.StatusOK
	}
}

func ValidOverdraftPercent(pct decimal.Decimal) bool {
	return pct.Sign() >= 0 && pct.LessThanOrEqual(maxOverdraftPercent)
}

// Transition is the flag state a wallet moves to after a ledger decision,
// along with the notices that became due.
type Transition struct {
	HardStopActive   bool
	NotifyLowBalance bool
	NotifyHardStop   bool
	Notices          []domain.NoticeKind
}

func current(w domain.Wallet) Transition {
	return Transition{
		HardStopActive:   w.HardStopActive,
		NotifyLowBalance: w.NotifyLowBalance,
		NotifyHardStop:   w.NotifyHardStop,
	}
}

// AfterDebit applies to a debit that was accepted and moved the balance to
// newBalance. Hard stop never activates on an accepted debit.
func AfterDebit(w domain.Wallet, newBalance int64) Transition {
	t := current(w)
	if newBalance <= w.LowBalanceThresholdCredits && !w.NotifyLowBalance {
		t.NotifyLowBalance = true
		t.Notices = append(t.Notices, domain.NoticeLowBalance)
	}
	return t
}

// AfterRejectedDebit activates the hard stop. The notice is due only on the
// first rejection of an episode.
func AfterRejectedDebit(w domain.Wallet) Transition {
	t := current(w)
	t.HardStopActive = true
	if !w.NotifyHardStop {
		t.NotifyHardStop = true
		t.Notices = append(t.Notices, domain.NoticeHardStop)
	}
	return t
}

// AfterCredit releases the hard stop and re-arms notices once the balance is
// back above the low balance threshold.
func AfterCredit(w domain.Wallet, newBalance int64) Transition {
	t := current(w)
	if newBalance > w.LowBalanceThresholdCredits {
		t.HardStopActive = false
		t.NotifyLowBalance = false
		t.NotifyHardStop = false
	}
	return t
}

// Changed reports whether applying t would alter w's flags.
func (t Transition) Changed(w domain.Wallet) bool {
	return t.HardStopActive != w.HardStopActive ||
		t.NotifyLowBalance != w.NotifyLowBalance ||
		t.NotifyHardStop != w.NotifyHardStop
}

func (t Transition) Apply(w *domain.Wallet) {
	w.HardStopActive = t.HardStopActive
	w.NotifyLowBalance = t.NotifyLowBalance
	w.NotifyHardStop = t.NotifyHardStop
}
