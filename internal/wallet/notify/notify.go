package notify

import (
	"context"

	"github.com/smallbiznis/credits/internal/wallet/domain"
	"github.com/smallbiznis/credits/internal/wallet/policy"
	"go.uber.org/zap"
)

// LogNotifier writes balance notices to the structured log. It is the
// default sink until a tenant-facing channel is wired in.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) domain.Notifier {
	return &LogNotifier{log: log.Named("wallet.notify")}
}

func (n *LogNotifier) Notify(ctx context.Context, kind domain.NoticeKind, w domain.Wallet) error {
	n.log.Info("wallet notice",
		zap.String("notice", string(kind)),
		zap.String("tenant_id", w.TenantID.String()),
		zap.Int64("balance_credits", w.BalanceCredits),
		zap.Int64("available_credits", policy.AvailableCredits(w)),
		zap.Int64("low_balance_threshold_credits", w.LowBalanceThresholdCredits),
		zap.Bool("hard_stop_active", w.HardStopActive),
	)
	return nil
}
