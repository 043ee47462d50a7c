package trigger_test

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/credits/internal/autorecharge/domain"
	"github.com/smallbiznis/credits/internal/payment/processor"
	rechargedomain "github.com/smallbiznis/credits/internal/recharge/domain"
	"github.com/smallbiznis/credits/internal/testutil"
	"github.com/smallbiznis/credits/internal/testutil/harness"
	walletdomain "github.com/smallbiznis/credits/internal/wallet/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func countAttempts(t *testing.T, e *harness.Engine) int64 {
	return testutil.Count(t, e.DB, `SELECT COUNT(*) FROM recharge_attempts`)
}

func TestThresholdCrossingTriggersOnce(t *testing.T) {
	ctx := context.Background()
	e := harness.New(t)
	tenantID := e.Tenant(t, 1200, 1000)
	e.EnableAutoRecharge(t, tenantID, 1000, 20000)

	_, err := e.Wallet.Debit(ctx, walletdomain.DebitRequest{TenantID: tenantID, AmountCredits: 300})
	require.NoError(t, err)
	require.Equal(t, int64(1), countAttempts(t, e))

	e.Clock.Advance(10 * time.Second)
	res, err := e.Wallet.Debit(ctx, walletdomain.DebitRequest{TenantID: tenantID, AmountCredits: 50})
	require.NoError(t, err)
	assert.Equal(t, int64(850), res.Entry.BalanceAfter)
	assert.Equal(t, int64(1), countAttempts(t, e))

	e.Processor.On("Charge", mock.Anything, mock.Anything).
		Return(&processor.ChargeResult{ChargeID: "pi_1", Status: "succeeded"}, nil).Once()
	attempts, err := e.Recharge.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	result, err := e.Recharge.Trigger(ctx, rechargedomain.TriggerRequest{AttemptID: attempts[0].ID})
	require.NoError(t, err)
	require.True(t, result.Started)

	// lock released, cooldown now holds the line
	e.Clock.Advance(10 * time.Second)
	_, err = e.Wallet.Debit(ctx, walletdomain.DebitRequest{TenantID: tenantID, AmountCredits: 50})
	require.NoError(t, err)
	assert.Equal(t, int64(1), countAttempts(t, e))
	e.Processor.AssertExpectations(t)
}

func TestEvaluateReasons(t *testing.T) {
	ctx := context.Background()
	e := harness.New(t)

	unconfigured := e.Tenant(t, 500, 1000)
	decision, err := e.Trigger.Evaluate(ctx, unconfigured, 500)
	require.NoError(t, err)
	assert.False(t, decision.Triggered)
	assert.Equal(t, domain.ReasonDisabled, decision.Reason)

	tenantID := e.Tenant(t, 5000, 1000)
	e.EnableAutoRecharge(t, tenantID, 1000, 20000)

	decision, err = e.Trigger.Evaluate(ctx, tenantID, 1001)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonAboveThreshold, decision.Reason)

	decision, err = e.Trigger.Evaluate(ctx, tenantID, 1000)
	require.NoError(t, err)
	assert.True(t, decision.Triggered)
	assert.Equal(t, domain.ReasonTriggered, decision.Reason)
	require.NotNil(t, decision.AttemptID)

	decision, err = e.Trigger.Evaluate(ctx, tenantID, 900)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonInFlight, decision.Reason)
}

func TestDisabledConfigNeverTriggers(t *testing.T) {
	ctx := context.Background()
	e := harness.New(t)
	tenantID := e.Tenant(t, 100, 1000)
	e.EnableAutoRecharge(t, tenantID, 1000, 20000)

	_, err := e.Configs.DisableAutoRecharge(ctx, tenantID)
	require.NoError(t, err)

	decision, err := e.Trigger.Evaluate(ctx, tenantID, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonDisabled, decision.Reason)
	assert.Equal(t, int64(0), countAttempts(t, e))
}

func TestCooldownExpires(t *testing.T) {
	ctx := context.Background()
	e := harness.New(t)
	tenantID := e.Tenant(t, 100, 1000)
	e.EnableAutoRecharge(t, tenantID, 1000, 20000)
	require.NoError(t, e.Configs.RecordSuccess(ctx, tenantID))

	e.Clock.Advance(4 * time.Minute)
	decision, err := e.Trigger.Evaluate(ctx, tenantID, 100)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonCooldown, decision.Reason)

	e.Clock.Advance(time.Minute)
	decision, err = e.Trigger.Evaluate(ctx, tenantID, 100)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonTriggered, decision.Reason)
}

func TestExpiredLockStillBlockedByQueuedAttempt(t *testing.T) {
	ctx := context.Background()
	e := harness.New(t)
	tenantID := e.Tenant(t, 100, 1000)
	e.EnableAutoRecharge(t, tenantID, 1000, 20000)

	decision, err := e.Trigger.Evaluate(ctx, tenantID, 100)
	require.NoError(t, err)
	require.True(t, decision.Triggered)

	e.Clock.Advance(e.Policy.Get().LockTTL + time.Second)
	decision, err = e.Trigger.Evaluate(ctx, tenantID, 100)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonInFlight, decision.Reason)
	assert.Equal(t, int64(1), countAttempts(t, e))
}
