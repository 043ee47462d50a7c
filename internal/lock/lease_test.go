package lock_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/credits/internal/clock"
	"github.com/smallbiznis/credits/internal/lock"
	"github.com/smallbiznis/credits/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaseLockerLifecycle(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	locker := lock.NewLeaseLocker(db, clk)
	key := lock.RechargeKey(snowflake.ID(42))

	token, ok, err := locker.TryLock(ctx, key, 2*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	clk.Advance(time.Minute)
	_, ok, err = locker.TryLock(ctx, key, 2*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "lease is still live")

	require.NoError(t, locker.Release(ctx, key, "stale-token"))
	_, ok, err = locker.TryLock(ctx, key, 2*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "release with a foreign token is a no-op")

	require.NoError(t, locker.Release(ctx, key, token))
	assert.Equal(t, int64(0), testutil.Count(t, db, "SELECT COUNT(1) FROM recharge_locks"))

	second, ok, err := locker.TryLock(ctx, key, 2*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, token, second)
}

func TestLeaseLockerTakesOverExpiredLease(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	locker := lock.NewLeaseLocker(db, clk)

	crashed, ok, err := locker.TryLock(ctx, "k", 2*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	clk.Advance(3 * time.Minute)
	fresh, ok, err := locker.TryLock(ctx, "k", 2*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// the crashed holder can no longer release the new lease
	require.NoError(t, locker.Release(ctx, "k", crashed))
	assert.Equal(t, int64(1), testutil.Count(t, db, "SELECT COUNT(1) FROM recharge_locks WHERE token = ?", fresh))
}
