package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/credits/internal/clock"
	"gorm.io/gorm"
)

// LeaseLocker keeps locks as rows in recharge_locks. An expired row is
// taken over by the next TryLock.
type LeaseLocker struct {
	db    *gorm.DB
	clock clock.Clock
}

func NewLeaseLocker(db *gorm.DB, clk clock.Clock) *LeaseLocker {
	if clk == nil {
		clk = clock.New()
	}
	return &LeaseLocker{db: db, clock: clk}
}

func (l *LeaseLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if err := validate(key, ttl); err != nil {
		return "", false, err
	}

	token := uuid.NewString()
	now := l.clock.Now().UTC()
	res := l.db.WithContext(ctx).Exec(
		`INSERT INTO recharge_locks (lock_key, token, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT (lock_key) DO UPDATE
		SET token = excluded.token, expires_at = excluded.expires_at
		WHERE recharge_locks.expires_at <= ?`,
		key,
		token,
		now.Add(ttl),
		now,
	)
	if res.Error != nil {
		return "", false, res.Error
	}
	if res.RowsAffected == 0 {
		return "", false, nil
	}
	return token, true, nil
}

func (l *LeaseLocker) Release(ctx context.Context, key, token string) error {
	if key == "" || token == "" {
		return nil
	}
	return l.db.WithContext(ctx).Exec(
		`DELETE FROM recharge_locks WHERE lock_key = ? AND token = ?`,
		key,
		token,
	).Error
}
