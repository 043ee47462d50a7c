// Package lock provides short-lived exclusive locks keyed by string. Every
// lock carries a TTL so a crashed holder cannot keep it forever, and release
// only succeeds for the token returned by TryLock.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrEmptyKey   = errors.New("lock key is empty")
	ErrInvalidTTL = errors.New("lock ttl must be positive")
)

type Locker interface {
	// TryLock never blocks. ok is false when another holder owns key.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// RechargeKey is the per-tenant auto-recharge in-flight lock.
func RechargeKey(tenantID snowflake.ID) string {
	return fmt.Sprintf("credits:autorecharge:%s", tenantID.String())
}

func validate(key string, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}
