package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

const idempotencyScope = "recharge"

// IdempotencyKey is stable for a tenant and config within one clock minute,
// so duplicate charge requests in that window collapse at the processor.
func IdempotencyKey(tenantID, configID snowflake.ID, at time.Time) string {
	bucket := at.UTC().Truncate(time.Minute).Unix()
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", tenantID.String(), configID.String(), bucket)))
	return fmt.Sprintf("%s-%s", idempotencyScope, hex.EncodeToString(sum[:]))
}
