package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var (
	ErrNotConfigured = errors.New("rate_limiter_not_configured")
	ErrInvalidBucket = errors.New("invalid_rate_limit_bucket")
)

// Refill happens lazily on each take using redis server time, so every API
// replica sees the same bucket. Tokens are returned as a string to keep the
// fractional part.
const takeScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local t = redis.call("TIME")
local now = (tonumber(t[1]) * 1000) + math.floor(tonumber(t[2]) / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local ts = tonumber(state[2]) or now

local elapsed = math.max(now - ts, 0)
tokens = math.min(burst, tokens + (elapsed / 1000) * rate)

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", tostring(now))
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, tostring(tokens), now}
`

// Bucket is a refill rate in tokens per second and a capacity.
type Bucket struct {
	Rate  float64
	Burst int
}

func (b Bucket) validate() error {
	if b.Rate <= 0 || b.Burst <= 0 {
		return fmt.Errorf("%w: rate=%v burst=%d", ErrInvalidBucket, b.Rate, b.Burst)
	}
	return nil
}

// idleTTL is twice the time an empty bucket needs to fill up again; after
// that an untouched key is indistinguishable from a full bucket.
func (b Bucket) idleTTL() time.Duration {
	seconds := math.Max(math.Ceil(float64(b.Burst)/b.Rate*2), 1)
	return time.Duration(seconds) * time.Second
}

type Decision struct {
	Allowed    bool
	Remaining  float64
	RetryAfter time.Duration
	At         time.Time
}

type TokenBucket struct {
	client redis.Scripter
	script *redis.Script
}

func NewTokenBucket(client redis.Scripter) *TokenBucket {
	return &TokenBucket{
		client: client,
		script: redis.NewScript(takeScript),
	}
}

// Take removes one token from the bucket stored at key.
func (t *TokenBucket) Take(ctx context.Context, key string, b Bucket) (Decision, error) {
	if t == nil || t.client == nil {
		return Decision{}, ErrNotConfigured
	}
	if key == "" {
		return Decision{}, fmt.Errorf("%w: empty key", ErrInvalidBucket)
	}
	if err := b.validate(); err != nil {
		return Decision{}, err
	}

	reply, err := t.script.Run(ctx, t.client, []string{key},
		b.Rate, b.Burst, b.idleTTL().Milliseconds(),
	).Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(reply) != 3 {
		return Decision{}, fmt.Errorf("token bucket: unexpected reply %v", reply)
	}

	allowed, _ := reply[0].(int64)
	raw, _ := reply[1].(string)
	remaining, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Decision{}, fmt.Errorf("token bucket: parse tokens %q: %w", raw, err)
	}
	nowMillis, _ := reply[2].(int64)

	d := Decision{
		Allowed:   allowed == 1,
		Remaining: remaining,
		At:        time.UnixMilli(nowMillis),
	}
	if !d.Allowed {
		d.RetryAfter = time.Duration((1 - remaining) / b.Rate * float64(time.Second))
	}
	return d, nil
}
