package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rateLimitGeneratePrefix = "ratelimit:generate:"
	rateLimitAuthPrefix     = "ratelimit:auth:"
)

// Limit is a token bucket: Burst tokens, refilled at Rate tokens per Per.
// A zero Rate disables the limit.
type Limit struct {
	Rate  int
	Burst int
	Per   time.Duration
}

// PerMinute returns a Limit refilling rate tokens each minute.
func PerMinute(rate, burst int) Limit {
	return Limit{Rate: rate, Burst: burst, Per: time.Minute}
}

// PerSecond returns a Limit refilling rate tokens each second.
func PerSecond(rate, burst int) Limit {
	return Limit{Rate: rate, Burst: burst, Per: time.Second}
}

func (l Limit) disabled() bool {
	return l.Rate <= 0 || l.Per <= 0
}

func (l Limit) capacity() int {
	if l.Burst < 1 {
		return 1
	}
	return l.Burst
}

// perMilli is the refill rate in tokens per millisecond.
func (l Limit) perMilli() float64 {
	return float64(l.Rate) / float64(l.Per.Milliseconds())
}

// ttl keeps an idle bucket until it would be full again, plus a margin.
func (l Limit) ttl() time.Duration {
	fill := time.Duration(float64(l.capacity()) / l.perMilli() * float64(time.Millisecond))
	return fill + 10*time.Second
}

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Limit      Limit
	Remaining  int64
	ResetAt    time.Time     // when the bucket is full again
	RetryAfter time.Duration // zero when Allowed
}

// tokenBucketScript refills and consumes a token bucket atomically.
// Times are in milliseconds.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])
	local burst = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	local data = redis.call('HMGET', key, 'tokens', 'ts')
	local tokens = tonumber(data[1]) or burst
	local ts = tonumber(data[2]) or now

	tokens = math.min(burst, tokens + math.max(0, now - ts) * rate)

	local allowed = 0
	local retry_after = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		retry_after = math.ceil((1 - tokens) / rate)
	end

	redis.call('HSET', key, 'tokens', tokens, 'ts', now)
	redis.call('PEXPIRE', key, ttl)

	return {allowed, retry_after, math.floor(tokens), math.ceil((burst - tokens) / rate)}
`)

// AllowGeneration takes one token from the user's image generation bucket.
func (c *Cache) AllowGeneration(ctx context.Context, userID string, limit Limit) (*RateLimitResult, error) {
	return c.allow(ctx, rateLimitGeneratePrefix+userID, limit)
}

// AllowAuthAttempt takes one token from the login/registration bucket of an
// IP address. The IP is hashed before it is used as a key.
func (c *Cache) AllowAuthAttempt(ctx context.Context, ip string, limit Limit) (*RateLimitResult, error) {
	return c.allow(ctx, rateLimitAuthPrefix+hashIP(ip), limit)
}

// allow fails open: a Redis error admits the request.
func (c *Cache) allow(ctx context.Context, key string, limit Limit) (*RateLimitResult, error) {
	now := time.Now()
	if limit.disabled() {
		return unlimited(limit, now), nil
	}

	res, err := tokenBucketScript.Run(ctx, c.client,
		[]string{key},
		limit.perMilli(), limit.capacity(), now.UnixMilli(), limit.ttl().Milliseconds(),
	).Int64Slice()
	if err != nil || len(res) != 4 {
		return unlimited(limit, now), nil
	}

	return &RateLimitResult{
		Allowed:    res[0] == 1,
		Limit:      limit,
		Remaining:  res[2],
		ResetAt:    now.Add(time.Duration(res[3]) * time.Millisecond),
		RetryAfter: time.Duration(res[1]) * time.Millisecond,
	}, nil
}

func unlimited(limit Limit, now time.Time) *RateLimitResult {
	return &RateLimitResult{
		Allowed:   true,
		Limit:     limit,
		Remaining: int64(limit.Burst),
		ResetAt:   now,
	}
}

// hashIP creates a truncated SHA256 hash of an IP address.
func hashIP(ip string) string {
	hash := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(hash[:8])
}
