package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// The bucket state is a hash of {tokens, ms}. Refill, the decision and the
// retry hint all come from the Redis clock so instances never disagree.
// Reply: {allowed, tokens_left, retry_after_ms, now_ms}.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])

local clock = redis.call("TIME")
local now = clock[1] * 1000 + math.floor(clock[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ms")
local tokens = tonumber(state[1]) or burst
local last = tonumber(state[2]) or now
if now > last then
  tokens = math.min(burst, tokens + (now - last) / 1000 * rate)
end

local allowed = 0
local retry = 0
if tokens >= cost then
  allowed = 1
  tokens = tokens - cost
else
  retry = math.ceil((cost - tokens) / rate * 1000)
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ms", now)
redis.call("PEXPIRE", KEYS[1], math.ceil(burst / rate * 2000))

return {allowed, tostring(tokens), retry, now}
`

var errBucketReply = errors.New("rate_limit_bad_reply")

// TokenBucket is a Redis-backed bucket shared by every instance.
type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

// Allow takes one token from key. rate is tokens per second.
func (t *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error) {
	if t == nil || t.client == nil {
		return nil, errors.New("rate limiter not configured")
	}
	if key == "" || rate <= 0 || burst <= 0 {
		return nil, fmt.Errorf("rate limiter: invalid bucket %q rate=%v burst=%d", key, rate, burst)
	}

	reply, err := t.script.Run(ctx, t.client, []string{key}, rate, burst, 1).Slice()
	if err != nil {
		return nil, err
	}
	res, err := parseBucketReply(reply)
	if err != nil {
		return nil, err
	}
	res.Limit = burst
	return res, nil
}

func parseBucketReply(reply []any) (*RateLimitResult, error) {
	if len(reply) != 4 {
		return nil, errBucketReply
	}
	allowed, ok1 := reply[0].(int64)
	tokensText, ok2 := reply[1].(string)
	retryMs, ok3 := reply[2].(int64)
	nowMs, ok4 := reply[3].(int64)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, errBucketReply
	}
	tokens, err := strconv.ParseFloat(tokensText, 64)
	if err != nil {
		return nil, errBucketReply
	}

	retry := time.Duration(retryMs) * time.Millisecond
	return &RateLimitResult{
		Allowed:    allowed == 1,
		Remaining:  int(tokens),
		ResetTime:  time.UnixMilli(nowMs).Add(retry),
		RetryAfter: retry,
	}, nil
}
