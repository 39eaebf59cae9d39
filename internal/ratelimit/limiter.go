package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/routepay/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const keyUpload = "routepay:upload:driver:%s"

// Limiter throttles manifest uploads per driver code.
type Limiter interface {
	Allow(ctx context.Context, driverCode string) (*RateLimitResult, error)
}

type Params struct {
	fx.In

	Lc  fx.Lifecycle
	Cfg config.Config
	Log *zap.Logger
}

// NewUploadLimiter returns nil when UPLOAD_RATE_PER_MINUTE is zero. With
// REDIS_ADDR set the bucket is shared across instances.
func NewUploadLimiter(p Params) Limiter {
	cfg := p.Cfg.RateLimit
	if cfg.UploadsPerMinute <= 0 {
		return nil
	}
	burst := cfg.UploadBurst
	if burst <= 0 {
		burst = 1
	}
	perSecond := cfg.UploadsPerMinute / 60

	log := p.Log.Named("ratelimit")
	addr := strings.TrimSpace(p.Cfg.RedisAddr)
	if addr == "" {
		log.Info("using in-process upload rate limit", zap.Float64("per_minute", cfg.UploadsPerMinute), zap.Int("burst", burst))
		return NewLocalLimiter(perSecond, burst)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(p.Cfg.RedisPassword),
		DB:       p.Cfg.RedisDB,
	})
	p.Lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	log.Info("using redis upload rate limit", zap.Float64("per_minute", cfg.UploadsPerMinute), zap.Int("burst", burst))
	return &redisLimiter{bucket: NewTokenBucket(client), rate: perSecond, burst: burst}
}

type redisLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func (l *redisLimiter) Allow(ctx context.Context, driverCode string) (*RateLimitResult, error) {
	return l.bucket.Allow(ctx, fmt.Sprintf(keyUpload, strings.TrimSpace(driverCode)), l.rate, l.burst)
}

// LocalLimiter keeps one bucket per driver in process memory.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rate    rate.Limit
	burst   int
	now     func() time.Time
}

func NewLocalLimiter(perSecond float64, burst int) *LocalLimiter {
	return &LocalLimiter{
		buckets: make(map[string]*rate.Limiter),
		rate:    rate.Limit(perSecond),
		burst:   burst,
		now:     time.Now,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, driverCode string) (*RateLimitResult, error) {
	key := strings.TrimSpace(driverCode)

	l.mu.Lock()
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = rate.NewLimiter(l.rate, l.burst)
		l.buckets[key] = bucket
	}
	l.mu.Unlock()

	now := l.now()
	reservation := bucket.ReserveN(now, 1)
	if !reservation.OK() {
		return &RateLimitResult{Allowed: false, Limit: l.burst}, nil
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return &RateLimitResult{
			Allowed:    false,
			Limit:      l.burst,
			ResetTime:  now.Add(delay),
			RetryAfter: delay,
		}, nil
	}
	return &RateLimitResult{
		Allowed:   true,
		Limit:     l.burst,
		Remaining: int(bucket.TokensAt(now)),
		ResetTime: now,
	}, nil
}
