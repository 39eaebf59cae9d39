package lock

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/routepay/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("lock",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Lc  fx.Lifecycle
	Cfg config.Config
	Log *zap.Logger

	WaitObserver WaitObserver `optional:"true"`
}

// New picks the Redis locker when REDIS_ADDR is set and the in-process one
// otherwise.
func New(p Params) Locker {
	log := p.Log.Named("lock")
	addr := strings.TrimSpace(p.Cfg.RedisAddr)
	if addr == "" {
		log.Info("using in-process driver locks")
		return NewLocal(WithWaitObserver(p.WaitObserver))
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(p.Cfg.RedisPassword),
		DB:       p.Cfg.RedisDB,
	})
	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	log.Info("using redis driver locks", zap.String("addr", addr))
	return NewRedisLocker(client, p.Cfg.Payroll.LockTTL, log, WithWaitObserver(p.WaitObserver))
}
