package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cfgpkg "github.com/fatflowers/plankeeper/pkg/config"
	"github.com/fatflowers/plankeeper/pkg/lock"
)

const lockPrefix = "plankeeper:lock:"

// NewClient returns nil when redis is not configured.
func NewClient(lc fx.Lifecycle, l *zap.SugaredLogger, cfg *cfgpkg.Config) (*goredis.Client, error) {
	if cfg.Redis.Addr == "" {
		l.Infow("redis disabled; using in-process locks and cache invalidation")
		return nil, nil
	}
	cli := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := cli.Ping(pingCtx).Err(); err != nil {
				l.Errorw("redis ping failed", "addr", cfg.Redis.Addr, "err", err)
				return err
			}
			l.Infow("connected to redis", "addr", cfg.Redis.Addr)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return cli.Close()
		},
	})
	return cli, nil
}

func NewLocker(cli *goredis.Client) lock.Locker {
	if cli == nil {
		return lock.NewMemoryLocker()
	}
	return lock.NewRedisLocker(cli, lockPrefix)
}

var Module = fx.Options(
	fx.Provide(NewClient),
	fx.Provide(NewLocker),
)
