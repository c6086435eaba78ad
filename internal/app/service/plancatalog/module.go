package plancatalog

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/plankeeper/pkg/config"
)

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, svc *Service, log *zap.SugaredLogger) {
	listenCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := svc.Seed(ctx, cfg.Plans); err != nil {
				return err
			}
			if err := svc.Reload(ctx); err != nil {
				return err
			}
			go svc.Listen(listenCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return nil
		},
	})
}

// Module exposes the plan catalog via Fx.
var Module = fx.Options(
	fx.Provide(NewService),
	fx.Invoke(registerLifecycle),
)
