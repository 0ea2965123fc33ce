package seed

import (
	"context"

	appdomain "github.com/smallbiznis/flagship/internal/app/domain"
	"github.com/smallbiznis/flagship/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("seed",
	fx.Invoke(registerBootstrap),
)

func registerBootstrap(lc fx.Lifecycle, cfg config.Config, apps appdomain.Service, log *zap.Logger) {
	if cfg.BootstrapAppName == "" {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			_, err := EnsureDefaultApp(ctx, apps, cfg.BootstrapAppName, log.Named("seed"))
			return err
		},
	})
}
