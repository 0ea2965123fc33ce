package audit

import (
	"context"

	auditdomain "github.com/smallbiznis/flagship/internal/audit/domain"
	"github.com/smallbiznis/flagship/internal/audit/repository"
	"github.com/smallbiznis/flagship/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(func(s *service.Service) auditdomain.Service { return s }),
	fx.Invoke(drainOnStop),
)

func drainOnStop(lc fx.Lifecycle, s *service.Service) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			s.Wait()
			return nil
		},
	})
}
