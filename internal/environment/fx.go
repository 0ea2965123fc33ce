package environment

import (
	"github.com/smallbiznis/flagship/internal/environment/repository"
	"github.com/smallbiznis/flagship/internal/environment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("environment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
