package app

import (
	"github.com/smallbiznis/flagship/internal/app/repository"
	"github.com/smallbiznis/flagship/internal/app/service"
	"go.uber.org/fx"
)

var Module = fx.Module("app.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
