package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/flagship/internal/app"
	"github.com/smallbiznis/flagship/internal/audit"
	"github.com/smallbiznis/flagship/internal/cache"
	"github.com/smallbiznis/flagship/internal/clock"
	"github.com/smallbiznis/flagship/internal/config"
	"github.com/smallbiznis/flagship/internal/environment"
	"github.com/smallbiznis/flagship/internal/evaluation"
	"github.com/smallbiznis/flagship/internal/flag"
	"github.com/smallbiznis/flagship/internal/migration"
	"github.com/smallbiznis/flagship/internal/observability"
	"github.com/smallbiznis/flagship/internal/propagation"
	"github.com/smallbiznis/flagship/internal/reconcile"
	"github.com/smallbiznis/flagship/internal/seed"
	"github.com/smallbiznis/flagship/internal/server"
	"github.com/smallbiznis/flagship/internal/user"
	"github.com/smallbiznis/flagship/pkg/db"
	"go.uber.org/fx"
)

func main() {
	application := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		cache.Module,
		clock.Module,

		// Functional Domains
		audit.Module,
		propagation.Module,
		app.Module,
		environment.Module,
		flag.Module,
		user.Module,
		evaluation.Module,

		// Background and bootstrap
		seed.Module,
		reconcile.Module,

		server.Module,
	)
	application.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
