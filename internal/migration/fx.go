package migration

import (
	"github.com/smallbiznis/flagship/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(applyOnBoot),
)

// applyOnBoot runs before any service serves traffic; fx stops on failure.
func applyOnBoot(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	if err := Apply(conn, cfg.DBType); err != nil {
		log.Error("schema migration failed", zap.String("dialect", cfg.DBType), zap.Error(err))
		return err
	}
	log.Info("schema ready", zap.String("dialect", cfg.DBType))
	return nil
}
