package migration

import (
	"strings"

	"github.com/smallbiznis/credits/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !strings.EqualFold(cfg.DBType, "postgres") {
			log.Named("migrations").Warn("embedded migrations target postgres; skipping",
				zap.String("db_type", cfg.DBType),
			)
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		version, err := Run(sqlDB, log.Named("migrations"))
		if err != nil {
			return err
		}
		log.Named("migrations").Info("ledger schema ready", zap.Uint("version", version))
		return nil
	}),
)
