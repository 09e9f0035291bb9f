package migration

import (
	auditdomain "github.com/ajoure/reconcile/internal/audit/domain"
	"github.com/ajoure/reconcile/internal/config"
	paymentdomain "github.com/ajoure/reconcile/internal/payment/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// sqlite and mysql are dev/test dialects; the versioned SQL
			// targets postgres.
			return conn.AutoMigrate(
				&paymentdomain.Payment{},
				&paymentdomain.StagingEntry{},
				&auditdomain.AuditLog{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
