package migrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/portal-crm-backend/pkg/config"
	"github.com/angelmondragon/portal-crm-backend/pkg/db"
	"github.com/angelmondragon/portal-crm-backend/pkg/logger"
)

// skipReason explains why a boot does not auto-migrate; "" means it should.
func skipReason(cfg *config.Config) string {
	switch {
	case cfg == nil:
		return "no config"
	case !cfg.App.IsDev():
		return "not a dev environment"
	case !cfg.FeatureFlags.AutoMigrate:
		return "auto-migrate disabled"
	case cfg.FeatureFlags.UseSQLite:
		return "sqlite backend; migrations target postgres"
	}
	return ""
}

// MaybeRunDev applies pending migrations on dev boots with PORTAL_AUTO_MIGRATE
// set. The directory is validated first so a malformed file fails the boot
// before goose touches the schema.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if reason := skipReason(cfg); reason != "" {
		if cfg != nil && cfg.FeatureFlags.UseSQLite && cfg.FeatureFlags.AutoMigrate {
			logg.Warn(logg.WithField(ctx, "reason", reason), "migrations.autorun.skipped")
		}
		return nil
	}
	if client == nil {
		return errors.New("db client required for auto-migrate")
	}
	if err := ValidateDir(DefaultDir); err != nil {
		return fmt.Errorf("validate migrations: %w", err)
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dir": DefaultDir})
	logg.Info(ctx, "migrations.autorun.start")
	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	logg.Info(logg.WithField(ctx, "version", version), "migrations.autorun.complete")
	return nil
}
