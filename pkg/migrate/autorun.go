package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/db"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
)

// MaybeRunDev runs Bootstrap on boot only in dev with
// MARKETCORE_AUTO_MIGRATE set. Other environments run the migrate binary.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	return Bootstrap(logg.WithField(ctx, "env", cfg.App.Env), client, cfg.FeatureFlags.UseSQLite, logg)
}

// Bootstrap brings the schema up to date. The goose files are Postgres SQL,
// so sqlite gets AutoMigrate over the models instead.
func Bootstrap(ctx context.Context, client *db.Client, useSQLite bool, logg *logger.Logger) error {
	if useSQLite {
		if err := client.DB().WithContext(ctx).AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("sqlite automigrate: %w", err)
		}
		logg.Info(ctx, "sqlite schema built from models")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	runner, err := NewRunner(sqlDB, Migrations())
	if err != nil {
		return err
	}
	steps, err := runner.Up(ctx)
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "applied", len(steps)), "migrations applied")
	return nil
}
