package migrate

import (
	"context"
	"fmt"
	"time"

	"github.com/asbolsyn/mealmarket-backend/pkg/config"
	"github.com/asbolsyn/mealmarket-backend/pkg/db"
	"github.com/asbolsyn/mealmarket-backend/pkg/logger"
)

// autoRunReason explains why a process should migrate on boot; "" means it
// should not. The sqlite driver always migrates because its databases are
// local files or in-memory and have no separate migrate step.
func autoRunReason(cfg *config.Config) string {
	switch {
	case cfg.DB.IsSQLite():
		return "sqlite driver"
	case cfg.App.IsDev() && cfg.FeatureFlags.AutoMigrate:
		return "dev auto-migrate flag"
	}
	return ""
}

// MaybeRunDev applies the embedded migrations when autoRunReason allows it.
// Every binary calls it right after opening the database.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	reason := autoRunReason(cfg)
	if reason == "" {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	dialect := DialectFor(cfg.DB)
	ctx = logg.WithFields(ctx, map[string]any{"dialect": dialect, "reason": reason})
	start := time.Now()
	if err := UpEmbedded(ctx, sqlDB, dialect); err != nil {
		return fmt.Errorf("auto-migrate (%s): %w", reason, err)
	}
	logg.Info(logg.WithField(ctx, "duration_ms", time.Since(start).Milliseconds()), "schema up to date")
	return nil
}
