package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/linkea-sync/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupDatabase creates the config file when missing, then initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	configPath := r.configPath
	if configPath == "" {
		configPath = "config.toml"
	}

	if _, err := os.Stat(configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else {
			r.logger.Info("config file created", "path", configPath)
		}
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)

	if _, err := r.userRepo(ctx); err != nil {
		return err
	}

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(ctx, r.db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	status, err := shared.Migrations(ctx, r.db)
	if err != nil {
		return fmt.Errorf("failed to read migration status: %w", err)
	}
	for _, m := range status {
		r.logger.Debug("migration", "version", m.Version, "name", m.Name, "applied", m.Applied)
	}

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	r.writePlain("%s Database ready at %s (%d migrations)\n", styles.ok.Render("✓"), r.config.Database.Path, len(status))
	return nil
}
