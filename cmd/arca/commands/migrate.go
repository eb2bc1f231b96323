package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arcafs/arca/internal/logger"
	"github.com/arcafs/arca/pkg/config"
	"github.com/arcafs/arca/pkg/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Run database migrations for the catalog database.

This command applies pending schema migrations to a PostgreSQL catalog.
It is required after upgrading arca when schema changes have been made,
unless the server is allowed to migrate at startup. SQLite catalogs
migrate themselves automatically and do not need this command.

Examples:
  # Run migrations with default config
  arca migrate

  # Run migrations with custom config
  arca migrate --config /etc/arca/config.yaml`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	// Initialize the structured logger
	if err := InitLogger(cfg); err != nil {
		return err
	}

	logger.Info("Running database migrations", "type", cfg.Database.Type)

	ctx := context.Background()
	if err := store.RunMigrations(ctx, &cfg.Database); err != nil {
		return err
	}

	version, dirty, err := store.MigrationVersion(&cfg.Database)
	if err != nil {
		return fmt.Errorf("migration verification failed: %w", err)
	}
	if dirty {
		return fmt.Errorf("schema version %d is dirty, manual intervention required", version)
	}

	fmt.Printf("Migrations completed successfully (schema version: %d)\n", version)
	return nil
}
