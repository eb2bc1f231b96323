package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/arcafs/arca/internal/cli/prompt"
	"github.com/arcafs/arca/pkg/auth"
	"github.com/arcafs/arca/pkg/config"
	"github.com/arcafs/arca/pkg/store"
)

var (
	initForce       bool
	initInteractive bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file",
	Long: `Initialize an arca configuration file.

By default, a configuration file with defaults is created at
$XDG_CONFIG_HOME/arca/config.yaml. Use --config to specify a custom path,
or --interactive to answer a few questions (database, storage directory,
port, authentication) instead of editing the file afterwards.

Examples:
  # Initialize with default location
  arca config init

  # Interactive setup
  arca config init --interactive

  # Initialize with custom path
  arca config init --config /etc/arca/config.yaml

  # Force overwrite existing config
  arca config init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
	initCmd.Flags().BoolVarP(&initInteractive, "interactive", "i", false, "Prompt for the common settings")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")

	configPath := configFile
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	var err error
	if initInteractive {
		err = runInteractiveInit(configPath)
	} else if configFile != "" {
		err = config.InitConfigToPath(configFile, initForce)
	} else {
		_, err = config.InitConfig(initForce)
	}
	if err != nil {
		if prompt.IsAborted(err) {
			fmt.Println("Aborted.")
			return nil
		}
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Review the configuration file and adjust as needed")
	fmt.Println("  2. Start the server with: arca start")
	fmt.Printf("  3. Or specify custom config: arca start --config %s\n", configPath)
	fmt.Println("\nSecurity note:")
	fmt.Println("  A random JWT secret has been generated for development use.")
	fmt.Println("  For production, generate a secure secret and use an environment variable:")
	fmt.Println("    # Generates a 64-character hex string (32 bytes of entropy)")
	fmt.Println("    export ARCA_AUTH_JWT_SECRET=$(openssl rand -hex 32)")

	return nil
}

// runInteractiveInit walks through the common settings and writes the
// resulting configuration.
func runInteractiveInit(path string) error {
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
	}

	cfg := config.GetDefaultConfig()

	// Catalog database
	dbType, err := prompt.Select("Catalog database", []prompt.SelectOption{
		{Label: "SQLite (single node, zero setup)", Value: string(store.DatabaseTypeSQLite)},
		{Label: "PostgreSQL", Value: string(store.DatabaseTypePostgres)},
	})
	if err != nil {
		return err
	}
	cfg.Database.Type = store.DatabaseType(dbType)

	if cfg.Database.Type == store.DatabaseTypePostgres {
		if cfg.Database.Postgres.Host, err = prompt.Input("PostgreSQL host", "localhost"); err != nil {
			return err
		}
		if cfg.Database.Postgres.Port, err = prompt.InputPort("PostgreSQL port", 5432); err != nil {
			return err
		}
		if cfg.Database.Postgres.Database, err = prompt.Input("Database name", "arca"); err != nil {
			return err
		}
		if cfg.Database.Postgres.User, err = prompt.Input("Database user", "arca"); err != nil {
			return err
		}
		if cfg.Database.Postgres.Password, err = prompt.Password("Database password"); err != nil {
			return err
		}
	}

	// Blob storage root for the default fs backend
	fsRoot := ""
	if fs, ok := cfg.Storage.Backends["fs"]; ok {
		if root, ok := fs.Params["root"].(string); ok {
			fsRoot = root
		}
	}
	root, err := prompt.Input("Blob storage directory", fsRoot)
	if err != nil {
		return err
	}
	cfg.Storage.Backends["fs"] = config.BackendConfig{
		Type: "fs",
		Params: map[string]any{
			"root":       root,
			"create_dir": true,
		},
	}

	// API port
	if cfg.Server.Port, err = prompt.InputPort("API port", cfg.Server.Port); err != nil {
		return err
	}

	// Authentication
	enableAuth, err := prompt.Confirm("Enable authentication", false)
	if err != nil {
		return err
	}
	if enableAuth {
		username, err := prompt.InputRequired("Admin username")
		if err != nil {
			return err
		}
		password, err := prompt.PasswordWithConfirmation("Admin password", "Confirm password", 8)
		if err != nil {
			return err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		cfg.Auth.Enabled = true
		cfg.Auth.Users = []auth.User{{
			Username:     username,
			PasswordHash: string(hash),
			Role:         auth.RoleAdmin,
		}}
	}

	secret, err := config.GenerateJWTSecret()
	if err != nil {
		return fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	cfg.Auth.JWT.Secret = secret

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return config.SaveConfig(cfg, path)
}
