package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arcafs/arca/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the arca configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  arca config validate

  # Validate specific config file
  arca config validate --config /etc/arca/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	// Get config path from parent's persistent flag
	configPath, _ := cmd.Flags().GetString("config")

	// Load and validate configuration
	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	// Determine path for display
	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	// Additional validation checks
	var warnings []string

	// Check JWT secret is configured
	if !cfg.Auth.Enabled && cfg.Auth.JWT.Secret == "" {
		warnings = append(warnings, "JWT secret not configured - enabling auth later will require one")
	}

	if !cfg.Fixity.IsEnabled() {
		warnings = append(warnings, "Fixity verification disabled - stored checksums will not be revalidated")
	}

	if !cfg.Server.IsEnabled() {
		warnings = append(warnings, "API server disabled - this node only runs maintenance")
	}

	// Print results
	fmt.Printf("Configuration file: %s\n", displayPath)
	fmt.Println("Validation: OK")

	if len(warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	fmt.Printf("\nConfiguration summary:\n")
	fmt.Printf("  Database type:   %s\n", cfg.Database.Type)
	fmt.Printf("  Backends:        %d\n", len(cfg.Storage.Backends))
	fmt.Printf("  API port:        %d\n", cfg.Server.Port)
	fmt.Printf("  Auth enabled:    %t\n", cfg.Auth.Enabled)
	fmt.Printf("  Log level:       %s\n", cfg.Logging.Level)

	return nil
}
