package location

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/arcafs/arca/cmd/arca/cmdutil"
	"github.com/arcafs/arca/internal/cli/output"
)

var listOutput string

var listCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List locations",
	Long: `List the registered storage locations.

Examples:
  # List locations as a table
  arca location ls

  # Output as JSON
  arca location ls --output json`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVarP(&listOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

func runList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(listOutput)
	if err != nil {
		return err
	}

	configPath, _ := cmd.Flags().GetString("config")

	ctx := context.Background()
	ws, err := cmdutil.Open(ctx, configPath)
	if err != nil {
		return err
	}
	defer ws.Close()

	locations, err := ws.Engine.ListLocations(ctx)
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, locations)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, locations)
	default:
		table := output.NewTableData("NAME", "BACKEND", "URI", "DEFAULT")
		for _, loc := range locations {
			def := ""
			if loc.IsDefault {
				def = "*"
			}
			table.AddRow(loc.Name, loc.StorageBackend, loc.URI, def)
		}
		return output.PrintTable(os.Stdout, table)
	}
}
