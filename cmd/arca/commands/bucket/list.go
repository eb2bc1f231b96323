package bucket

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/arcafs/arca/cmd/arca/cmdutil"
	"github.com/arcafs/arca/internal/cli/output"
)

var listOutput string

var listCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List buckets",
	Long: `List all buckets with their location, size and state.

Examples:
  # List buckets as a table
  arca bucket ls

  # Output as JSON
  arca bucket ls --output json`,
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

	buckets, err := ws.Engine.ListBuckets(ctx)
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, buckets)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, buckets)
	default:
		table := output.NewTableData("ID", "LOCATION", "SIZE", "QUOTA", "LOCKED", "CREATED")
		for _, b := range buckets {
			locked := ""
			if b.Locked {
				locked = "yes"
			}
			table.AddRow(
				b.ID,
				b.DefaultLocation.Name,
				output.FormatBytes(b.Size),
				output.FormatBytesPtr(b.QuotaSize),
				locked,
				b.CreatedAt.Format(time.RFC3339),
			)
		}
		return output.PrintTable(os.Stdout, table)
	}
}
