package location

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arcafs/arca/cmd/arca/cmdutil"
	"github.com/arcafs/arca/internal/cli/prompt"
)

var setDefaultYes bool

var setDefaultCmd = &cobra.Command{
	Use:   "set-default <name>",
	Short: "Make a location the default for new buckets",
	Long: `Make the named location the default for new buckets.

The previous default is demoted. Existing buckets keep the location they
were created in; only new buckets without an explicit location are
affected.

Examples:
  arca location set-default archive`,
	Args: cobra.ExactArgs(1),
	RunE: runSetDefault,
}

func init() {
	setDefaultCmd.Flags().BoolVarP(&setDefaultYes, "yes", "y", false, "Skip confirmation prompt")
}

func runSetDefault(cmd *cobra.Command, args []string) error {
	name := args[0]
	configPath, _ := cmd.Flags().GetString("config")

	ctx := context.Background()
	ws, err := cmdutil.Open(ctx, configPath)
	if err != nil {
		return err
	}
	defer ws.Close()

	current, err := defaultLocation(ctx, ws)
	if err != nil {
		return err
	}
	if current == name {
		fmt.Printf("Location %q is already the default\n", name)
		return nil
	}
	if current != "" {
		ok, err := prompt.ConfirmWithForce(
			fmt.Sprintf("This demotes the current default location %q. Continue", current), setDefaultYes)
		if err != nil {
			if prompt.IsAborted(err) {
				fmt.Println("Aborted.")
				return nil
			}
			return err
		}
		if !ok {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := ws.Engine.SetDefaultLocation(ctx, name); err != nil {
		return err
	}

	fmt.Printf("Location %q is now the default\n", name)
	return nil
}
