package location

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arcafs/arca/cmd/arca/cmdutil"
	"github.com/arcafs/arca/internal/cli/prompt"
)

var (
	addBackend string
	addDefault bool
	addYes     bool
)

var addCmd = &cobra.Command{
	Use:   "add <name> <uri>",
	Short: "Register a new location",
	Long: `Register a new storage location.

The URI is the storage root new blobs are placed under; its meaning
depends on the backend (a directory for fs, a bucket/prefix for s3). The
backend must be one of the instances configured under storage.backends.
With a single configured backend the --backend flag can be omitted.

Examples:
  # Add a location on the only configured backend
  arca location add main /srv/arca/blobs

  # Add a location on a specific backend and make it the default
  arca location add archive s3://backup-bucket/arca --backend s3 --default`,
	Args: cobra.ExactArgs(2),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVar(&addBackend, "backend", "", "Configured backend instance the location lives on")
	addCmd.Flags().BoolVar(&addDefault, "default", false, "Make this the default location for new buckets")
	addCmd.Flags().BoolVarP(&addYes, "yes", "y", false, "Skip confirmation prompts")
}

func runAdd(cmd *cobra.Command, args []string) error {
	name, uri := args[0], args[1]
	configPath, _ := cmd.Flags().GetString("config")

	ctx := context.Background()
	ws, err := cmdutil.Open(ctx, configPath)
	if err != nil {
		return err
	}
	defer ws.Close()

	backendName := addBackend
	if backendName == "" {
		names := make([]string, 0, len(ws.Config.Storage.Backends))
		for n := range ws.Config.Storage.Backends {
			names = append(names, n)
		}
		if len(names) != 1 {
			sort.Strings(names)
			return fmt.Errorf("--backend is required with multiple backends configured (have: %s)", strings.Join(names, ", "))
		}
		backendName = names[0]
	}

	// Making this location the default demotes the current one.
	if addDefault {
		current, err := defaultLocation(ctx, ws)
		if err != nil {
			return err
		}
		if current != "" && current != name {
			ok, err := prompt.ConfirmWithForce(
				fmt.Sprintf("This demotes the current default location %q. Continue", current), addYes)
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
	}

	loc, err := ws.Engine.CreateLocation(ctx, name, uri, backendName, addDefault)
	if err != nil {
		return err
	}

	fmt.Printf("Location %q created (backend: %s, default: %t)\n", loc.Name, loc.StorageBackend, loc.IsDefault)
	return nil
}

// defaultLocation returns the name of the current default location, or ""
// when none exists.
func defaultLocation(ctx context.Context, ws *cmdutil.Workspace) (string, error) {
	locations, err := ws.Engine.ListLocations(ctx)
	if err != nil {
		return "", err
	}
	for _, loc := range locations {
		if loc.IsDefault {
			return loc.Name, nil
		}
	}
	return "", nil
}
