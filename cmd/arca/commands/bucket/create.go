package bucket

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arcafs/arca/cmd/arca/cmdutil"
	"github.com/arcafs/arca/pkg/engine"
)

var (
	createLocation string
	createClass    string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a bucket",
	Long: `Create a new bucket.

Without flags the bucket is created in the default location with the
default storage class. The configured default quota and per-file size
limit are stamped onto the bucket at creation time.

Examples:
  # Create a bucket in the default location
  arca bucket create

  # Create a bucket in a specific location with a storage class
  arca bucket create --location archive --class A`,
	RunE: runCreate,
}

func init() {
	createCmd.Flags().StringVar(&createLocation, "location", "", "Location name (default: the default location)")
	createCmd.Flags().StringVar(&createClass, "class", "", "Storage class code (default: the configured default)")
}

func runCreate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	ctx := context.Background()
	ws, err := cmdutil.Open(ctx, configPath)
	if err != nil {
		return err
	}
	defer ws.Close()

	b, err := ws.Engine.CreateBucket(ctx, engine.CreateBucketParams{
		LocationName: createLocation,
		StorageClass: createClass,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Bucket %s created (location: %s, class: %s)\n",
		b.ID, b.DefaultLocation.Name, b.DefaultStorageClass)
	return nil
}
