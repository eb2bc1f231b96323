package bucket

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arcafs/arca/cmd/arca/cmdutil"
)

var lockCmd = &cobra.Command{
	Use:   "lock <bucket-id>",
	Short: "Lock a bucket against writes",
	Long: `Lock a bucket.

A locked bucket rejects uploads, deletes and tag changes; reads keep
working. Snapshots are often locked to freeze the captured state.

Examples:
  # Lock a bucket
  arca bucket lock 2f9c0a31-...`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetLock(cmd, args[0], true)
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock <bucket-id>",
	Short: "Unlock a bucket",
	Long: `Unlock a previously locked bucket, making it writable again.

Examples:
  # Unlock a bucket
  arca bucket unlock 2f9c0a31-...`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetLock(cmd, args[0], false)
	},
}

func runSetLock(cmd *cobra.Command, bucketID string, locked bool) error {
	configPath, _ := cmd.Flags().GetString("config")

	ctx := context.Background()
	ws, err := cmdutil.Open(ctx, configPath)
	if err != nil {
		return err
	}
	defer ws.Close()

	if err := ws.Engine.SetBucketLock(ctx, bucketID, locked); err != nil {
		return err
	}

	state := "locked"
	if !locked {
		state = "unlocked"
	}
	fmt.Printf("Bucket %s %s\n", bucketID, state)
	return nil
}
