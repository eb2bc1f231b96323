package bucket

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arcafs/arca/cmd/arca/cmdutil"
	"github.com/arcafs/arca/internal/cli/output"
)

var snapshotLock bool

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <bucket-id>",
	Short: "Snapshot a bucket",
	Long: `Create a snapshot of a bucket.

A snapshot is a new bucket containing a copy of every current head
version. Only catalog rows are copied; the blobs are shared with the
source, so a snapshot is cheap regardless of bucket size. With --lock
the snapshot rejects writes, freezing the captured state.

Examples:
  # Snapshot a bucket
  arca bucket snapshot 2f9c0a31-...

  # Snapshot and lock the copy
  arca bucket snapshot 2f9c0a31-... --lock`,
	Args: cobra.ExactArgs(1),
	RunE: runSnapshot,
}

func init() {
	snapshotCmd.Flags().BoolVar(&snapshotLock, "lock", false, "Lock the snapshot against writes")
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	srcID := args[0]
	configPath, _ := cmd.Flags().GetString("config")

	ctx := context.Background()
	ws, err := cmdutil.Open(ctx, configPath)
	if err != nil {
		return err
	}
	defer ws.Close()

	snap, err := ws.Engine.SnapshotBucket(ctx, srcID, snapshotLock)
	if err != nil {
		return err
	}

	objects, _, err := ws.Engine.BucketStats(ctx, snap.ID)
	if err != nil {
		return err
	}

	fmt.Printf("Snapshot %s created (objects: %s, size: %s, locked: %t)\n",
		snap.ID, output.FormatCount(objects), output.FormatBytes(snap.Size), snap.Locked)
	return nil
}
