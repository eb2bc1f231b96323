// Package bucket implements bucket management subcommands.
package bucket

import (
	"github.com/spf13/cobra"
)

// Cmd is the bucket subcommand.
var Cmd = &cobra.Command{
	Use:   "bucket",
	Short: "Bucket management",
	Long: `Manage buckets.

Buckets hold versioned objects. The REST API deliberately has no bucket
listing; these commands inspect and manage buckets out of band, directly
on the catalog.

Subcommands:
  ls        List buckets
  create    Create a bucket
  snapshot  Snapshot a bucket
  lock      Lock a bucket against writes
  unlock    Unlock a bucket`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(createCmd)
	Cmd.AddCommand(snapshotCmd)
	Cmd.AddCommand(lockCmd)
	Cmd.AddCommand(unlockCmd)
}
