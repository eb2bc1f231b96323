// Package fixity implements checksum verification subcommands.
package fixity

import (
	"github.com/spf13/cobra"
)

// Cmd is the fixity subcommand.
var Cmd = &cobra.Command{
	Use:   "fixity",
	Short: "Checksum verification",
	Long: `Schedule checksum verification of stored files.

Every stored blob carries the checksum computed on ingest. Fixity tasks
re-read the blob, re-hash it and record whether the content still
matches. The recurring sweep does this continuously; these commands
queue additional checks by hand.

The commands enqueue into the embedded task queue, which the running
server holds an exclusive lock on. Stop the server first; the queued
tasks run when it starts again.

Subcommands:
  schedule  Queue a verification sweep
  verify    Queue a check for one file`,
}

func init() {
	Cmd.AddCommand(scheduleCmd)
	Cmd.AddCommand(verifyCmd)
}
