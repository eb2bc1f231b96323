// Package location implements storage location management subcommands.
package location

import (
	"github.com/spf13/cobra"
)

// Cmd is the location subcommand.
var Cmd = &cobra.Command{
	Use:   "location",
	Short: "Storage location management",
	Long: `Manage storage locations.

A location is a named storage root: a configured blob backend plus a base
URI under it. Buckets are created in a location, and files can later be
migrated between locations. Exactly one location is the default for new
buckets.

These commands operate on the catalog directly; the server does not need
to be running.

Subcommands:
  add          Register a new location
  ls           List locations
  set-default  Make a location the default for new buckets`,
}

func init() {
	Cmd.AddCommand(addCmd)
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(setDefaultCmd)
}
