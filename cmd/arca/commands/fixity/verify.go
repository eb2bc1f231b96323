package fixity

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arcafs/arca/cmd/arca/cmdutil"
	"github.com/arcafs/arca/pkg/tasks"
)

var verifyPessimistic bool

var verifyCmd = &cobra.Command{
	Use:   "verify <file-id>",
	Short: "Queue a check for one file",
	Long: `Queue a checksum verification for one file instance.

The file is re-read from its backend, re-hashed and the result recorded
on the instance. With --pessimistic a missing blob fails the task
instead of just being recorded.

Examples:
  arca fixity verify 7c1de2ab-...

  arca fixity verify 7c1de2ab-... --pessimistic`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyPessimistic, "pessimistic", false, "Fail the task when the blob is missing")
}

func runVerify(cmd *cobra.Command, args []string) error {
	fileID := args[0]
	configPath, _ := cmd.Flags().GetString("config")

	ctx := context.Background()
	ws, err := cmdutil.Open(ctx, configPath)
	if err != nil {
		return err
	}
	defer ws.Close()

	// Surface typos now rather than as a failed task later.
	file, err := ws.Catalog.GetFileInstance(ctx, fileID)
	if err != nil {
		return err
	}

	queue, err := ws.OpenQueue()
	if err != nil {
		return err
	}
	defer func() { _ = queue.Close() }()

	task, err := tasks.NewTask(tasks.KindVerifyChecksum, tasks.VerifyChecksumPayload{
		FileID:      file.ID,
		Pessimistic: verifyPessimistic,
	})
	if err != nil {
		return err
	}
	if err := queue.Enqueue(ctx, task); err != nil {
		return err
	}

	fmt.Printf("Verification queued for file %s (task %s)\n", file.ID, task.ID)
	return nil
}
