package fixity

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arcafs/arca/cmd/arca/cmdutil"
	"github.com/arcafs/arca/internal/bytesize"
	"github.com/arcafs/arca/pkg/tasks"
)

var (
	scheduleFrequency time.Duration
	scheduleMaxCount  int
	scheduleMaxSize   string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Queue a verification sweep",
	Long: `Queue one checksum verification scheduling pass.

The pass picks the files whose last check is oldest and queues a
verification task for each, within the given caps. Flags override the
configured fixity settings for this pass only; zero values keep them.

Examples:
  # Queue a pass with the configured settings
  arca fixity schedule

  # Re-verify everything not checked in the last week, at most 500 files
  arca fixity schedule --frequency 168h --max-count 500

  # Cap the pass by total bytes instead of file count
  arca fixity schedule --max-size 10GiB`,
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().DurationVar(&scheduleFrequency, "frequency", 0, "Re-check files not verified within this window")
	scheduleCmd.Flags().IntVar(&scheduleMaxCount, "max-count", 0, "Maximum files to queue in this pass")
	scheduleCmd.Flags().StringVar(&scheduleMaxSize, "max-size", "", "Maximum total bytes to queue in this pass (e.g. 10GiB)")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	var maxSize int64
	if scheduleMaxSize != "" {
		size, err := bytesize.ParseByteSize(scheduleMaxSize)
		if err != nil {
			return fmt.Errorf("invalid --max-size: %w", err)
		}
		maxSize = size.Int64()
	}

	ctx := context.Background()
	ws, err := cmdutil.Open(ctx, configPath)
	if err != nil {
		return err
	}
	defer ws.Close()

	queue, err := ws.OpenQueue()
	if err != nil {
		return err
	}
	defer func() { _ = queue.Close() }()

	task, err := tasks.NewTask(tasks.KindScheduleVerification, tasks.ScheduleVerificationPayload{
		Frequency: scheduleFrequency,
		MaxCount:  scheduleMaxCount,
		MaxSize:   maxSize,
	})
	if err != nil {
		return err
	}
	if err := queue.Enqueue(ctx, task); err != nil {
		return err
	}

	fmt.Printf("Verification pass queued (task %s)\n", task.ID)
	return nil
}
