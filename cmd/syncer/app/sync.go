package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mkoziy/numbers/syncer/internal/models"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "sync <number-types|regulations>",
		Short:     "Run one sync job in the foreground",
		Long:      `Run one sync job to completion and print the final job as JSON. Exits non-zero when the job fails.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(models.JobTypeNumberTypes), string(models.JobTypeRegulations)},
		RunE:      runSync,
	}
}

func runSync(cmd *cobra.Command, args []string) error {
	jobType, err := models.ParseJobType(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := loadComponents(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	job, err := c.newOrchestrator().RunOnce(ctx, jobType)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(job); err != nil {
		return err
	}

	if job.Status == models.StatusFailed {
		msg := "unknown error"
		if job.Error != nil {
			msg = *job.Error
		}
		return fmt.Errorf("job %s failed: %s", job.ID, msg)
	}
	return nil
}
