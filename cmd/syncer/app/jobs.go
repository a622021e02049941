package app

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mkoziy/numbers/syncer/internal/jobs"
	"github.com/mkoziy/numbers/syncer/internal/models"
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent sync jobs",
		RunE:  runJobs,
	}
	cmd.Flags().Int("limit", jobs.DefaultListLimit, "Number of jobs to show")
	return cmd
}

func runJobs(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	c, err := loadComponents(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	list, err := c.store.List(ctx, limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "JOB ID\tTYPE\tSTATUS\tPROCESSED\tFAILED\tCREATED\tERROR")
	for _, j := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			j.ID, j.JobType, j.Status, progress(j), j.ItemsFailed,
			j.CreatedAt.Format(time.RFC3339), errText(j))
	}
	return w.Flush()
}

func progress(j *models.SyncJob) string {
	if j.ItemsTotal == nil {
		return fmt.Sprintf("%d/-", j.ItemsProcessed)
	}
	return fmt.Sprintf("%d/%d", j.ItemsProcessed, *j.ItemsTotal)
}

func errText(j *models.SyncJob) string {
	if j.Error == nil {
		return ""
	}
	return *j.Error
}
