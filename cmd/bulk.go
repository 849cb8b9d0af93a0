package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pimworks/golden-cli/internal/bulk"
	"github.com/pimworks/golden-cli/internal/model"
)

var (
	bulkLimit int
	retryMode string
)

var bulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Inspect and retry bulk ingestion runs",
}

var bulkRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent bulk ingestion runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		runs, err := env.API.ListBulkRuns(ctx, bulkLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RUN\tSTATUS\tPROCESSED\tERRORS\tCHECKPOINT\tUPDATED")
		for _, run := range runs {
			checkpoint := "No checkpoint yet"
			if run.Checkpoint != nil {
				checkpoint = bulk.CheckpointLabel(*run.Checkpoint)
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
				run.ID, run.Status, run.RecordsProcessed, run.ErrorCount,
				checkpoint, run.UpdatedAt.UTC().Format(time.RFC3339),
			)
		}
		return w.Flush()
	},
}

var bulkRetryCmd = &cobra.Command{
	Use:   "retry <run-id>",
	Short: "Retry a failed bulk ingestion run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		mode := model.RetryMode(retryMode)
		coordinator := bulk.NewCoordinator(env.API)

		if mode == model.RetryResume {
			run, err := env.API.GetBulkRun(ctx, args[0])
			if err != nil {
				return err
			}
			if run.Checkpoint == nil || !bulk.ResumeAvailable(*run.Checkpoint) {
				fmt.Fprintln(os.Stderr, "Warning: no checkpoint recorded; resume will reprocess from the start")
			}
		}

		run, err := coordinator.Retry(ctx, args[0], mode)
		if err != nil {
			return err
		}
		fmt.Printf("Run %s retried (%s), status now %s\n", run.ID, mode, run.Status)
		return nil
	},
}

func init() {
	bulkRunsCmd.Flags().IntVar(&bulkLimit, "limit", 20, "maximum runs to list")
	bulkRetryCmd.Flags().StringVar(&retryMode, "mode", string(model.RetryResume), "retry mode: resume or restart")
	bulkCmd.AddCommand(bulkRunsCmd)
	bulkCmd.AddCommand(bulkRetryCmd)
	rootCmd.AddCommand(bulkCmd)
}
