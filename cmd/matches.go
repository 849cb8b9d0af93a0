package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pimworks/golden-cli/internal/api"
	"github.com/pimworks/golden-cli/internal/model"
)

var matchesCmd = &cobra.Command{
	Use:   "matches",
	Short: "Confirm, reject, or flag similarity matches",
}

var confirmCmd = &cobra.Command{
	Use:   "confirm <match-id>...",
	Short: "Confirm one or more matches",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateMatches(cmd, args, model.ConfidenceConfirmed)
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <match-id>...",
	Short: "Reject one or more matches",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateMatches(cmd, args, model.ConfidenceRejected)
	},
}

var primaryCmd = &cobra.Command{
	Use:   "primary <match-id>",
	Short: "Mark a match as the product's primary source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		match, err := env.API.MarkPrimary(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Match %s is now the primary source for product %s\n", match.ID, match.ProductID)
		return nil
	},
}

func updateMatches(cmd *cobra.Command, matchIDs []string, status model.ConfidenceStatus) error {
	ctx := cmd.Context()
	env, err := initEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	results := env.API.BatchUpdateConfidence(ctx, matchIDs, status, api.BatchOptions{
		Concurrency:   cfg.Batch.Concurrency,
		RatePerSecond: cfg.Batch.RatePerSecond,
	})

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", r.MatchID, r.Err)
		}
	}
	fmt.Printf("%d/%d matches updated to %s\n", api.BatchSucceeded(results), len(results), status)
	if failed > 0 {
		return fmt.Errorf("%d of %d updates failed", failed, len(results))
	}
	return nil
}

func init() {
	matchesCmd.AddCommand(confirmCmd)
	matchesCmd.AddCommand(rejectCmd)
	matchesCmd.AddCommand(primaryCmd)
	rootCmd.AddCommand(matchesCmd)
}
