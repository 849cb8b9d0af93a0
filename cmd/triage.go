package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pimworks/golden-cli/internal/api"
	"github.com/pimworks/golden-cli/internal/model"
	"github.com/pimworks/golden-cli/internal/triage"
)

var (
	triageStatus  string
	triageLimit   int
	triageShowAll bool
)

var triageCmd = &cobra.Command{
	Use:   "triage <product-id>",
	Short: "Classify a product's similarity matches into automation tiers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		matches, err := env.API.ListMatches(ctx, args[0], api.ListMatchesOptions{
			Status: model.ConfidenceStatus(triageStatus),
			Limit:  triageLimit,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "MATCH\tSCORE\tDECISION\tSOURCE\tEXTRACTION\tREVIEW")
		for _, m := range matches {
			decision := triage.Classify(&m)

			// Local overrides beat computed decisions the same way stored
			// backend decisions do.
			override, ok, err := env.Store.GetTriageOverride(ctx, m.ID)
			switch {
			case err != nil:
				zap.L().Warn("reading triage override, falling back to computed decision",
					zap.String("match_id", m.ID),
					zap.Error(err),
				)
			case ok:
				decision = triage.Decision{Source: triage.DecisionStored, Tier: override}
			}

			if !triageShowAll && !decision.Known() {
				continue
			}

			tier := "unknown"
			if decision.Known() {
				tier = string(decision.Tier)
			}
			review := ""
			if triage.RequiresHumanReview(&m) {
				review = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				m.ID, m.SimilarityScore, tier, decision.Source,
				triage.ExtractionStatus(&m), review,
			)
		}
		return w.Flush()
	},
}

var triageStatsCmd = &cobra.Command{
	Use:   "stats <product-id>",
	Short: "Summarize triage progress across a product's matches",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		matches, err := env.API.ListMatches(ctx, args[0], api.ListMatchesOptions{Limit: triageLimit})
		if err != nil {
			return err
		}

		stats := triage.ComputeStats(matches)
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Total\t%d\n", stats.Total)
		fmt.Fprintf(w, "Pending\t%d\n", stats.Pending)
		fmt.Fprintf(w, "Confirmed\t%d\n", stats.Confirmed)
		fmt.Fprintf(w, "Rejected\t%d\n", stats.Rejected)
		fmt.Fprintf(w, "Auto-approved\t%d\n", stats.AutoApproved)
		fmt.Fprintf(w, "AI audit pending\t%d\n", stats.AIAuditPending)
		fmt.Fprintf(w, "AI audit completed\t%d\n", stats.AIAuditCompleted)
		fmt.Fprintf(w, "HITL pending\t%d\n", stats.HITLPending)
		fmt.Fprintf(w, "Unclassified\t%d\n", stats.Unclassified)
		fmt.Fprintf(w, "Avg similarity\t%.4f\n", stats.AvgSimilarityScore)
		return w.Flush()
	},
}

var triageOverrideCmd = &cobra.Command{
	Use:   "override <match-id> <decision>",
	Short: "Record a reviewer's triage decision for one match",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		decision, ok := model.ParseTriageDecision(args[1])
		if !ok {
			return fmt.Errorf("unknown decision %q (want auto_approve, ai_audit, hitl_required, or rejected)", args[1])
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.SaveTriageOverride(ctx, args[0], decision, os.Getenv("USER")); err != nil {
			return err
		}
		fmt.Printf("Match %s overridden to %s\n", args[0], decision)
		return nil
	},
}

func init() {
	triageCmd.Flags().StringVar(&triageStatus, "status", "", "filter by confidence status (pending, confirmed, rejected, uncertain)")
	triageCmd.Flags().IntVar(&triageLimit, "limit", 0, "maximum matches to fetch")
	triageCmd.Flags().BoolVar(&triageShowAll, "all", false, "include matches with unparseable scores")
	triageCmd.AddCommand(triageStatsCmd)
	triageCmd.AddCommand(triageOverrideCmd)
	rootCmd.AddCommand(triageCmd)
}
