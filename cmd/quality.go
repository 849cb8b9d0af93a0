package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pimworks/golden-cli/internal/config"
	"github.com/pimworks/golden-cli/internal/model"
	"github.com/pimworks/golden-cli/internal/quality"
)

var (
	qualityLevel  string
	qualityRecord bool
)

var qualityCmd = &cobra.Command{
	Use:   "quality <product-id>",
	Short: "Score a product's golden record and evaluate promotion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		productID := args[0]

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		detail, err := env.API.ConsensusDetails(ctx, productID)
		if err != nil {
			return err
		}

		thresholds := qualityThresholds(cfg.Quality)
		weights := qualityWeights(cfg.Quality.Weights)

		specs := make(map[string]any, len(detail.Results))
		for _, r := range detail.Results {
			specs[r.Attribute] = r.Value
		}

		breakdown := quality.ComputeBreakdown(specs, detail.VotesByAttribute, thresholds.Golden.RequiredFields)
		score := quality.Score(breakdown, weights)

		level := model.QualityLevel(qualityLevel)
		if level == "" {
			level = model.QualityBronze
		}
		eval := quality.Evaluate(quality.Context{
			CurrentLevel: level,
			Score:        &score,
			SourceCount:  len(detail.Sources),
			Specs:        specs,
		}, thresholds)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Quality score\t%d%%\n", quality.Percent(score))
		percents := quality.ToPercents(&breakdown)
		fmt.Fprintf(w, "  Completeness\t%d%%\n", percents.Completeness)
		fmt.Fprintf(w, "  Accuracy\t%d%%\n", percents.Accuracy)
		fmt.Fprintf(w, "  Consistency\t%d%%\n", percents.Consistency)
		fmt.Fprintf(w, "  Source weight\t%d%%\n", percents.SourceWeight)
		fmt.Fprintln(w)

		fmt.Fprintf(w, "Current level\t%s\n", eval.CurrentLevel)
		if eval.NextLevel != "" {
			fmt.Fprintf(w, "Next level\t%s\n", eval.NextLevel)
		}
		if eval.Eligible {
			fmt.Fprintf(w, "Eligible\tyes\n")
		} else {
			fmt.Fprintf(w, "Eligible\tno\n")
			for _, m := range eval.Missing {
				fmt.Fprintf(w, "  -\t%s\n", m)
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}

		if qualityRecord && eval.Eligible && eval.NextLevel != "" {
			if err := env.Store.RecordPromotion(ctx, productID, eval.NextLevel, time.Now()); err != nil {
				return err
			}
			fmt.Printf("Recorded promotion to %s\n", eval.NextLevel)

			if eval.NextLevel == model.QualityGolden {
				count, err := env.Store.CountGolden(ctx)
				if err != nil {
					return err
				}
				if quality.MilestoneReached(count) {
					zap.L().Info("golden record milestone reached", zap.Int64("count", count))
					fmt.Printf("Milestone: %d golden records\n", count)
				}
			}
		}
		return nil
	},
}

var promotionsCmd = &cobra.Command{
	Use:   "promotions <product-id>",
	Short: "Show a product's promotion history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		ts, err := env.Store.GetPromotionTimestamps(ctx, args[0])
		if err != nil {
			return err
		}
		if ts.PromotedToSilverAt == nil && ts.PromotedToGoldenAt == nil {
			fmt.Println("No promotions recorded")
			return nil
		}
		if ts.PromotedToSilverAt != nil {
			fmt.Printf("Silver\t%s\n", ts.PromotedToSilverAt.UTC().Format(time.RFC3339))
		}
		if ts.PromotedToGoldenAt != nil {
			fmt.Printf("Golden\t%s\n", ts.PromotedToGoldenAt.UTC().Format(time.RFC3339))
		}
		return nil
	},
}

func qualityThresholds(qc config.QualityConfig) quality.Thresholds {
	th := quality.DefaultThresholds()
	if qc.Silver.MinScore > 0 {
		th.Silver = quality.LevelRequirements(qc.Silver)
	}
	if qc.Golden.MinScore > 0 {
		th.Golden = quality.LevelRequirements(qc.Golden)
	}
	return th
}

func qualityWeights(wc config.WeightsConfig) quality.Weights {
	if wc.Completeness+wc.Accuracy+wc.Consistency+wc.SourceWeight == 0 {
		return quality.DefaultWeights()
	}
	return quality.Weights(wc)
}

func init() {
	qualityCmd.Flags().StringVar(&qualityLevel, "level", "", "current quality level (default bronze)")
	qualityCmd.Flags().BoolVar(&qualityRecord, "record", false, "record the promotion locally when eligible")
	qualityCmd.AddCommand(promotionsCmd)
	rootCmd.AddCommand(qualityCmd)
}
