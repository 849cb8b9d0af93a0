package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pimworks/golden-cli/internal/consensus"
	"github.com/pimworks/golden-cli/internal/report"
)

var (
	consensusRecompute bool
	consensusExport    string
)

var consensusCmd = &cobra.Command{
	Use:   "consensus <product-id>",
	Short: "Show or recompute a product's multi-source consensus",
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

		if consensusRecompute {
			detail, err = env.API.RecomputeConsensus(ctx, productID)
			if err != nil {
				return err
			}

			// Re-apply stored manual resolutions over the fresh winners.
			resolver := consensus.NewResolver(env.Store)
			computed := make(map[string]any, len(detail.Results))
			for _, r := range detail.Results {
				computed[r.Attribute] = r.Value
			}
			outcome, err := resolver.ApplyRecompute(ctx, productID, computed)
			if err != nil {
				return err
			}
			for _, attr := range outcome.Skipped {
				zap.L().Info("kept manual resolution over recompute",
					zap.String("product_id", productID),
					zap.String("attribute", attr),
				)
			}
		}

		if consensusExport != "" {
			f, err := os.Create(consensusExport)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := report.WriteConsensusXLSX(detail, f); err != nil {
				return err
			}
			fmt.Printf("Exported consensus detail to %s\n", consensusExport)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Product\t%s\n", detail.ProductID)
		fmt.Fprintf(w, "Status\t%s\n", detail.Status)
		if detail.QualityScore != nil {
			fmt.Fprintf(w, "Quality score\t%.2f\n", *detail.QualityScore)
		}
		fmt.Fprintln(w)

		fmt.Fprintln(w, "ATTRIBUTE\tVALUE\tSOURCES\tCONFIDENCE")
		for _, r := range detail.Results {
			fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\n", r.Attribute, r.Value, r.SourcesCount, r.Confidence)
		}

		if len(detail.Conflicts) > 0 {
			fmt.Fprintln(w)
			fmt.Fprintln(w, "CONFLICT\tREASON\tOPTIONS")
			for _, c := range detail.Conflicts {
				options := consensus.ConflictOptions(c)
				fmt.Fprintf(w, "%s\t%s\t", c.AttributeName, c.Reason)
				for i, opt := range options {
					if i > 0 {
						fmt.Fprint(w, " | ")
					}
					fmt.Fprintf(w, "%s (%.2f, %d sources)", opt.Label, opt.Weight, opt.SourcesCount)
				}
				fmt.Fprintln(w)
			}
		}
		return w.Flush()
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <product-id> <attribute> <value>",
	Short: "Manually resolve a conflicted attribute",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		productID, attribute, value := args[0], args[1], args[2]

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		detail, err := env.API.ConsensusDetails(ctx, productID)
		if err != nil {
			return err
		}

		for _, c := range detail.Conflicts {
			if c.AttributeName != attribute {
				continue
			}
			resolver := consensus.NewResolver(env.Store)
			res, err := resolver.Resolve(ctx, productID, c, value, os.Getenv("USER"))
			if err != nil {
				return err
			}
			if _, err := env.API.ResolveConflict(ctx, productID, attribute, value, res.ResolvedBy); err != nil {
				return err
			}
			fmt.Printf("Resolved %s = %q (version %d)\n", attribute, value, res.Version)
			return nil
		}
		return fmt.Errorf("no open conflict for attribute %q", attribute)
	},
}

var reopenCmd = &cobra.Command{
	Use:   "reopen <product-id> <attribute>",
	Short: "Clear a manual resolution and return the attribute to automatic voting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		resolver := consensus.NewResolver(env.Store)
		version, err := resolver.Reopen(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		if version == 0 {
			fmt.Printf("No resolution recorded for %s\n", args[1])
			return nil
		}
		fmt.Printf("Reopened %s (cleared version %d)\n", args[1], version)
		return nil
	},
}

func init() {
	consensusCmd.Flags().BoolVar(&consensusRecompute, "recompute", false, "recompute consensus before displaying")
	consensusCmd.Flags().StringVar(&consensusExport, "export", "", "write consensus detail to an xlsx file")
	consensusCmd.AddCommand(resolveCmd)
	consensusCmd.AddCommand(reopenCmd)
	rootCmd.AddCommand(consensusCmd)
}
