package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/risk-cli/internal/pipeline"
	"github.com/sells-group/risk-cli/internal/tabular"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run etl and train in one pass",
	Long:  "Loads raw incidents, builds labeled aggregates, and trains and saves the model without an intermediate file. Use --aggregates to keep the aggregates CSV.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		input, _ := cmd.Flags().GetString("input")
		aggregatesPath, _ := cmd.Flags().GetString("aggregates")

		raws, err := loadRaws(ctx, input, feedFlags(cmd))
		if err != nil {
			return eris.Wrap(err, "run: load incidents")
		}
		etl, err := pipeline.ETL(raws)
		if err != nil {
			return eris.Wrap(err, "run")
		}
		if aggregatesPath != "" {
			if err := tabular.WriteFile(aggregatesPath, etl.Rows, tabular.WriteAggregates); err != nil {
				return eris.Wrap(err, "run")
			}
		}

		recorded := input
		if recorded == "" {
			recorded = cfg.Source.BaseURL + "/resource/" + cfg.Source.Dataset
		}
		res, run, err := trainRows(ctx, cmd, recorded, etl.Rows)
		if err != nil {
			return err
		}
		return printTrainResult(cmd, res, run)
	},
}

func init() {
	addFeedFlags(runCmd)
	addTrainFlags(runCmd)
	runCmd.Flags().String("aggregates", "", "also write the aggregates CSV here")
	rootCmd.AddCommand(runCmd)
}
