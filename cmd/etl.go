package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/risk-cli/internal/pipeline"
	"github.com/sells-group/risk-cli/internal/tabular"
)

var etlCmd = &cobra.Command{
	Use:   "etl",
	Short: "Build labeled location aggregates from raw incidents",
	Long:  "Reads raw incidents from a JSON or CSV file (or the incident feed when --input is omitted), normalizes them, aggregates by location, labels each location against the median crime count, and writes the aggregates CSV.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		log := zap.L().With(zap.String("command", "etl"))

		input, _ := cmd.Flags().GetString("input")
		output, _ := cmd.Flags().GetString("output")

		raws, err := loadRaws(ctx, input, feedFlags(cmd))
		if err != nil {
			return eris.Wrap(err, "etl: load incidents")
		}

		res, err := pipeline.ETL(raws)
		if err != nil {
			return eris.Wrap(err, "etl")
		}

		if err := tabular.WriteFile(output, res.Rows, tabular.WriteAggregates); err != nil {
			return eris.Wrap(err, "etl")
		}
		log.Info("etl complete",
			zap.String("output", output),
			zap.Int("locations", len(res.Rows)),
			zap.Float64("median", res.Median),
		)
		return nil
	},
}

// addFeedFlags declares the feed pull flags shared by etl and run.
func addFeedFlags(cmd *cobra.Command) {
	cmd.Flags().String("input", "", "raw incidents file (.json or .csv); pulls from the feed when empty")
	cmd.Flags().String("from", "", "feed: earliest incident date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "feed: incidents before this date (YYYY-MM-DD)")
	cmd.Flags().Int("limit", 0, "feed: max incidents to pull (0 = all)")
}

func feedFlags(cmd *cobra.Command) feedQuery {
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	limit, _ := cmd.Flags().GetInt("limit")
	return feedQuery{from: from, to: to, limit: limit}
}

func init() {
	addFeedFlags(etlCmd)
	etlCmd.Flags().String("output", "data/aggregates.csv", "aggregates CSV to write")
	rootCmd.AddCommand(etlCmd)
}
