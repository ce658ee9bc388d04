package main

import (
	"bufio"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/risk-cli/internal/artifact"
	"github.com/sells-group/risk-cli/internal/pipeline"
	"github.com/sells-group/risk-cli/internal/tabular"
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict risk for each location in a CSV",
	Long:  "Loads an artifact and writes a predictions CSV: the feature columns followed by Prediction and Probability. The input may be a features or aggregates CSV; the Risk column is optional.",
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		output, _ := cmd.Flags().GetString("output")

		p, err := artifact.Load(artifactPath(cmd))
		if err != nil {
			return eris.Wrap(err, "predict")
		}
		rows, err := tabular.ReadFile(input, tabular.ReadFeatures)
		if err != nil {
			return eris.Wrap(err, "predict")
		}
		preds := pipeline.Score(p, rows)

		out, err := createOutput(cmd.OutOrStdout(), output)
		if err != nil {
			return eris.Wrap(err, "predict")
		}
		bw := bufio.NewWriter(out)
		if err := tabular.WritePredictions(bw, preds); err != nil {
			out.Close() //nolint:errcheck
			return eris.Wrap(err, "predict")
		}
		if err := bw.Flush(); err != nil {
			out.Close() //nolint:errcheck
			return eris.Wrap(err, "predict: flush")
		}
		if err := out.Close(); err != nil {
			return eris.Wrap(err, "predict: close output")
		}

		high := 0
		for _, pr := range preds {
			high += pr.Predicted
		}
		zap.L().Info("predict complete",
			zap.Int("rows", len(preds)),
			zap.Int("high_risk", high),
		)
		return nil
	},
}

func init() {
	predictCmd.Flags().String("input", "", "features or aggregates CSV")
	predictCmd.Flags().String("output", "", "predictions CSV (stdout when empty)")
	predictCmd.Flags().String("artifact", "", "artifact path (default from artifact.path)")
	_ = predictCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(predictCmd)
}
