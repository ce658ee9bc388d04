package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/risk-cli/internal/artifact"
	"github.com/sells-group/risk-cli/internal/pipeline"
	"github.com/sells-group/risk-cli/internal/tabular"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score a saved model against a labeled CSV",
	Long:  "Loads an artifact and reports accuracy, precision, recall, F1 and the confusion matrix over the labeled rows of a features or aggregates CSV.",
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		format, _ := cmd.Flags().GetString("format")
		path := artifactPath(cmd)

		p, info, err := artifact.Open(path)
		if err != nil {
			return eris.Wrap(err, "evaluate")
		}
		rows, err := tabular.ReadFile(input, tabular.ReadFeatures)
		if err != nil {
			return eris.Wrap(err, "evaluate")
		}

		m, skipped, err := pipeline.Evaluate(p, rows)
		if err != nil {
			return eris.Wrap(err, "evaluate")
		}
		zap.L().Info("evaluate complete",
			zap.String("artifact", path),
			zap.String("checksum", info.Checksum),
			zap.Int("rows", m.Total()),
			zap.Int("unlabeled_skipped", skipped),
		)
		return writeScores(cmd.OutOrStdout(), []namedMetrics{{Name: input, Metrics: m}}, format)
	},
}

// artifactPath returns --artifact, falling back to artifact.path.
func artifactPath(cmd *cobra.Command) string {
	if p, _ := cmd.Flags().GetString("artifact"); p != "" {
		return p
	}
	return cfg.Artifact.Path
}

func init() {
	evaluateCmd.Flags().String("input", "", "features or aggregates CSV with a Risk column")
	evaluateCmd.Flags().String("artifact", "", "artifact path (default from artifact.path)")
	evaluateCmd.Flags().String("format", "table", "output format: table, json or yaml")
	_ = evaluateCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(evaluateCmd)
}
