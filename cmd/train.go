package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/risk-cli/internal/model"
	"github.com/sells-group/risk-cli/internal/pipeline"
	"github.com/sells-group/risk-cli/internal/split"
	"github.com/sells-group/risk-cli/internal/store"
	"github.com/sells-group/risk-cli/internal/tabular"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train and save the risk model from labeled aggregates",
	Long:  "Splits labeled aggregates 70/15/15 with stratification, engineers features, fits the imputer, scaler and classifier on the train partition, scores validation and test, saves the artifact, and records the run.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		input, _ := cmd.Flags().GetString("input")
		rows, err := tabular.ReadFile(input, tabular.ReadAggregates)
		if err != nil {
			return eris.Wrap(err, "train")
		}

		res, run, err := trainRows(ctx, cmd, input, rows)
		if err != nil {
			return err
		}
		return printTrainResult(cmd, res, run)
	},
}

// trainOptions builds the training options from config and flags.
func trainOptions(cmd *cobra.Command) (pipeline.TrainOptions, error) {
	if artifactPath, _ := cmd.Flags().GetString("artifact"); artifactPath != "" {
		cfg.Artifact.Path = artifactPath
	}
	if err := cfg.Validate("train"); err != nil {
		return pipeline.TrainOptions{}, err
	}
	params, err := cfg.Model.Hyperparameters()
	if err != nil {
		return pipeline.TrainOptions{}, err
	}

	seed, _ := cmd.Flags().GetUint64("seed")
	dir, _ := cmd.Flags().GetString("partitions-dir")
	return pipeline.TrainOptions{
		Split:         split.Options{Ratios: split.DefaultRatios, Seed: seed},
		Kind:          cfg.Model.Kind,
		Params:        params,
		ArtifactPath:  cfg.Artifact.Path,
		PartitionsDir: dir,
	}, nil
}

// trainRows trains on rows and records the run unless --no-record is set.
func trainRows(ctx context.Context, cmd *cobra.Command, input string, rows []model.LocationAggregate) (*pipeline.TrainResult, *model.Run, error) {
	opts, err := trainOptions(cmd)
	if err != nil {
		return nil, nil, err
	}

	var st store.Store
	if noRecord, _ := cmd.Flags().GetBool("no-record"); !noRecord {
		if st, err = initStore(ctx); err != nil {
			return nil, nil, err
		}
		defer st.Close() //nolint:errcheck
	}

	res, run, err := pipeline.NewRunner(st).Train(ctx, input, rows, opts)
	if err != nil {
		return nil, run, eris.Wrap(err, "train")
	}
	return res, run, nil
}

func printTrainResult(cmd *cobra.Command, res *pipeline.TrainResult, run *model.Run) error {
	out := cmd.OutOrStdout()
	if run != nil {
		_, _ = fmt.Fprintf(out, "Run:        %s\n", run.ID)
	}
	_, _ = fmt.Fprintf(out, "Artifact:   %s (sha256 %s)\n", res.Artifact.Path, truncateID(res.Artifact.Checksum))
	_, _ = fmt.Fprintf(out, "Median:     %g\n", res.Median)
	_, _ = fmt.Fprintf(out, "Partitions: train=%d validation=%d test=%d excluded=%d\n",
		res.Partitions.Train, res.Partitions.Validation, res.Partitions.Test, res.Partitions.Excluded)
	_, _ = fmt.Fprintln(out)
	if err := writeScores(out, []namedMetrics{
		{"validation", res.Validation},
		{"test", res.Test},
	}, "table"); err != nil {
		return err
	}
	zap.L().Info("train complete", zap.String("artifact", res.Artifact.Path))
	return nil
}

// addTrainFlags declares the training flags shared by train and run.
func addTrainFlags(cmd *cobra.Command) {
	cmd.Flags().String("artifact", "", "artifact path (default from artifact.path)")
	cmd.Flags().String("partitions-dir", "", "also write train/validation/test feature CSVs here")
	cmd.Flags().Uint64("seed", split.DefaultSeed, "split seed")
	cmd.Flags().Bool("no-record", false, "do not record the run in the store")
}

func init() {
	trainCmd.Flags().String("input", "data/aggregates.csv", "labeled aggregates CSV")
	addTrainFlags(trainCmd)
	rootCmd.AddCommand(trainCmd)
}
