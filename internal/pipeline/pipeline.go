// Package pipeline sequences the batch stages: normalize, aggregate and
// label, split, engineer features, fit, evaluate and save the artifact.
// Each stage runs to completion over the whole dataset before the next.
package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/risk-cli/internal/aggregate"
	"github.com/sells-group/risk-cli/internal/artifact"
	"github.com/sells-group/risk-cli/internal/classifier"
	"github.com/sells-group/risk-cli/internal/evaluate"
	"github.com/sells-group/risk-cli/internal/features"
	"github.com/sells-group/risk-cli/internal/inference"
	"github.com/sells-group/risk-cli/internal/model"
	"github.com/sells-group/risk-cli/internal/normalize"
	"github.com/sells-group/risk-cli/internal/split"
	"github.com/sells-group/risk-cli/internal/tabular"
)

// ErrNoTrainingRows is returned when no labeled row reaches the train
// partition.
var ErrNoTrainingRows = eris.New("pipeline: no labeled rows to train on")

// ETLResult is the labeled population built from raw incidents.
type ETLResult struct {
	Stats     normalize.Stats
	Rows      []model.LocationAggregate
	Median    float64
	Positives int
}

// ETL normalizes raw incidents, aggregates them by location and labels each
// location against the median crime count.
func ETL(raws []model.RawIncident) (*ETLResult, error) {
	log := zap.L().With(zap.String("stage", "etl"))

	incidents, stats := normalize.Normalize(raws)
	log.Info("pipeline: normalized incidents",
		zap.Int("input", stats.Input),
		zap.Int("kept", stats.Kept),
		zap.Int("dropped", stats.DroppedTotal()),
		zap.Any("dropped_by_reason", stats.Dropped),
	)

	res, err := aggregate.Build(incidents)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: aggregate")
	}
	log.Info("pipeline: labeled locations",
		zap.Int("locations", len(res.Rows)),
		zap.Float64("median", res.Median),
		zap.Int("high_risk", res.Positives()),
	)

	return &ETLResult{
		Stats:     stats,
		Rows:      res.Rows,
		Median:    res.Median,
		Positives: res.Positives(),
	}, nil
}

// TrainOptions configures Train.
type TrainOptions struct {
	Split  split.Options
	Kind   string
	Params classifier.Params
	// ArtifactPath is where the fitted pipeline is saved.
	ArtifactPath string
	// PartitionsDir, when set, receives train.csv, validation.csv and
	// test.csv feature files.
	PartitionsDir string
}

// DefaultTrainOptions returns the default split and GBDT parameters.
func DefaultTrainOptions(artifactPath string) TrainOptions {
	return TrainOptions{
		Split:        split.DefaultOptions(),
		Kind:         classifier.KindGBDT,
		Params:       classifier.DefaultParams(),
		ArtifactPath: artifactPath,
	}
}

// TrainResult is the outcome of a training pass.
type TrainResult struct {
	Median      float64
	Partitions  model.PartitionSizes
	Substituted int
	Pipeline    *inference.Pipeline
	Validation  evaluate.Metrics
	Test        evaluate.Metrics
	Artifact    artifact.Info
}

// RunResult converts the outcome into the form recorded by the run store.
func (r *TrainResult) RunResult() *model.RunResult {
	return &model.RunResult{
		ArtifactPath: r.Artifact.Path,
		Checksum:     r.Artifact.Checksum,
		Median:       r.Median,
		Partitions:   r.Partitions,
		Validation:   r.Validation.Map(),
		Test:         r.Test.Map(),
	}
}

// Train splits labeled aggregates, engineers features per partition, fits a
// fresh pipeline on the train partition, scores it on validation and test,
// and saves it to opts.ArtifactPath.
func Train(ctx context.Context, rows []model.LocationAggregate, opts TrainOptions) (*TrainResult, error) {
	if opts.ArtifactPath == "" {
		return nil, eris.New("pipeline: artifact path is required")
	}
	clf, err := newClassifier(opts.Kind, opts.Params)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("stage", "train"))
	res := &TrainResult{}

	counts := make([]int, len(rows))
	for i, r := range rows {
		counts[i] = r.CrimeCount
	}
	if res.Median, err = aggregate.Median(counts); err != nil {
		return nil, eris.Wrap(err, "pipeline: train")
	}

	var parts *split.Partitions
	if err := phase(log, "split", func() error {
		var err error
		parts, err = split.Split(rows, opts.Split)
		if err != nil {
			return eris.Wrap(err, "pipeline: split")
		}
		res.Partitions = parts.Sizes()
		log.Info("pipeline: partitions",
			zap.Int("train", res.Partitions.Train),
			zap.Int("validation", res.Partitions.Validation),
			zap.Int("test", res.Partitions.Test),
			zap.Int("excluded", res.Partitions.Excluded),
		)
		return nil
	}); err != nil {
		return nil, err
	}
	if len(parts.Train) == 0 {
		return nil, ErrNoTrainingRows
	}

	var set *features.Set
	if err := phase(log, "features", func() error {
		var err error
		set, err = features.EngineerPartitions(ctx, parts)
		if err != nil {
			return eris.Wrap(err, "pipeline: engineer features")
		}
		res.Substituted = set.Substituted
		if set.Substituted > 0 {
			log.Warn("pipeline: reference coordinate substituted",
				zap.Int("rows", set.Substituted),
			)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if opts.PartitionsDir != "" {
		if err := writePartitions(opts.PartitionsDir, set); err != nil {
			return nil, err
		}
	}

	res.Pipeline = inference.New(clf)
	if err := phase(log, "fit", func() error {
		return eris.Wrap(
			res.Pipeline.Fit(features.Matrix(set.Train), features.Labels(set.Train)),
			"pipeline: fit",
		)
	}); err != nil {
		return nil, err
	}

	if err := phase(log, "evaluate", func() error {
		var err error
		if res.Validation, err = evaluate.Evaluate(res.Pipeline, features.Matrix(set.Validation), features.Labels(set.Validation)); err != nil {
			return eris.Wrap(err, "pipeline: evaluate validation")
		}
		if res.Test, err = evaluate.Evaluate(res.Pipeline, features.Matrix(set.Test), features.Labels(set.Test)); err != nil {
			return eris.Wrap(err, "pipeline: evaluate test")
		}
		log.Info("pipeline: scores",
			zap.Float64("validation_accuracy", res.Validation.Accuracy),
			zap.Float64("validation_f1", res.Validation.F1),
			zap.Float64("test_accuracy", res.Test.Accuracy),
			zap.Float64("test_f1", res.Test.F1),
		)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := phase(log, "save", func() error {
		var err error
		res.Artifact, err = artifact.Save(opts.ArtifactPath, res.Pipeline)
		return eris.Wrap(err, "pipeline: save artifact")
	}); err != nil {
		return nil, err
	}
	log.Info("pipeline: artifact saved",
		zap.String("path", res.Artifact.Path),
		zap.String("checksum", res.Artifact.Checksum),
	)
	return res, nil
}

// Score engineers rows and predicts them with p.
func Score(p *inference.Pipeline, rows []model.FeatureRow) []model.Prediction {
	engineered := make([]model.FeatureRow, len(rows))
	for i, r := range rows {
		engineered[i] = features.Engineer(r)
	}
	return p.PredictRows(engineered)
}

// Evaluate scores p on the labeled rows. Rows with a missing label are
// skipped; the count of skipped rows is returned alongside the metrics.
func Evaluate(p *inference.Pipeline, rows []model.FeatureRow) (evaluate.Metrics, int, error) {
	labeled := make([]model.FeatureRow, 0, len(rows))
	for _, r := range rows {
		if r.Risk.Valid() {
			labeled = append(labeled, features.Engineer(r))
		}
	}
	m, err := evaluate.Evaluate(p, features.Matrix(labeled), features.Labels(labeled))
	if err != nil {
		return evaluate.Metrics{}, 0, eris.Wrap(err, "pipeline: evaluate")
	}
	return m, len(rows) - len(labeled), nil
}

func newClassifier(kind string, params classifier.Params) (classifier.Classifier, error) {
	if kind == "" || kind == classifier.KindGBDT {
		if err := params.Validate(); err != nil {
			return nil, err
		}
		return classifier.NewGBDT(params), nil
	}
	return classifier.New(kind)
}

func writePartitions(dir string, set *features.Set) error {
	files := []struct {
		name string
		rows []model.FeatureRow
	}{
		{"train.csv", set.Train},
		{"validation.csv", set.Validation},
		{"test.csv", set.Test},
	}
	for _, f := range files {
		if err := tabular.WriteFile(filepath.Join(dir, f.name), f.rows, tabular.WriteFeatures); err != nil {
			return eris.Wrapf(err, "pipeline: write %s partition", f.name)
		}
	}
	return nil
}

// phase runs fn and logs its duration and outcome.
func phase(log *zap.Logger, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start).Milliseconds()
	if err != nil {
		log.Error("pipeline: phase failed",
			zap.String("phase", name),
			zap.Int64("duration_ms", duration),
			zap.Error(err),
		)
		return err
	}
	log.Info("pipeline: phase complete",
		zap.String("phase", name),
		zap.Int64("duration_ms", duration),
	)
	return nil
}
