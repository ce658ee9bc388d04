package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/risk-cli/internal/model"
	"github.com/sells-group/risk-cli/internal/store"
)

// Runner trains and records each attempt in a run store.
type Runner struct {
	store store.Store
}

// NewRunner returns a Runner backed by st. A nil store disables recording.
func NewRunner(st store.Store) *Runner {
	return &Runner{store: st}
}

// Train runs Train and records the attempt under inputPath. The returned
// run is nil when recording is disabled.
func (r *Runner) Train(ctx context.Context, inputPath string, rows []model.LocationAggregate, opts TrainOptions) (*TrainResult, *model.Run, error) {
	if r.store == nil {
		res, err := Train(ctx, rows, opts)
		return res, nil, err
	}

	run, err := r.store.CreateRun(ctx, inputPath)
	if err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: create run")
	}
	log := zap.L().With(zap.String("run_id", run.ID))
	log.Info("pipeline: training run started", zap.String("input", inputPath))

	res, trainErr := Train(ctx, rows, opts)
	if trainErr != nil {
		if err := r.store.FailRun(ctx, run.ID, trainErr.Error()); err != nil {
			log.Warn("pipeline: failed to record run failure", zap.Error(err))
		}
		return nil, run, trainErr
	}

	if err := r.store.CompleteRun(ctx, run.ID, res.RunResult()); err != nil {
		return res, run, eris.Wrap(err, "pipeline: complete run")
	}
	recorded, err := r.store.GetRun(ctx, run.ID)
	if err != nil {
		return res, run, eris.Wrap(err, "pipeline: reload run")
	}
	log.Info("pipeline: training run complete")
	return res, recorded, nil
}
