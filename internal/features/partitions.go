package features

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/sells-group/risk-cli/internal/model"
	"github.com/sells-group/risk-cli/internal/split"
)

// Set is a split population with features computed.
type Set struct {
	Train      []model.FeatureRow
	Validation []model.FeatureRow
	Test       []model.FeatureRow
	// Substituted counts rows whose distance used a reference coordinate.
	Substituted int
}

// EngineerAll applies FromAggregate to each row. It returns the feature rows
// and how many of them had a coordinate substituted.
func EngineerAll(rows []model.LocationAggregate) ([]model.FeatureRow, int) {
	out := make([]model.FeatureRow, len(rows))
	substituted := 0
	for i, r := range rows {
		out[i] = FromAggregate(r)
		if Substituted(out[i]) {
			substituted++
		}
	}
	return out, substituted
}

// EngineerPartitions computes features for the three partitions
// concurrently. Each goroutine writes only its own partition.
func EngineerPartitions(ctx context.Context, parts *split.Partitions) (*Set, error) {
	var set Set
	var subs [3]int

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		set.Train, subs[0] = EngineerAll(parts.Train)
		return nil
	})
	g.Go(func() error {
		set.Validation, subs[1] = EngineerAll(parts.Validation)
		return nil
	})
	g.Go(func() error {
		set.Test, subs[2] = EngineerAll(parts.Test)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	set.Substituted = subs[0] + subs[1] + subs[2]
	return &set, nil
}
