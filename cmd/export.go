package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/risk-cli/internal/artifact"
	"github.com/sells-group/risk-cli/internal/db"
	"github.com/sells-group/risk-cli/internal/geospatial"
	"github.com/sells-group/risk-cli/internal/model"
	"github.com/sells-group/risk-cli/internal/pipeline"
	"github.com/sells-group/risk-cli/internal/tabular"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Upsert location features into PostGIS",
	Long:  "Reads a features or aggregates CSV and upserts each location as a SRID 4326 point keyed on its coordinates. With --artifact the rows are scored first and the prediction columns filled.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		input, _ := cmd.Flags().GetString("input")
		scoreWith, _ := cmd.Flags().GetString("artifact")
		migrate, _ := cmd.Flags().GetBool("migrate")
		if table, _ := cmd.Flags().GetString("table"); table != "" {
			cfg.Export.Table = table
		}

		rows, err := tabular.ReadFile(input, tabular.ReadFeatures)
		if err != nil {
			return eris.Wrap(err, "export")
		}
		var preds []model.Prediction
		if scoreWith != "" {
			p, err := artifact.Load(scoreWith)
			if err != nil {
				return eris.Wrap(err, "export")
			}
			preds = pipeline.Score(p, rows)
		}

		pool, err := exportPool(ctx)
		if err != nil {
			return eris.Wrap(err, "export")
		}
		defer pool.Close()

		n, err := exportRows(ctx, pool, migrate, cfg.Export.Table, rows, preds)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Exported %d locations to %s (%d rows affected)\n", len(rows), cfg.Export.Table, n)
		return nil
	},
}

// exportRows migrates when asked, then writes predictions when present and
// plain features otherwise.
func exportRows(ctx context.Context, pool db.Pool, migrate bool, table string, rows []model.FeatureRow, preds []model.Prediction) (int64, error) {
	if migrate {
		if err := geospatial.Migrate(ctx, pool); err != nil {
			return 0, eris.Wrap(err, "export: migrate")
		}
		zap.L().Info("export migrations applied")
	}

	var (
		n   int64
		err error
	)
	if preds != nil {
		n, err = geospatial.ExportPredictions(ctx, pool, table, preds)
	} else {
		n, err = geospatial.ExportFeatures(ctx, pool, table, rows)
	}
	if err != nil {
		return 0, eris.Wrap(err, "export")
	}
	return n, nil
}

func init() {
	exportCmd.Flags().String("input", "", "features or aggregates CSV")
	exportCmd.Flags().String("table", "", "target table (default from export.table)")
	exportCmd.Flags().String("artifact", "", "score rows with this artifact before exporting")
	exportCmd.Flags().Bool("migrate", true, "apply the PostGIS migrations first")
	_ = exportCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(exportCmd)
}
