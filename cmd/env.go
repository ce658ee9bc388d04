package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/risk-cli/internal/db"
	"github.com/sells-group/risk-cli/internal/model"
	"github.com/sells-group/risk-cli/internal/source"
	"github.com/sells-group/risk-cli/internal/store"
)

// initStore opens the configured run store and applies its migration.
func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("runs"); err != nil {
		return nil, err
	}
	return store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
}

// exportPool connects to the PostGIS export database.
func exportPool(ctx context.Context) (*pgxpool.Pool, error) {
	if err := cfg.Validate("export"); err != nil {
		return nil, err
	}
	return db.Connect(ctx, cfg.ExportURL())
}

// feedQuery bounds a feed pull.
type feedQuery struct {
	from, to string
	limit    int
}

func (q feedQuery) query() (source.Query, error) {
	var out source.Query
	var err error
	if out.From, err = parseDate(q.from); err != nil {
		return out, eris.Wrap(err, "--from")
	}
	if out.To, err = parseDate(q.to); err != nil {
		return out, eris.Wrap(err, "--to")
	}
	out.Limit = q.limit
	return out, nil
}

// loadRaws reads raw incidents from input, or pulls them from the feed when
// input is empty.
func loadRaws(ctx context.Context, input string, q feedQuery) ([]model.RawIncident, error) {
	if input != "" {
		return source.ReadFile(ctx, input)
	}
	if err := cfg.Validate("fetch"); err != nil {
		return nil, err
	}
	sq, err := q.query()
	if err != nil {
		return nil, err
	}
	return cfg.Source.Client().Fetch(ctx, sq)
}

// parseDate accepts YYYY-MM-DD or RFC 3339. Empty is the zero time.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, eris.Errorf("invalid date %q (want YYYY-MM-DD or RFC 3339)", s)
	}
	return t, nil
}

// createOutput opens path for writing, or returns stdout for "" and "-".
func createOutput(stdout io.Writer, path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, eris.Wrapf(err, "create %s", path)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
