// Package source reads raw incident records from the city data portal or
// from local JSON and CSV exports.
package source

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/risk-cli/internal/fetcher"
	"github.com/sells-group/risk-cli/internal/model"
)

// Portal defaults for the Chicago "Crimes - 2001 to Present" dataset.
const (
	DefaultBaseURL  = "https://data.cityofchicago.org"
	DefaultDataset  = "ijzp-q8t2"
	DefaultPageSize = 50000

	// selectClause renames the portal columns to RawIncident's keys.
	selectClause = "date AS timestamp, latitude, longitude, primary_type AS category"
	floatingTime = "2006-01-02T15:04:05"
)

// Config locates the dataset.
type Config struct {
	BaseURL  string
	Dataset  string
	AppToken string
	PageSize int
}

// Query bounds a fetch. Zero times leave that side open; Limit 0 fetches
// everything that matches.
type Query struct {
	From  time.Time
	To    time.Time
	Limit int
}

// Client pages through a Socrata SODA resource.
type Client struct {
	f   fetcher.Fetcher
	cfg Config
}

// NewClient returns a client using f for transport.
func NewClient(f fetcher.Fetcher, cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{f: f, cfg: cfg}
}

// Fetch pulls every record matching q, one page at a time.
func (c *Client) Fetch(ctx context.Context, q Query) ([]model.RawIncident, error) {
	if !q.From.IsZero() && !q.To.IsZero() && !q.From.Before(q.To) {
		return nil, eris.Errorf("source: from %s is not before to %s", q.From.Format(time.DateOnly), q.To.Format(time.DateOnly))
	}
	log := zap.L().With(zap.String("dataset", c.cfg.Dataset))

	var header http.Header
	if c.cfg.AppToken != "" {
		header = http.Header{"X-App-Token": {c.cfg.AppToken}}
	}

	var out []model.RawIncident
	for offset := 0; ; {
		limit := c.cfg.PageSize
		if q.Limit > 0 {
			limit = min(limit, q.Limit-len(out))
		}

		page, err := c.fetchPage(ctx, c.pageURL(q, limit, offset), header)
		if err != nil {
			return nil, eris.Wrapf(err, "source: fetch page at offset %d", offset)
		}
		out = append(out, page...)
		log.Debug("source: fetched page",
			zap.Int("offset", offset),
			zap.Int("records", len(page)),
		)

		offset += len(page)
		if len(page) < limit || (q.Limit > 0 && len(out) >= q.Limit) {
			break
		}
	}

	log.Info("source: fetch complete", zap.Int("records", len(out)))
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, rawURL string, header http.Header) ([]model.RawIncident, error) {
	body, err := c.f.Get(ctx, rawURL, header)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck
	return ReadJSON(ctx, body)
}

// pageURL builds the SODA query for one page.
func (c *Client) pageURL(q Query, limit, offset int) string {
	v := url.Values{}
	v.Set("$select", selectClause)
	if where := whereClause(q); where != "" {
		v.Set("$where", where)
	}
	// Paging is only stable over a fixed order.
	v.Set("$order", ":id")
	v.Set("$limit", strconv.Itoa(limit))
	v.Set("$offset", strconv.Itoa(offset))
	return c.cfg.BaseURL + "/resource/" + url.PathEscape(c.cfg.Dataset) + ".json?" + v.Encode()
}

func whereClause(q Query) string {
	var parts []string
	if !q.From.IsZero() {
		parts = append(parts, "date >= '"+q.From.Format(floatingTime)+"'")
	}
	if !q.To.IsZero() {
		parts = append(parts, "date < '"+q.To.Format(floatingTime)+"'")
	}
	return strings.Join(parts, " AND ")
}
