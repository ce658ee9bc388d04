package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/risk-cli/internal/fetcher"
	"github.com/sells-group/risk-cli/internal/model"
)

func testFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:         "risk-cli-test",
		Timeout:           5 * time.Second,
		MaxRetries:        2,
		RequestsPerSecond: 1000,
		BackoffBase:       time.Millisecond,
	})
}

// portal serves total synthetic records, honoring $limit and $offset.
func portal(t *testing.T, total int, check func(*http.Request)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if check != nil {
			check(r)
		}
		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("$limit"))
		offset, _ := strconv.Atoi(q.Get("$offset"))

		var page []map[string]any
		for i := offset; i < min(total, offset+limit); i++ {
			page = append(page, map[string]any{
				"timestamp": "2024-03-01T12:00:00.000",
				"latitude":  fmt.Sprintf("41.%04d", i),
				"longitude": "-87.6",
				"category":  "THEFT",
			})
		}
		if page == nil {
			page = []map[string]any{}
		}
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(page))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestClient_Fetch_Pages(t *testing.T) {
	srv, calls := portal(t, 25, func(r *http.Request) {
		assert.Equal(t, "/resource/ijzp-q8t2.json", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, selectClause, q.Get("$select"))
		assert.Equal(t, ":id", q.Get("$order"))
		assert.Equal(t, "date >= '2024-01-01T00:00:00' AND date < '2024-02-01T00:00:00'", q.Get("$where"))
		assert.Equal(t, "tok", r.Header.Get("X-App-Token"))
	})

	c := NewClient(testFetcher(), Config{BaseURL: srv.URL + "/", AppToken: "tok", PageSize: 10})
	got, err := c.Fetch(context.Background(), Query{
		From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, got, 25)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, model.NewRawField("41.0000"), got[0].Latitude)
	assert.Equal(t, model.NewRawField("41.0024"), got[24].Latitude)
	assert.Equal(t, "THEFT", got[0].Category)
}

func TestClient_Fetch_ExactPageMultiple(t *testing.T) {
	srv, calls := portal(t, 20, nil)
	c := NewClient(testFetcher(), Config{BaseURL: srv.URL, PageSize: 10})

	got, err := c.Fetch(context.Background(), Query{})
	require.NoError(t, err)
	assert.Len(t, got, 20)
	// The third, empty page ends the scan.
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_Fetch_Limit(t *testing.T) {
	srv, calls := portal(t, 100, func(r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("$where"))
		assert.Empty(t, r.Header.Get("X-App-Token"))
	})
	c := NewClient(testFetcher(), Config{BaseURL: srv.URL, PageSize: 10})

	got, err := c.Fetch(context.Background(), Query{Limit: 15})
	require.NoError(t, err)
	assert.Len(t, got, 15)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_Fetch_BadRange(t *testing.T) {
	c := NewClient(testFetcher(), Config{})
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := c.Fetch(context.Background(), Query{From: day, To: day})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not before")
}

func TestClient_Fetch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"bad query"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(testFetcher(), Config{BaseURL: srv.URL})
	_, err := c.Fetch(context.Background(), Query{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offset 0")
	assert.Contains(t, err.Error(), "status 400")
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(testFetcher(), Config{})
	assert.Equal(t, DefaultBaseURL, c.cfg.BaseURL)
	assert.Equal(t, DefaultDataset, c.cfg.Dataset)
	assert.Equal(t, DefaultPageSize, c.cfg.PageSize)
}

func TestWhereClause(t *testing.T) {
	assert.Empty(t, whereClause(Query{}))
	assert.Equal(t, "date >= '2023-05-06T07:08:09'",
		whereClause(Query{From: time.Date(2023, 5, 6, 7, 8, 9, 0, time.UTC)}))
}
