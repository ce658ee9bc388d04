package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, s *CSVStream) [][]string {
	t.Helper()
	var rows [][]string
	for r := range s.Rows {
		rows = append(rows, r)
	}
	require.NoError(t, <-s.Errs)
	return rows
}

func TestStreamCSV(t *testing.T) {
	s, err := StreamCSV(context.Background(), strings.NewReader("a,b\n1,2\n3,4\n"), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, s.Header)
	assert.Equal(t, [][]string{{"1", "2"}, {"3", "4"}}, drain(t, s))
}

func TestStreamCSV_BOMAndTrim(t *testing.T) {
	input := "\ufeff date , latitude\r\n 2024-01-01 , 41.9 \r\n"
	s, err := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{TrimSpace: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"date", "latitude"}, s.Header)
	assert.Equal(t, [][]string{{"2024-01-01", "41.9"}}, drain(t, s))
}

func TestStreamCSV_Options(t *testing.T) {
	input := "a;b\n# skipped\n1;\"x\"y\n"
	s, err := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{Delimiter: ';', Comment: '#', LazyQuotes: true})
	require.NoError(t, err)
	rows := drain(t, s)
	require.Len(t, rows, 1)
	assert.Equal(t, "1", rows[0][0])
}

func TestStreamCSV_HeaderOnly(t *testing.T) {
	s, err := StreamCSV(context.Background(), strings.NewReader("a,b\n"), CSVOptions{})
	require.NoError(t, err)
	assert.Empty(t, drain(t, s))
}

func TestStreamCSV_Empty(t *testing.T) {
	_, err := StreamCSV(context.Background(), strings.NewReader(""), CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing header")
}

func TestStreamCSV_BadRow(t *testing.T) {
	s, err := StreamCSV(context.Background(), strings.NewReader("a,b\n\"unterminated\n"), CSVOptions{})
	require.NoError(t, err)
	for range s.Rows {
	}
	assert.Error(t, <-s.Errs)
}
