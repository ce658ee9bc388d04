package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestDecodeJSONArray(t *testing.T) {
	items, errs := DecodeJSONArray[record](context.Background(), strings.NewReader(`[{"name":"a","count":1},{"name":"b","count":2}]`))

	var got []record
	for it := range items {
		got = append(got, it)
	}
	require.NoError(t, <-errs)
	assert.Equal(t, []record{{"a", 1}, {"b", 2}}, got)
}

func TestCollectJSONArray(t *testing.T) {
	got, err := CollectJSONArray[record](context.Background(), strings.NewReader(`[{"name":"x","count":9}]`))
	require.NoError(t, err)
	assert.Equal(t, []record{{"x", 9}}, got)
}

func TestCollectJSONArray_Empty(t *testing.T) {
	got, err := CollectJSONArray[record](context.Background(), strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = CollectJSONArray[record](context.Background(), strings.NewReader("[]"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCollectJSONArray_NotArray(t *testing.T) {
	_, err := CollectJSONArray[record](context.Background(), strings.NewReader(`{"name":"a"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected '['")
}

func TestCollectJSONArray_BadElement(t *testing.T) {
	got, err := CollectJSONArray[record](context.Background(), strings.NewReader(`[{"name":"a","count":1},{"name":2}]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode element 1")
	assert.Len(t, got, 1)
}

func TestCollectJSONArray_Truncated(t *testing.T) {
	_, err := CollectJSONArray[record](context.Background(), strings.NewReader(`[{"name":"a","count":1}`))
	require.Error(t, err)
}

func TestDecodeJSONArray_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var sb strings.Builder
	sb.WriteString("[")
	for i := range 500 {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(`{"name":"n","count":1}`)
	}
	sb.WriteString("]")

	items, errs := DecodeJSONArray[record](ctx, strings.NewReader(sb.String()))
	<-items
	cancel()
	for range items {
	}
	err := <-errs
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}
