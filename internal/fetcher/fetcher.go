// Package fetcher retrieves remote payloads over HTTP and streams JSON and
// CSV records out of them.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Fetcher performs a GET and hands back the response body.
type Fetcher interface {
	// Get fetches rawURL with the extra request headers. The caller closes
	// the body.
	Get(ctx context.Context, rawURL string, header http.Header) (io.ReadCloser, error)
}

// StatusError reports a response that finished with a non-200 status that
// is not worth retrying.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("fetcher: status %d from %s", e.Status, e.URL)
	}
	return fmt.Sprintf("fetcher: status %d from %s: %s", e.Status, e.URL, e.Body)
}
