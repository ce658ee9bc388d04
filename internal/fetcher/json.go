package fetcher

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

// DecodeJSONArray streams the elements of a top-level JSON array. Both
// channels are closed when decoding stops; at most one error is sent. Empty
// input yields no elements and no error.
func DecodeJSONArray[T any](ctx context.Context, r io.Reader) (<-chan T, <-chan error) {
	out := make(chan T, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		dec := json.NewDecoder(r)
		tok, err := dec.Token()
		if err == io.EOF {
			return
		}
		if err != nil {
			errs <- eris.Wrap(err, "json: read opening token")
			return
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '[' {
			errs <- eris.Errorf("json: expected '[', got %v", tok)
			return
		}

		for i := 0; dec.More(); i++ {
			var item T
			if err := dec.Decode(&item); err != nil {
				errs <- eris.Wrapf(err, "json: decode element %d", i)
				return
			}
			select {
			case out <- item:
			case <-ctx.Done():
				errs <- eris.Wrap(ctx.Err(), "json: context cancelled")
				return
			}
		}

		if _, err := dec.Token(); err != nil {
			errs <- eris.Wrap(err, "json: read closing token")
		}
	}()

	return out, errs
}

// CollectJSONArray drains DecodeJSONArray into a slice.
func CollectJSONArray[T any](ctx context.Context, r io.Reader) ([]T, error) {
	items, errs := DecodeJSONArray[T](ctx, r)
	var out []T
	for item := range items {
		out = append(out, item)
	}
	if err := <-errs; err != nil {
		return out, err
	}
	return out, nil
}
