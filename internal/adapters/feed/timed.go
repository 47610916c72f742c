package feed

import (
	"context"
	"errors"
	"net/http"
	"time"

	"loyalty/internal/adapters/http/perf"
)

// Fetcher fetches one window of provider records.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Result, error)
}

// Compile-time check that *Client satisfies Fetcher.
var _ Fetcher = (*Client)(nil)

// TimedFetcher records every fetch, retries included, to a perf collector
// under the brand id.
type TimedFetcher struct {
	next      Fetcher
	collector *perf.Collector
}

// NewTimedFetcher wraps next. A nil collector disables recording.
func NewTimedFetcher(next Fetcher, collector *perf.Collector) *TimedFetcher {
	return &TimedFetcher{next: next, collector: collector}
}

// Fetch implements Fetcher.
func (t *TimedFetcher) Fetch(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	res, err := t.next.Fetch(ctx, req)

	status := http.StatusOK
	var perr *ProviderError
	switch {
	case errors.As(err, &perr):
		status = perr.StatusCode
	case err != nil:
		status = 0
	}
	t.collector.Record(perf.Entry{
		Kind:       perf.KindFetch,
		Path:       req.BrandID,
		StatusCode: status,
		Failed:     err != nil,
		DurationMs: float64(time.Since(start).Microseconds()) / 1000.0,
		Timestamp:  start,
	})
	return res, err
}
