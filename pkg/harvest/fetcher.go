package harvest

import (
	"context"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/arkivist/pullpush-archive-client/pkg/dedup"
	"github.com/arkivist/pullpush-archive-client/pkg/types"
)

// Prometheus metrics for the harvest engine.
var (
	pagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pullpush_pages_fetched_total",
		Help: "Total result pages fetched by endpoint",
	}, []string{"endpoint"})

	streamsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pullpush_streams_failed_total",
		Help: "Total pagination streams terminated by an error",
	})
)

// Searcher issues one archive page request. Implemented by client.Client;
// tests substitute their own.
type Searcher interface {
	Search(ctx context.Context, kind types.Kind, params url.Values) ([]*types.Record, error)
}

// fetcher pages one cursor through the archive.
type fetcher struct {
	searcher Searcher
	logger   zerolog.Logger
}

// nextPage issues the request for the cursor's current boundary and advances
// the cursor past it.
func (f *fetcher) nextPage(ctx context.Context, base url.Values, c *pageCursor) ([]*types.Record, error) {
	page, err := f.searcher.Search(ctx, c.kind, c.params(base))
	if err != nil {
		return nil, err
	}
	pagesFetched.WithLabelValues(string(c.kind)).Inc()
	c.advance(page)
	return page, nil
}

// drain loops the cursor to exhaustion, merging every page into the shared
// result set. Merge and cursor advancement never suspend; only the request
// itself yields.
func (f *fetcher) drain(ctx context.Context, base url.Values, c *pageCursor, rs *dedup.ResultSet) error {
	for !c.exhausted {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := f.nextPage(ctx, base, c)
		if err != nil {
			return err
		}
		rs.Merge(page)
		f.logger.Debug().
			Str("endpoint", string(c.kind)).
			Int("page_size", len(page)).
			Int64("pivot", c.pivot()).
			Bool("exhausted", c.exhausted).
			Msg("Page merged")
	}
	return nil
}
