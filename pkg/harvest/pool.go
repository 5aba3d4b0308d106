package harvest

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"github.com/arkivist/pullpush-archive-client/pkg/dedup"
	"github.com/arkivist/pullpush-archive-client/pkg/types"
)

// window is one time slice assigned to a pagination stream. After is
// inclusive, before exclusive, both epoch seconds.
type window struct {
	after  int64
	before int64
}

// partitionWindow splits [after, before) into at most n contiguous slices.
// Narrow ranges get fewer slices so no stream is handed an empty window.
func partitionWindow(after, before int64, n int) []window {
	span := before - after
	if int64(n) > span {
		n = int(span)
	}
	if n < 1 {
		n = 1
	}
	windows := make([]window, 0, n)
	for i := 0; i < n; i++ {
		w := window{
			after:  after + span*int64(i)/int64(n),
			before: after + span*int64(i+1)/int64(n),
		}
		if i == n-1 {
			w.before = before
		}
		windows = append(windows, w)
	}
	return windows
}

// runPool drains one stream per window concurrently, merging everything into
// the shared result set. The first stream failure cancels the others; already
// merged records stay in the set and are returned to the caller alongside the
// error.
func (f *fetcher) runPool(ctx context.Context, kind types.Kind, base url.Values, windows []window, size, quota int, rs *dedup.ResultSet) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	failures := make(chan *StreamError, len(windows))

	for i, w := range windows {
		wg.Add(1)
		go func(stream int, w window) {
			defer wg.Done()
			cursor := newCursor(kind, size, true, w.after, w.before, quota)
			f.logger.Debug().
				Int("stream", stream).
				Int64("after", w.after).
				Int64("before", w.before).
				Msg("Stream started")
			if err := f.drain(ctx, base, cursor, rs); err != nil {
				streamsFailed.Inc()
				failures <- &StreamError{
					Stream: stream,
					After:  w.after,
					Before: w.before,
					Pivot:  cursor.pivot(),
					Err:    err,
				}
				cancel()
			}
		}(i, w)
	}

	wg.Wait()
	close(failures)

	// Sibling streams die with context.Canceled once the first failure
	// cancels the pool; report the root cause, not the fallout.
	var first *StreamError
	for se := range failures {
		if first == nil {
			first = se
			continue
		}
		if errors.Is(first.Err, context.Canceled) && !errors.Is(se.Err, context.Canceled) {
			first = se
		}
	}
	if first != nil {
		f.logger.Error().
			Int("stream", first.Stream).
			Int64("pivot", first.Pivot).
			Err(first.Err).
			Msg("Pool cancelled by stream failure")
		return first
	}
	return nil
}
