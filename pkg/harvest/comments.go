package harvest

import (
	"context"
	"sync"

	"github.com/arkivist/pullpush-archive-client/pkg/dedup"
	"github.com/arkivist/pullpush-archive-client/pkg/query"
	"github.com/arkivist/pullpush-archive-client/pkg/types"
)

// attachComments fans out one comment-pagination stream per submission,
// bounded by the given worker count, and nests the fetched comments under
// their parents. Comment requests share the engine's pacer; the server does
// not distinguish them from top-level fetches.
//
// Comments are merged through their own result set under the same duplicate
// action as the main fetch; duplicate variants observed along the way are
// returned for reporting.
func (f *fetcher) attachComments(ctx context.Context, subs []*types.Record, workers int, action dedup.Action) (map[string][]*types.Record, error) {
	rs, err := dedup.NewResultSet(action)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ids := make(chan string)
	failures := make(chan error, workers)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range ids {
				if err := f.drainComments(ctx, id, rs); err != nil {
					streamsFailed.Inc()
					failures <- err
					cancel()
					return
				}
			}
		}()
	}

feed:
	for _, sub := range subs {
		select {
		case ids <- sub.ID:
		case <-ctx.Done():
			break feed
		}
	}
	close(ids)
	wg.Wait()
	close(failures)

	// Attach whatever arrived, even on failure; the caller gets partial
	// nesting alongside the error.
	attach(subs, rs.Finalize(types.SortCreated, false))

	for err := range failures {
		if err != nil {
			f.logger.Error().Err(err).Msg("Comment fan-out cancelled")
			return rs.Dupes(), err
		}
	}
	return rs.Dupes(), nil
}

// drainComments pages every comment under one submission into the shared set.
func (f *fetcher) drainComments(ctx context.Context, linkID string, rs *dedup.ResultSet) error {
	q := query.Comments{LinkID: linkID}
	base := q.Values()
	cursor := newCursor(types.KindComment, q.Limit(), true, 0, 0, 0)
	err := f.drain(ctx, base, cursor, rs)
	if err != nil {
		f.logger.Warn().Str("link_id", linkID).Err(err).Msg("Comment stream failed")
	}
	return err
}

// attach groups comments by parent link and nests them, oldest first.
func attach(subs []*types.Record, comments []*types.Record) {
	byParent := make(map[string][]*types.Record, len(subs))
	for _, c := range comments {
		parent := c.ParentID()
		byParent[parent] = append(byParent[parent], c)
	}
	for _, sub := range subs {
		sub.Comments = byParent[sub.ID]
	}
}
