// Package harvest orchestrates concurrent, paced, deduplicated archive
// fetches: time-sliced pagination streams feed one shared result set, with
// optional nested comment retrieval for submissions.
package harvest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/arkivist/pullpush-archive-client/pkg/dedup"
	"github.com/arkivist/pullpush-archive-client/pkg/logging"
	"github.com/arkivist/pullpush-archive-client/pkg/query"
	"github.com/arkivist/pullpush-archive-client/pkg/types"
)

// DefaultConcurrency is the default number of pagination streams.
const DefaultConcurrency = 2

// Config holds the engine configuration.
type Config struct {
	// Concurrency is the number of pagination streams when a time window
	// is split across streams.
	Concurrency int

	// CommentConcurrency bounds the comment fan-out; zero shares
	// Concurrency.
	CommentConcurrency int

	// DuplicateAction resolves repeated record IDs across pages.
	DuplicateAction dedup.Action

	// Comments requests nested comment retrieval for submission fetches.
	Comments bool

	// MaxRecords caps each stream's record quota; zero means unbounded.
	MaxRecords int
}

// DefaultConfig returns a safe default engine configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:     DefaultConcurrency,
		DuplicateAction: dedup.KeepNewest,
	}
}

// Result is the outcome of one Fetch call. When Fetch also returns an error
// the result holds whatever was merged before the failure.
type Result struct {
	// Records is the final ordered collection, one record per ID.
	Records []*types.Record

	// Dupes maps each duplicated ID to every variant observed.
	Dupes map[string][]*types.Record

	// CommentDupes is the same for the comment fan-out; nil when comments
	// were not requested.
	CommentDupes map[string][]*types.Record
}

// Engine is the fetch orchestrator. Its pacer state lives in the underlying
// client and persists across Fetch calls, so repeated calls on one engine
// share pacing.
type Engine struct {
	cfg     Config
	fetcher *fetcher
	logger  zerolog.Logger
}

// New creates an engine around the given searcher.
func New(searcher Searcher, cfg Config) (*Engine, error) {
	if searcher == nil {
		return nil, fmt.Errorf("%w: searcher is required", ErrInvalidConfig)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.CommentConcurrency <= 0 {
		cfg.CommentConcurrency = cfg.Concurrency
	}
	if cfg.MaxRecords < 0 {
		return nil, fmt.Errorf("%w: max records must be >= 0", ErrInvalidConfig)
	}
	if cfg.DuplicateAction == "" {
		cfg.DuplicateAction = dedup.KeepNewest
	}
	if _, err := dedup.ParseAction(string(cfg.DuplicateAction)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	logger := logging.NewLogger("harvest")
	return &Engine{
		cfg:     cfg,
		fetcher: &fetcher{searcher: searcher, logger: logger},
		logger:  logger,
	}, nil
}

// Fetch runs the query to completion and returns the ordered, deduplicated
// result. A time-windowed query is split across Concurrency streams; an open
// query pages a single stream by creation-time pivot; a query ordered by a
// different sort key fetches exactly one page. On a stream failure the
// returned error is a *StreamError carrying the failing boundary, and the
// result holds the partial data accumulated so far.
func (e *Engine) Fetch(ctx context.Context, q query.Query) (*Result, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if e.cfg.Comments && q.Kind() != types.KindSubmission {
		return nil, fmt.Errorf("%w: comment attachment requires a submission query", ErrInvalidConfig)
	}

	rs, err := dedup.NewResultSet(e.cfg.DuplicateAction)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	st, sort := q.Order()
	descending := sort == query.SortDesc
	after, before := q.Window()
	base := q.Values()

	e.logger.Info().
		Str("endpoint", string(q.Kind())).
		Int64("after", after).
		Int64("before", before).
		Str("action", string(e.cfg.DuplicateAction)).
		Int("concurrency", e.cfg.Concurrency).
		Msg("Fetch started")

	var runErr error
	switch {
	case st != types.SortCreated:
		// Score and comment-count orderings have no stable pivot; the
		// archive serves the top page only, windowed or not.
		page, err := e.fetcher.searcher.Search(ctx, q.Kind(), base)
		if err != nil {
			streamsFailed.Inc()
			runErr = &StreamError{After: after, Before: before, Err: err}
		} else {
			pagesFetched.WithLabelValues(string(q.Kind())).Inc()
			rs.Merge(page)
		}
	case after != 0 && before != 0:
		windows := partitionWindow(after, before, e.cfg.Concurrency)
		runErr = e.fetcher.runPool(ctx, q.Kind(), base, windows, q.Limit(), e.cfg.MaxRecords, rs)
	default:
		cursor := newCursor(q.Kind(), q.Limit(), descending, after, before, e.cfg.MaxRecords)
		if err := e.fetcher.drain(ctx, base, cursor, rs); err != nil {
			streamsFailed.Inc()
			runErr = &StreamError{After: after, Before: before, Pivot: cursor.pivot(), Err: err}
		}
	}

	result := &Result{
		Records: rs.Finalize(st, descending),
		Dupes:   rs.Dupes(),
	}

	if e.cfg.Comments && runErr == nil {
		dupes, err := e.fetcher.attachComments(ctx, result.Records, e.cfg.CommentConcurrency, e.cfg.DuplicateAction)
		result.CommentDupes = dupes
		runErr = err
	}

	e.logger.Info().
		Str("endpoint", string(q.Kind())).
		Int("records", len(result.Records)).
		Int("dupes", len(result.Dupes)).
		Bool("partial", runErr != nil).
		Msg("Fetch finished")
	return result, runErr
}
