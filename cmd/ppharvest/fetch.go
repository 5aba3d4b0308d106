package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/arkivist/pullpush-archive-client/pkg/cache"
	"github.com/arkivist/pullpush-archive-client/pkg/client"
	"github.com/arkivist/pullpush-archive-client/pkg/dedup"
	"github.com/arkivist/pullpush-archive-client/pkg/harvest"
	"github.com/arkivist/pullpush-archive-client/pkg/logging"
	"github.com/arkivist/pullpush-archive-client/pkg/pacer"
	"github.com/arkivist/pullpush-archive-client/pkg/query"
	"github.com/arkivist/pullpush-archive-client/pkg/types"
)

type fetchFlags struct {
	mode      string
	name      string
	subreddit string
	author    string
	q         string
	title     string
	selftext  string
	linkID    string
	after     int64
	before    int64
	size      int
	sort      string
	sortType  string
	comments  bool
	report    bool
}

func buildFetchCommand() *cobra.Command {
	var flags fetchFlags

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch submissions or comments from the archive",
		Long: `Fetch runs one harvest: submissions or comments matching the given
filters, optionally across a time window split over concurrent streams.
Results are written to <dir>/<name>.json keyed by record ID; observed
duplicate variants go to <dir>/dupes_<name>.json.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(&flags)
		},
	}

	cmd.Flags().StringVar(&flags.mode, "mode", "submissions", "fetch mode: submissions or comments")
	cmd.Flags().StringVar(&flags.name, "name", "result", "output file base name")
	cmd.Flags().StringVar(&flags.subreddit, "subreddit", "", "restrict to one subreddit")
	cmd.Flags().StringVar(&flags.author, "author", "", "restrict to one author")
	cmd.Flags().StringVar(&flags.q, "q", "", "search term (single token or quoted phrase)")
	cmd.Flags().StringVar(&flags.title, "title", "", "search term against titles (submissions)")
	cmd.Flags().StringVar(&flags.selftext, "selftext", "", "search term against bodies (submissions)")
	cmd.Flags().StringVar(&flags.linkID, "link-id", "", "comments under one submission (comments)")
	cmd.Flags().Int64Var(&flags.after, "after", 0, "inclusive lower bound, epoch seconds")
	cmd.Flags().Int64Var(&flags.before, "before", 0, "exclusive upper bound, epoch seconds")
	cmd.Flags().IntVar(&flags.size, "size", 0, "page size, max 100")
	cmd.Flags().StringVar(&flags.sort, "sort", "", "sort direction: asc or desc")
	cmd.Flags().StringVar(&flags.sortType, "sort-type", "", "sort key: created_utc, score, num_comments")
	cmd.Flags().BoolVar(&flags.comments, "comments", false, "attach comments to each submission")
	cmd.Flags().BoolVar(&flags.report, "report", false, "write an HTML activity report")

	return cmd
}

func runFetch(flags *fetchFlags) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	setupLogging(cfg)
	logger := logging.NewLogger("ppharvest")

	q, err := buildQuery(flags)
	if err != nil {
		return err
	}

	pace, err := pacer.New(pacer.Config{
		Mode:         pacer.Mode(cfg.Pace.Mode),
		Delay:        cfg.Pace.Delay,
		RefillWindow: cfg.Pace.RefillWindow,
		SafetyMargin: cfg.Pace.SafetyMargin,
	}, logging.NewLogger("pacer"))
	if err != nil {
		return fmt.Errorf("pacer: %w", err)
	}

	clientCfg := client.Config{
		BaseURL:   cfg.BaseURL,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.Timeout,
		Retry: client.RetryConfig{
			MaxRetries: cfg.Retry.MaxRetries,
			Backoff:    cfg.Retry.Backoff,
		},
		Pacer: pace,
	}
	if cfg.Cache.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisAddr,
			DB:   cfg.Cache.RedisDB,
		})
		defer redisClient.Close()
		clientCfg.Cache = cache.NewManager(redisClient, cfg.Cache.TTL)
	}
	archive, err := client.New(clientCfg)
	if err != nil {
		return fmt.Errorf("client: %w", err)
	}

	engine, err := harvest.New(archive, harvest.Config{
		Concurrency:        cfg.Fetch.Concurrency,
		CommentConcurrency: cfg.Fetch.CommentConcurrency,
		DuplicateAction:    dedup.Action(cfg.Fetch.DuplicateAction),
		Comments:           flags.comments,
		MaxRecords:         cfg.Fetch.MaxRecords,
	})
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, fetchErr := engine.Fetch(ctx, q)
	if fetchErr != nil {
		var se *harvest.StreamError
		if errors.As(fetchErr, &se) {
			logger.Error().
				Int("stream", se.Stream).
				Int64("after", se.After).
				Int64("before", se.Before).
				Int64("pivot", se.Pivot).
				Err(se.Err).
				Msg("Harvest incomplete; resume from the pivot boundary")
		}
		if result == nil || len(result.Records) == 0 {
			return fetchErr
		}
		logger.Warn().Int("records", len(result.Records)).Msg("Writing partial result")
	}

	if err := persistResult(cfg, flags, result); err != nil {
		return err
	}
	return fetchErr
}

func buildQuery(flags *fetchFlags) (query.Query, error) {
	switch flags.mode {
	case "submissions":
		if flags.linkID != "" {
			return nil, fmt.Errorf("--link-id only applies to comments mode")
		}
		return &query.Submissions{
			Q:         flags.q,
			Title:     flags.title,
			Selftext:  flags.selftext,
			Author:    flags.author,
			Subreddit: flags.subreddit,
			Size:      flags.size,
			Sort:      query.Sort(flags.sort),
			SortType:  types.SortType(flags.sortType),
			After:     flags.after,
			Before:    flags.before,
		}, nil
	case "comments":
		if flags.comments {
			return nil, fmt.Errorf("--comments only applies to submissions mode")
		}
		if flags.title != "" || flags.selftext != "" {
			return nil, fmt.Errorf("--title/--selftext only apply to submissions mode")
		}
		return &query.Comments{
			Q:         flags.q,
			Author:    flags.author,
			Subreddit: flags.subreddit,
			LinkID:    flags.linkID,
			Size:      flags.size,
			Sort:      query.Sort(flags.sort),
			SortType:  types.SortType(flags.sortType),
			After:     flags.after,
			Before:    flags.before,
		}, nil
	default:
		return nil, fmt.Errorf("unknown mode %q: use submissions or comments", flags.mode)
	}
}

// ensureDir creates the output directory when missing.
func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
