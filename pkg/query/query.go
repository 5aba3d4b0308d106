// Package query defines the archive search parameters, one sealed struct per
// fetch mode, validated exhaustively before any network activity.
package query

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/arkivist/pullpush-archive-client/pkg/types"
)

// MaxPageSize is the largest page the archive serves per request.
const MaxPageSize = 100

// Sort is the requested result direction.
type Sort string

const (
	SortAsc  Sort = "asc"
	SortDesc Sort = "desc"
)

var (
	// searchTerm allows a single token or a quoted phrase, no bare spaces.
	searchTerm = regexp.MustCompile(`^(?:"[^"]*"|[^\s"]+)$`)

	// thingID is a base-36 Reddit identifier, optionally type-prefixed.
	thingID = regexp.MustCompile(`^(?:t[1-6]_)?[a-z0-9]+$`)
)

// Query is a validated, mode-tagged archive search.
type Query interface {
	// Kind names the endpoint this query targets.
	Kind() types.Kind

	// Validate checks the full parameter combination. It is called by the
	// orchestrator before any request is issued.
	Validate() error

	// Values encodes the non-empty parameters as a query string.
	Values() url.Values

	// Window returns the caller's time bounds as epoch seconds; zero means
	// unset.
	Window() (after, before int64)

	// Order returns the requested sort key and direction.
	Order() (types.SortType, Sort)

	// Limit returns the requested page size (size parameter).
	Limit() int
}

// Submissions searches the submission endpoint.
type Submissions struct {
	// Search terms.
	Q        string
	Title    string
	Selftext string

	IDs       []string
	Author    string
	Subreddit string

	// Numeric filters, e.g. ">100" or "<5".
	Score       string
	NumComments string

	// Flags; nil leaves the filter unset.
	Over18      *bool
	IsVideo     *bool
	Locked      *bool
	Stickied    *bool
	Spoiler     *bool
	ContestMode *bool

	// Pagination.
	Size     int
	Sort     Sort
	SortType types.SortType
	After    int64
	Before   int64
}

// Kind implements Query.
func (s *Submissions) Kind() types.Kind { return types.KindSubmission }

// Window implements Query.
func (s *Submissions) Window() (int64, int64) { return s.After, s.Before }

// Order implements Query.
func (s *Submissions) Order() (types.SortType, Sort) {
	return defaultedOrder(s.SortType, s.Sort)
}

// Limit implements Query.
func (s *Submissions) Limit() int { return defaultedSize(s.Size) }

// Validate implements Query.
func (s *Submissions) Validate() error {
	if err := validateCommon(s.Q, s.IDs, s.Size, s.Sort, s.SortType, s.After, s.Before); err != nil {
		return err
	}
	for _, term := range []string{s.Title, s.Selftext} {
		if term != "" && !searchTerm.MatchString(term) {
			return fmt.Errorf("search term %q must be a single token or quoted phrase", term)
		}
	}
	return nil
}

// Values implements Query.
func (s *Submissions) Values() url.Values {
	v := commonValues(s.Q, s.IDs, s.Author, s.Subreddit, s.Limit(), s.Sort, s.SortType, s.After, s.Before)
	setNonEmpty(v, "title", s.Title)
	setNonEmpty(v, "selftext", s.Selftext)
	setNonEmpty(v, "score", s.Score)
	setNonEmpty(v, "num_comments", s.NumComments)
	setBool(v, "over_18", s.Over18)
	setBool(v, "is_video", s.IsVideo)
	setBool(v, "locked", s.Locked)
	setBool(v, "stickied", s.Stickied)
	setBool(v, "spoiler", s.Spoiler)
	setBool(v, "contest_mode", s.ContestMode)
	return v
}

// Comments searches the comment endpoint.
type Comments struct {
	Q         string
	IDs       []string
	Author    string
	Subreddit string

	// LinkID restricts results to comments under one submission.
	LinkID string

	Size     int
	Sort     Sort
	SortType types.SortType
	After    int64
	Before   int64
}

// Kind implements Query.
func (c *Comments) Kind() types.Kind { return types.KindComment }

// Window implements Query.
func (c *Comments) Window() (int64, int64) { return c.After, c.Before }

// Order implements Query.
func (c *Comments) Order() (types.SortType, Sort) {
	return defaultedOrder(c.SortType, c.Sort)
}

// Limit implements Query.
func (c *Comments) Limit() int { return defaultedSize(c.Size) }

// Validate implements Query.
func (c *Comments) Validate() error {
	if err := validateCommon(c.Q, c.IDs, c.Size, c.Sort, c.SortType, c.After, c.Before); err != nil {
		return err
	}
	if c.LinkID != "" && !thingID.MatchString(c.LinkID) {
		return fmt.Errorf("invalid link_id %q", c.LinkID)
	}
	return nil
}

// Values implements Query.
func (c *Comments) Values() url.Values {
	v := commonValues(c.Q, c.IDs, c.Author, c.Subreddit, c.Limit(), c.Sort, c.SortType, c.After, c.Before)
	setNonEmpty(v, "link_id", c.LinkID)
	return v
}

func defaultedSize(size int) int {
	if size <= 0 {
		return MaxPageSize
	}
	return size
}

func defaultedOrder(st types.SortType, s Sort) (types.SortType, Sort) {
	if st == "" {
		st = types.SortCreated
	}
	if s == "" {
		s = SortDesc
	}
	return st, s
}

func validateCommon(q string, ids []string, size int, sort Sort, st types.SortType, after, before int64) error {
	if q != "" && !searchTerm.MatchString(q) {
		return fmt.Errorf("search term %q must be a single token or quoted phrase", q)
	}
	for _, id := range ids {
		if !thingID.MatchString(id) {
			return fmt.Errorf("invalid record id %q", id)
		}
	}
	if size < 0 || size > MaxPageSize {
		return fmt.Errorf("size %d out of range: must be 1-%d", size, MaxPageSize)
	}
	switch sort {
	case "", SortAsc, SortDesc:
	default:
		return fmt.Errorf("invalid sort %q: must be asc or desc", sort)
	}
	switch st {
	case "", types.SortCreated, types.SortScore, types.SortNumComments:
	default:
		return fmt.Errorf("invalid sort_type %q: must be one of created_utc, score, num_comments", st)
	}
	if after < 0 || before < 0 {
		return fmt.Errorf("time bounds must be epoch seconds >= 0")
	}
	if after != 0 && before != 0 && after >= before {
		return fmt.Errorf("'after' (%d) must be earlier than 'before' (%d)", after, before)
	}
	return nil
}

func commonValues(q string, ids []string, author, subreddit string, size int, sort Sort, st types.SortType, after, before int64) url.Values {
	v := url.Values{}
	setNonEmpty(v, "q", q)
	if len(ids) > 0 {
		v.Set("ids", strings.Join(ids, ","))
	}
	setNonEmpty(v, "author", author)
	setNonEmpty(v, "subreddit", subreddit)
	v.Set("size", strconv.Itoa(size))
	st, sort = defaultedOrder(st, sort)
	v.Set("sort", string(sort))
	v.Set("sort_type", string(st))
	if after != 0 {
		v.Set("after", strconv.FormatInt(after, 10))
	}
	if before != 0 {
		v.Set("before", strconv.FormatInt(before, 10))
	}
	return v
}

func setNonEmpty(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}

func setBool(v url.Values, key string, value *bool) {
	if value == nil {
		return
	}
	if *value {
		v.Set(key, "true")
	} else {
		v.Set(key, "false")
	}
}
