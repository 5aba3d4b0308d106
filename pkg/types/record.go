// Package types defines the record model shared by the fetch engine.
//
// Archive records are opaque server-defined JSON documents. The engine only
// needs a handful of fields from each record (identifier, sort keys, and the
// markers used to classify edited/removed revisions), so Record extracts
// those on unmarshal and keeps the raw document for persistence.
package types

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Kind identifies the archive endpoint a record came from.
type Kind string

const (
	// KindSubmission is a Reddit submission (link/self post).
	KindSubmission Kind = "submission"

	// KindComment is a comment under a submission.
	KindComment Kind = "comment"
)

// SortType selects the sort key used for pagination and final ordering.
type SortType string

const (
	SortCreated     SortType = "created_utc"
	SortScore       SortType = "score"
	SortNumComments SortType = "num_comments"
)

// Edited models the archive's mixed-type "edited" field: false when never
// edited, true for legacy edits without a timestamp, or the edit timestamp.
type Edited struct {
	IsEdited  bool
	Timestamp int64
}

// UnmarshalJSON implements json.Unmarshaler for the bool-or-timestamp field.
func (e *Edited) UnmarshalJSON(data []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(data)))
	switch s {
	case "false", "null":
		e.IsEdited = false
		e.Timestamp = 0
		return nil
	case "true":
		e.IsEdited = true
		e.Timestamp = 0
		return nil
	}

	var ts float64
	if err := json.Unmarshal(data, &ts); err != nil {
		return fmt.Errorf("edited field is neither bool nor timestamp: %s", string(data))
	}
	e.IsEdited = true
	e.Timestamp = int64(ts)
	return nil
}

// MarshalJSON round-trips the wire representation.
func (e Edited) MarshalJSON() ([]byte, error) {
	if !e.IsEdited {
		return []byte("false"), nil
	}
	if e.Timestamp == 0 {
		return []byte("true"), nil
	}
	return json.Marshal(e.Timestamp)
}

// Record is one submission or comment as returned by the archive service.
// The extracted fields drive merging and pagination; Raw holds the complete
// document exactly as the server sent it.
type Record struct {
	ID                string
	Author            string
	Subreddit         string
	Title             string
	Selftext          string
	Body              string
	LinkID            string
	CreatedUTC        int64
	Score             int64
	NumComments       int64
	Edited            Edited
	RemovedByCategory *string
	RemovalReason     *string

	// Raw is the full wire document.
	Raw json.RawMessage

	// Comments holds attached child records, populated only when the
	// caller requested nested comment fetching. Never part of Raw.
	Comments []*Record

	titlePresent bool
}

type recordAlias struct {
	ID                string          `json:"id"`
	Author            *string         `json:"author"`
	Subreddit         string          `json:"subreddit"`
	Title             *string         `json:"title"`
	Selftext          string          `json:"selftext"`
	Body              string          `json:"body"`
	LinkID            string          `json:"link_id"`
	CreatedUTC        json.Number     `json:"created_utc"`
	Score             json.Number     `json:"score"`
	NumComments       json.Number     `json:"num_comments"`
	Edited            Edited          `json:"edited"`
	RemovedByCategory *string         `json:"removed_by_category"`
	RemovalReason     *string         `json:"removal_reason"`
}

// hasTitle distinguishes submissions from comments when classifying markers.
// Comments never carry a title field.
func (r *Record) hasTitle() bool {
	return r.titlePresent
}

// UnmarshalJSON extracts the engine fields and retains the raw document.
func (r *Record) UnmarshalJSON(data []byte) error {
	var aux recordAlias
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.ID == "" {
		return fmt.Errorf("record missing id field")
	}

	r.ID = aux.ID
	if aux.Author != nil {
		r.Author = *aux.Author
	}
	r.Subreddit = aux.Subreddit
	if aux.Title != nil {
		r.Title = *aux.Title
		r.titlePresent = true
	}
	r.Selftext = aux.Selftext
	r.Body = aux.Body
	r.LinkID = aux.LinkID
	r.CreatedUTC = numberToInt64(aux.CreatedUTC)
	r.Score = numberToInt64(aux.Score)
	r.NumComments = numberToInt64(aux.NumComments)
	r.Edited = aux.Edited
	r.RemovedByCategory = aux.RemovedByCategory
	r.RemovalReason = aux.RemovalReason

	r.Raw = make(json.RawMessage, len(data))
	copy(r.Raw, data)
	return nil
}

// MarshalJSON emits the raw document, splicing in attached comments when
// present.
func (r *Record) MarshalJSON() ([]byte, error) {
	if len(r.Comments) == 0 {
		if len(r.Raw) == 0 {
			return []byte("{}"), nil
		}
		return r.Raw, nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(r.Raw, &doc); err != nil {
		return nil, fmt.Errorf("re-decode record %s: %w", r.ID, err)
	}
	comments, err := json.Marshal(r.Comments)
	if err != nil {
		return nil, fmt.Errorf("encode comments of %s: %w", r.ID, err)
	}
	doc["comments"] = comments
	return json.Marshal(doc)
}

// numberToInt64 tolerates the archive's habit of returning numeric fields as
// either integers or floats (created_utc in particular).
func numberToInt64(n json.Number) int64 {
	if n == "" {
		return 0
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return int64(f)
	}
	return 0
}

// SortKey returns the record's value for the given sort type.
func (r *Record) SortKey(st SortType) int64 {
	switch st {
	case SortScore:
		return r.Score
	case SortNumComments:
		return r.NumComments
	default:
		return r.CreatedUTC
	}
}

// LastActivity is the recency signal used for duplicate resolution: the edit
// timestamp when present, otherwise the creation timestamp.
func (r *Record) LastActivity() int64 {
	if r.Edited.IsEdited && r.Edited.Timestamp > r.CreatedUTC {
		return r.Edited.Timestamp
	}
	return r.CreatedUTC
}

// ParentID strips the thing prefix ("t3_") from a comment's link_id so it can
// be matched against its parent submission ID.
func (r *Record) ParentID() string {
	if i := strings.IndexByte(r.LinkID, '_'); i >= 0 {
		return r.LinkID[i+1:]
	}
	return r.LinkID
}

// deletionMarker matches bracketed placeholder text such as "[removed]",
// "[Deleted By User]" or "[Removed by Reddit]".
var deletionMarker = regexp.MustCompile(`^\[.*\]`)

// IsDeleted reports whether the record is a deleted/removed revision.
//
// A record counts as deleted when the archive tagged it
// (removed_by_category / removal_reason), when the author was scrubbed, or
// when the visible text is a short bracketed placeholder mentioning
// deletion or removal.
func (r *Record) IsDeleted() bool {
	if r.RemovedByCategory != nil || r.RemovalReason != nil {
		return true
	}

	if r.Author == "" || (strings.HasPrefix(r.Author, "[") && strings.HasSuffix(r.Author, "]")) {
		return true
	}

	text := r.Body
	if r.hasTitle() {
		text = r.Selftext
	}
	if text == "" && !r.hasTitle() {
		return true
	}

	if deletionMarker.MatchString(text) && len(text) <= 100 {
		lower := strings.ToLower(text)
		if strings.Contains(lower, "deleted") || strings.Contains(lower, "removed") {
			return true
		}
	}

	return false
}

// Project reduces the record's document to the given fields for persistence.
// Unknown fields are dropped silently; attached comments survive projection.
func (r *Record) Project(fields []string) (map[string]json.RawMessage, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(r.Raw, &doc); err != nil {
		return nil, fmt.Errorf("decode record %s for projection: %w", r.ID, err)
	}

	out := make(map[string]json.RawMessage, len(fields)+1)
	for _, f := range fields {
		if v, ok := doc[f]; ok {
			out[f] = v
		}
	}
	if len(r.Comments) > 0 {
		comments, err := json.Marshal(r.Comments)
		if err != nil {
			return nil, fmt.Errorf("encode comments of %s: %w", r.ID, err)
		}
		out["comments"] = comments
	}
	return out, nil
}
