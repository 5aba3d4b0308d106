// Package dedup reconciles archive records that share an identifier.
//
// The archive stores multiple historical snapshots of edited or removed
// records, and overlapping result pages can surface several of them during
// one fetch. ResultSet accumulates records across pages and resolves
// collisions according to a caller-chosen Action, so the trade-off between
// "latest revision" and "pre-deletion content" stays explicit.
package dedup

import (
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arkivist/pullpush-archive-client/pkg/types"
)

// Prometheus metrics for duplicate resolution.
var (
	duplicatesObserved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pullpush_duplicates_total",
		Help: "Duplicate record observations by resolution action",
	}, []string{"action"})

	recordsMerged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pullpush_records_merged_total",
		Help: "Total records passed through the merge engine",
	})
)

// Action selects how a duplicate record ID is resolved.
type Action string

const (
	// KeepNewest stores the revision with the most recent activity signal.
	KeepNewest Action = "keep_newest"

	// KeepOldest keeps the first stored revision and discards later ones.
	KeepOldest Action = "keep_oldest"

	// Remove drops the ID from the result entirely once duplicated.
	Remove Action = "remove"

	// KeepOriginal prefers a revision without deletion markers, recovering
	// content captured before it was removed.
	KeepOriginal Action = "keep_original"

	// KeepRemoved prefers the revision carrying the deletion marker.
	KeepRemoved Action = "keep_removed"
)

// ParseAction validates a duplicate action string.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case KeepNewest, KeepOldest, Remove, KeepOriginal, KeepRemoved:
		return Action(s), nil
	case "":
		return KeepNewest, nil
	}
	return "", fmt.Errorf("invalid duplicate action %q: must be one of "+
		"keep_newest, keep_oldest, remove, keep_original, keep_removed", s)
}

// ResultSet is the accumulated fetch output: one record per ID, insertion
// order preserved until Finalize applies the caller's sort. Safe for
// concurrent Merge calls; all mutation is serialized on one mutex.
type ResultSet struct {
	mu      sync.Mutex
	action  Action
	order   []string
	records map[string]*types.Record
	// removed holds IDs dropped by the Remove action; re-observing such an
	// ID is a no-op rather than a re-insert.
	removed map[string]struct{}
	dupes   map[string][]*types.Record
}

// NewResultSet creates an empty result set with the given duplicate action.
func NewResultSet(action Action) (*ResultSet, error) {
	action, err := ParseAction(string(action))
	if err != nil {
		return nil, err
	}
	return &ResultSet{
		action:  action,
		records: make(map[string]*types.Record),
		removed: make(map[string]struct{}),
		dupes:   make(map[string][]*types.Record),
	}, nil
}

// Action returns the configured duplicate action.
func (rs *ResultSet) Action() Action { return rs.action }

// Merge folds one page of records into the set, resolving duplicates per the
// configured action. Incoming order is preserved for first occurrences.
func (rs *ResultSet) Merge(incoming []*types.Record) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	for _, rec := range incoming {
		recordsMerged.Inc()
		rs.mergeOne(rec)
	}
}

func (rs *ResultSet) mergeOne(rec *types.Record) {
	if _, gone := rs.removed[rec.ID]; gone {
		// Already dropped by Remove; keep the observation for reporting.
		rs.dupes[rec.ID] = append(rs.dupes[rec.ID], rec)
		duplicatesObserved.WithLabelValues(string(rs.action)).Inc()
		return
	}

	stored, ok := rs.records[rec.ID]
	if !ok {
		rs.records[rec.ID] = rec
		rs.order = append(rs.order, rec.ID)
		return
	}

	duplicatesObserved.WithLabelValues(string(rs.action)).Inc()
	if len(rs.dupes[rec.ID]) == 0 {
		rs.dupes[rec.ID] = append(rs.dupes[rec.ID], stored)
	}
	rs.dupes[rec.ID] = append(rs.dupes[rec.ID], rec)

	switch rs.action {
	case KeepNewest:
		if rec.LastActivity() > stored.LastActivity() {
			rs.records[rec.ID] = rec
		}
	case KeepOldest:
		// Stored revision wins.
	case Remove:
		delete(rs.records, rec.ID)
		rs.removed[rec.ID] = struct{}{}
	case KeepOriginal:
		rs.records[rec.ID] = preferDeleted(stored, rec, false)
	case KeepRemoved:
		rs.records[rec.ID] = preferDeleted(stored, rec, true)
	}
}

// preferDeleted picks between two revisions of the same record, preferring
// the one whose deletion state matches wantDeleted regardless of recency.
// When both revisions have the same state, recency breaks the tie.
func preferDeleted(stored, incoming *types.Record, wantDeleted bool) *types.Record {
	storedMatch := stored.IsDeleted() == wantDeleted
	incomingMatch := incoming.IsDeleted() == wantDeleted

	switch {
	case storedMatch && !incomingMatch:
		return stored
	case incomingMatch && !storedMatch:
		return incoming
	default:
		if incoming.LastActivity() > stored.LastActivity() {
			return incoming
		}
		return stored
	}
}

// Len returns the number of resolved records currently stored.
func (rs *ResultSet) Len() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.records)
}

// Get returns the stored record for an ID, if present.
func (rs *ResultSet) Get(id string) (*types.Record, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rec, ok := rs.records[id]
	return rec, ok
}

// Dupes returns every observed variant of each duplicated ID, including IDs
// dropped by the Remove action. The returned map is a snapshot.
func (rs *ResultSet) Dupes() map[string][]*types.Record {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make(map[string][]*types.Record, len(rs.dupes))
	for id, variants := range rs.dupes {
		out[id] = append([]*types.Record(nil), variants...)
	}
	return out
}

// Finalize returns the resolved records stable-sorted by the requested sort
// key and direction. Arrival order decides which variant of a duplicate won,
// never the presentation order; ties keep insertion order.
func (rs *ResultSet) Finalize(st types.SortType, descending bool) []*types.Record {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	out := make([]*types.Record, 0, len(rs.records))
	for _, id := range rs.order {
		if rec, ok := rs.records[id]; ok {
			out = append(out, rec)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].SortKey(st), out[j].SortKey(st)
		if descending {
			return a > b
		}
		return a < b
	})
	return out
}
