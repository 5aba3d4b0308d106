package harvest

import (
	"net/url"
	"strconv"

	"github.com/arkivist/pullpush-archive-client/pkg/types"
)

// pageCursor is the per-stream pagination state. Owned exclusively by the
// stream that advances it; never shared.
//
// The archive's before/after bounds are exclusive. Callers think of their
// 'after' bound as inclusive, so the constructor widens it by one second,
// exactly once; the pivot then always moves strictly past the last record of
// the previous page.
type pageCursor struct {
	kind types.Kind
	size int
	desc bool

	// before and after are the current exclusive bounds; zero means open.
	before int64
	after  int64

	// remaining is the record quota left for this stream; negative means
	// unbounded.
	remaining int

	exhausted bool
}

func newCursor(kind types.Kind, size int, desc bool, after, before int64, quota int) *pageCursor {
	if after > 0 {
		after--
	}
	if quota <= 0 {
		quota = -1
	}
	return &pageCursor{
		kind:      kind,
		size:      size,
		desc:      desc,
		before:    before,
		after:     after,
		remaining: quota,
	}
}

// params overlays the cursor's pagination state on the caller's base query.
// Pivot paging always orders by creation time.
func (c *pageCursor) params(base url.Values) url.Values {
	v := url.Values{}
	for key, values := range base {
		v[key] = append([]string(nil), values...)
	}
	v.Set("size", strconv.Itoa(c.size))
	v.Set("sort_type", string(types.SortCreated))
	if c.desc {
		v.Set("sort", "desc")
	} else {
		v.Set("sort", "asc")
	}
	if c.after > 0 {
		v.Set("after", strconv.FormatInt(c.after, 10))
	} else {
		v.Del("after")
	}
	if c.before > 0 {
		v.Set("before", strconv.FormatInt(c.before, 10))
	} else {
		v.Del("before")
	}
	return v
}

// pivot returns the boundary the next page would start from, for resume
// reporting.
func (c *pageCursor) pivot() int64 {
	if c.desc {
		return c.before
	}
	return c.after
}

// advance moves the cursor strictly past the page's last record and decides
// exhaustion: an empty page, a short page, a spent quota, or a boundary that
// closed the window.
func (c *pageCursor) advance(page []*types.Record) {
	if len(page) == 0 {
		c.exhausted = true
		return
	}
	if c.remaining > 0 {
		c.remaining -= len(page)
		if c.remaining <= 0 {
			c.exhausted = true
		}
	}
	if len(page) < c.size {
		c.exhausted = true
	}

	last := page[len(page)-1].CreatedUTC
	if c.desc {
		// A pivot that fails to move means the server is misbehaving;
		// stop rather than loop.
		if c.before != 0 && last >= c.before {
			c.exhausted = true
			return
		}
		c.before = last
		if c.after != 0 && c.before <= c.after+1 {
			c.exhausted = true
		}
		return
	}
	if c.after != 0 && last <= c.after {
		c.exhausted = true
		return
	}
	c.after = last
	if c.before != 0 && c.after >= c.before-1 {
		c.exhausted = true
	}
}
