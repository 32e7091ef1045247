package upload

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	SortNewest = "newest"
	SortOldest = "oldest"

	defaultPageSize = 20
	maxPageSize     = 100
)

// ListOptions filters and pages a user's uploads. Every field is optional;
// malformed values normalize to defaults instead of failing the request.
type ListOptions struct {
	Search    string
	Sort      string
	Page      int
	PageSize  int
	Tags      []string
	FileTypes []string
	DateFrom  string // YYYY-MM-DD, inclusive UTC day start
	DateTo    string // YYYY-MM-DD, inclusive UTC day end
}

// Normalize clamps numeric fields, falls back on unknown sort values, and
// sorts/dedups the set fields so equal queries produce equal cache keys.
func (o ListOptions) Normalize() ListOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PageSize < 1 {
		o.PageSize = defaultPageSize
	}
	if o.PageSize > maxPageSize {
		o.PageSize = maxPageSize
	}
	if o.Sort != SortOldest {
		o.Sort = SortNewest
	}
	o.Search = strings.TrimSpace(o.Search)
	o.Tags = normalizeSet(o.Tags)
	o.FileTypes = normalizeSet(o.FileTypes)
	if _, ok := parseDay(o.DateFrom); !ok {
		o.DateFrom = ""
	}
	if _, ok := parseDay(o.DateTo); !ok {
		o.DateTo = ""
	}
	return o
}

// cacheKey assumes o is already normalized. Free-text parts are quoted so
// a tag containing a comma cannot collide with a pair of tags.
func (o ListOptions) cacheKey(userID int64) string {
	return fmt.Sprintf("uploads:%d:q=%s:sort=%s:p=%d:ps=%d:tags=%s:types=%s:from=%s:to=%s",
		userID,
		strconv.Quote(strings.ToLower(o.Search)),
		o.Sort,
		o.Page,
		o.PageSize,
		quoteSet(o.Tags),
		quoteSet(o.FileTypes),
		o.DateFrom,
		o.DateTo,
	)
}

func quoteSet(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		quoted = append(quoted, strconv.Quote(v))
	}
	return strings.Join(quoted, ",")
}

// dateBounds returns the UTC half-open interval [from, to) implied by the
// calendar-day fields; either bound may be zero when unset.
func (o ListOptions) dateBounds() (from, to time.Time) {
	if day, ok := parseDay(o.DateFrom); ok {
		from = day
	}
	if day, ok := parseDay(o.DateTo); ok {
		to = day.Add(24 * time.Hour)
	}
	return from, to
}

func parseDay(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	day, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

func normalizeSet(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
