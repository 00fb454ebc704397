package cache

import (
	"sort"
	"strings"

	"github.com/kiwina/gules/internal/api"
)

// MergeActivities returns the union of existing and incoming keyed by id,
// sorted newest first. When both contain an id the incoming activity wins.
func MergeActivities(existing, incoming []api.Activity) []api.Activity {
	byID := make(map[string]api.Activity, len(existing)+len(incoming))
	for _, a := range existing {
		byID[a.ID] = a
	}
	for _, a := range incoming {
		byID[a.ID] = a
	}

	out := make([]api.Activity, 0, len(byID))
	for _, a := range byID {
		out = append(out, a)
	}
	SortNewestFirst(out)
	return out
}

// SortNewestFirst orders activities by create time descending, breaking ties
// by id descending so the result does not depend on input order.
func SortNewestFirst(activities []api.Activity) {
	sort.SliceStable(activities, func(i, j int) bool {
		if c := compareCreateTime(activities[i], activities[j]); c != 0 {
			return c > 0
		}
		return activities[i].ID > activities[j].ID
	})
}

// compareCreateTime compares parsed RFC 3339 timestamps so that differing
// precision or offsets order correctly. An unparseable value is older than
// any parseable one, and two unparseable values compare as raw strings, which
// keeps the order total when the two kinds are mixed.
func compareCreateTime(a, b api.Activity) int {
	ta, errA := a.CreatedAt()
	tb, errB := b.CreatedAt()
	switch {
	case errA == nil && errB == nil:
		return ta.Compare(tb)
	case errA == nil:
		return 1
	case errB == nil:
		return -1
	}
	return strings.Compare(a.CreateTime, b.CreateTime)
}
