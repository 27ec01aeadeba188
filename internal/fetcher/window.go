package fetcher

import (
	"time"

	"github.com/ruthkhan/bouncefeed"
)

// filterAndDedupe keeps records whose send time falls within the trailing
// window, inclusive lower bound, and drops duplicates by record key keeping
// the first seen occurrence. Input order is campaign order then event order.
func filterAndDedupe(records []bouncefeed.BounceRecord, now time.Time, windowDays int) []bouncefeed.BounceRecord {

	cutoff := now.In(time.UTC).Add(-time.Duration(windowDays) * 24 * time.Hour)

	seen := make(map[string]struct{}, len(records))
	out := make([]bouncefeed.BounceRecord, 0, len(records))

	for _, r := range records {
		if r.SentTime.Before(cutoff) {
			continue
		}
		key := r.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}
