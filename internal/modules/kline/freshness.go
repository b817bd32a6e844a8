package kline

import "time"

// IsFresh decides whether a cached bar is still authoritative or must be
// re-fetched from upstream. Distant bars are immutable facts (revision
// windows close); only bars for the current, still-open period can still be
// revised by the exchange and must be re-pulled periodically.
//
// The decision never fails: an unparsable timestamp counts as not fresh,
// pushing the caller toward a re-fetch rather than toward stale data.
func IsFresh(barTime, fetchTime string, g Granularity, now time.Time) bool {
	// A bar seeded without provenance is conservatively kept.
	if fetchTime == "" {
		return true
	}

	ts, err := ParseTimestamp(barTime)
	if err != nil {
		return false
	}

	// Old enough to be permanent: once a bar is past the granularity's
	// historical threshold it never changes again.
	if threshold := g.HistoricalThreshold(); threshold > 0 {
		if now.Sub(ts) > threshold {
			return true
		}
	}

	// A daily bar fetched on a later calendar day than the one it represents
	// is final and will not be revised.
	if g == Gran1d {
		if ft, err := ParseTimestamp(fetchTime); err == nil {
			if ts.Format(DateLayout) != ft.Format(DateLayout) {
				return true
			}
		}
	}

	// Same-period bar: valid for the granularity's TTL since the last fetch.
	ft, err := ParseTimestamp(fetchTime)
	if err != nil {
		return false
	}
	return now.Sub(ft) < g.SamePeriodTTL()
}

// filterFresh returns the bars that survive the freshness policy, preserving
// order.
func filterFresh(bars []Bar, g Granularity, now time.Time) []Bar {
	fresh := make([]Bar, 0, len(bars))
	for _, b := range bars {
		if IsFresh(b.Datetime, b.FetchTime, g, now) {
			fresh = append(fresh, b)
		}
	}
	return fresh
}
