// Package kline implements the persistent K-line (OHLCV bar) cache: one
// dataset per granularity, freshness rules deciding when a cached bar must be
// re-fetched from upstream, and gap analysis bounding upstream calls.
package kline

import (
	"fmt"
	"time"
)

// Granularity is the time-bucket size of a bar series.
type Granularity string

// Supported granularities. The set is closed: anything else is rejected at
// the API boundary. "60m" and "1h" are distinct tokens with identical
// parameters and distinct dataset files - aliasing them would silently merge
// datasets written under either token.
const (
	Gran1m  Granularity = "1m"
	Gran5m  Granularity = "5m"
	Gran15m Granularity = "15m"
	Gran30m Granularity = "30m"
	Gran60m Granularity = "60m"
	Gran1h  Granularity = "1h"
	Gran1d  Granularity = "1d"
	Gran1w  Granularity = "1w"
	Gran1M  Granularity = "1M"
)

// AllGranularities lists every supported granularity, one dataset each.
var AllGranularities = []Granularity{
	Gran1m, Gran5m, Gran15m, Gran30m, Gran60m, Gran1h, Gran1d, Gran1w, Gran1M,
}

// ParseGranularity validates a granularity token.
func ParseGranularity(s string) (Granularity, error) {
	for _, g := range AllGranularities {
		if string(g) == s {
			return g, nil
		}
	}
	return "", fmt.Errorf("unsupported granularity: %q", s)
}

// Valid reports whether g is one of the supported granularities.
func (g Granularity) Valid() bool {
	_, err := ParseGranularity(string(g))
	return err == nil
}

// DatasetName returns the persisted dataset name for this granularity,
// e.g. "kline_1d".
func (g Granularity) DatasetName() string {
	return "kline_" + string(g)
}

// Period returns the length of one bar at this granularity. Months are
// approximated at 30 days; the value is only used for lookback sizing and
// gap-suffix starts, never for bar alignment.
func (g Granularity) Period() time.Duration {
	switch g {
	case Gran1m:
		return time.Minute
	case Gran5m:
		return 5 * time.Minute
	case Gran15m:
		return 15 * time.Minute
	case Gran30m:
		return 30 * time.Minute
	case Gran60m, Gran1h:
		return time.Hour
	case Gran1d:
		return 24 * time.Hour
	case Gran1w:
		return 7 * 24 * time.Hour
	case Gran1M:
		return 30 * 24 * time.Hour
	}
	return 24 * time.Hour
}

// HistoricalThreshold returns the age beyond which a bar is permanently
// fresh regardless of fetch recency. Zero means no historical rule: weekly
// and monthly bars rely on the same-period TTL alone.
func (g Granularity) HistoricalThreshold() time.Duration {
	switch g {
	case Gran1d:
		return 2 * 24 * time.Hour
	case Gran1m, Gran5m, Gran15m, Gran30m, Gran60m, Gran1h:
		return time.Hour
	}
	return 0
}

// SamePeriodTTL returns how long a freshly fetched bar for the current,
// still-open period remains valid.
func (g Granularity) SamePeriodTTL() time.Duration {
	switch g {
	case Gran1m:
		return time.Minute
	case Gran5m:
		return 5 * time.Minute
	case Gran15m:
		return 15 * time.Minute
	case Gran30m:
		return 30 * time.Minute
	case Gran60m, Gran1h:
		return time.Hour
	case Gran1d:
		return 4 * time.Hour
	case Gran1w, Gran1M:
		return 24 * time.Hour
	}
	return 24 * time.Hour
}

// DefaultLookback returns the window to request from upstream when the cache
// holds nothing for a symbol. Daily bars pad the day count by 10 to absorb
// weekends and holidays.
func (g Granularity) DefaultLookback(count int) time.Duration {
	if count <= 0 {
		count = 1
	}
	if g == Gran1d {
		return time.Duration(count+10) * 24 * time.Hour
	}
	return time.Duration(count) * g.Period()
}
