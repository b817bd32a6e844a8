package kline

import (
	"fmt"
	"time"
)

// Timestamp layouts accepted in bar datetimes. Intraday bars carry the full
// layout; daily and coarser bars are usually date-only.
const (
	TimeLayout = "2006-01-02 15:04:05"
	DateLayout = "2006-01-02"
)

// ParseTimestamp parses a bar or fetch timestamp in either accepted layout.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(TimeLayout, s, time.Local); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(DateLayout, s, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp: %q", s)
}

// FormatTimestamp renders a time in the canonical stored layout.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimeLayout)
}

// Bar is one OHLCV record for a symbol at a timestamp. Bars are immutable
// values: state changes happen by whole-dataset replace or keyed upsert,
// never by mutating a stored bar in place.
type Bar struct {
	Symbol   string   `json:"symbol"`
	Datetime string   `json:"datetime"` // The bar's own time, not the fetch time
	Open     float64  `json:"open"`
	High     float64  `json:"high"`
	Low      float64  `json:"low"`
	Close    float64  `json:"close"`
	Volume   int64    `json:"volume"`
	Amount   *float64 `json:"amount,omitempty"`
	// FetchTime records when the bar was last pulled from upstream. Empty
	// means the bar was seeded without provenance and is conservatively
	// treated as always fresh.
	FetchTime string `json:"fetch_time,omitempty"`
}

// NewBar constructs a validated bar. A validation failure is fatal to this
// record only; callers skip the record and continue with the rest of the
// batch.
func NewBar(symbol, datetime string, open, high, low, close float64, volume int64) (Bar, error) {
	b := Bar{
		Symbol:   symbol,
		Datetime: datetime,
		Open:     open,
		High:     high,
		Low:      low,
		Close:    close,
		Volume:   volume,
	}
	if err := b.Validate(); err != nil {
		return Bar{}, err
	}
	return b, nil
}

// Validate checks the OHLC ordering invariant and basic field sanity.
func (b Bar) Validate() error {
	if b.Symbol == "" {
		return fmt.Errorf("bar has empty symbol")
	}
	if b.Datetime == "" {
		return fmt.Errorf("bar %s has empty datetime", b.Symbol)
	}
	if b.Volume < 0 {
		return fmt.Errorf("bar %s@%s has negative volume %d", b.Symbol, b.Datetime, b.Volume)
	}
	if b.High < b.Open || b.High < b.Close {
		return fmt.Errorf("bar %s@%s violates high >= max(open, close)", b.Symbol, b.Datetime)
	}
	if b.Low > b.Open || b.Low > b.Close {
		return fmt.Errorf("bar %s@%s violates low <= min(open, close)", b.Symbol, b.Datetime)
	}
	return nil
}

// Key identifies a bar within a dataset.
type Key struct {
	Symbol   string
	Datetime string
}

// Key returns the bar's dataset key.
func (b Bar) Key() Key {
	return Key{Symbol: b.Symbol, Datetime: b.Datetime}
}

// TimeRange is a half-open span [Start, End] that must be fetched from
// upstream to satisfy a request.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
