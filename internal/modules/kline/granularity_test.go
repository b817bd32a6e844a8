package kline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGranularity(t *testing.T) {
	for _, g := range AllGranularities {
		parsed, err := ParseGranularity(string(g))
		require.NoError(t, err)
		assert.Equal(t, g, parsed)
	}

	_, err := ParseGranularity("2h")
	assert.Error(t, err)

	_, err = ParseGranularity("")
	assert.Error(t, err)

	// Tokens are case-sensitive: 1M is monthly, 1m is one minute.
	oneMonth, err := ParseGranularity("1M")
	require.NoError(t, err)
	oneMinute, err := ParseGranularity("1m")
	require.NoError(t, err)
	assert.NotEqual(t, oneMonth.Period(), oneMinute.Period())
}

func TestDatasetName(t *testing.T) {
	assert.Equal(t, "kline_1d", Gran1d.DatasetName())
	assert.Equal(t, "kline_1M", Gran1M.DatasetName())
}

func TestHistoricalThreshold(t *testing.T) {
	assert.Equal(t, 48*time.Hour, Gran1d.HistoricalThreshold())
	assert.Equal(t, time.Hour, Gran5m.HistoricalThreshold())
	assert.Equal(t, time.Hour, Gran1h.HistoricalThreshold())

	// Weekly and monthly bars use the TTL path only.
	assert.Zero(t, Gran1w.HistoricalThreshold())
	assert.Zero(t, Gran1M.HistoricalThreshold())
}

func TestSamePeriodTTL(t *testing.T) {
	assert.Equal(t, time.Minute, Gran1m.SamePeriodTTL())
	assert.Equal(t, time.Hour, Gran60m.SamePeriodTTL())
	assert.Equal(t, time.Hour, Gran1h.SamePeriodTTL())
	assert.Equal(t, 4*time.Hour, Gran1d.SamePeriodTTL())
	assert.Equal(t, 24*time.Hour, Gran1w.SamePeriodTTL())
	assert.Equal(t, 24*time.Hour, Gran1M.SamePeriodTTL())
}

func TestDefaultLookback(t *testing.T) {
	// Daily lookback pads by 10 days to absorb weekends and holidays.
	assert.Equal(t, 40*24*time.Hour, Gran1d.DefaultLookback(30))

	assert.Equal(t, 30*time.Minute, Gran1m.DefaultLookback(30))
	assert.Equal(t, 2*7*24*time.Hour, Gran1w.DefaultLookback(2))
}
