package kline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider records requested spans and serves canned bars.
type fakeProvider struct {
	bars   []Bar
	err    error
	calls  int
	starts []time.Time
	ends   []time.Time
}

func (p *fakeProvider) FetchBars(ctx context.Context, symbol string, g Granularity, start, end time.Time) ([]Bar, error) {
	p.calls++
	p.starts = append(p.starts, start)
	p.ends = append(p.ends, end)
	if p.err != nil {
		return nil, p.err
	}
	return p.bars, nil
}

func TestRefresherFetchesMissingWindow(t *testing.T) {
	m := newTestManager(t)
	provider := &fakeProvider{bars: freshDailyBars("600000", 3)}
	r := NewRefresher(m, provider, zerolog.New(nil).Level(zerolog.Disabled))

	bars, err := r.Ensure(context.Background(), "600000", Gran1d, 3)
	require.NoError(t, err)
	assert.Len(t, bars, 3)
	assert.Equal(t, 1, provider.calls)

	// Empty cache: the provider was asked for the padded default lookback.
	require.Len(t, provider.starts, 1)
	assert.Equal(t, 13*24*time.Hour, provider.ends[0].Sub(provider.starts[0]))
}

func TestRefresherSkipsFetchWhenSatisfied(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.MergeUpdate("600000", Gran1d, freshDailyBars("600000", 5)))

	provider := &fakeProvider{}
	r := NewRefresher(m, provider, zerolog.New(nil).Level(zerolog.Disabled))

	bars, err := r.Ensure(context.Background(), "600000", Gran1d, 5)
	require.NoError(t, err)
	assert.Len(t, bars, 5)
	assert.Zero(t, provider.calls)
}

func TestRefresherDegradesToCacheOnProviderFailure(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.MergeUpdate("600000", Gran1d, freshDailyBars("600000", 2)))

	provider := &fakeProvider{err: errors.New("upstream down")}
	r := NewRefresher(m, provider, zerolog.New(nil).Level(zerolog.Disabled))

	bars, err := r.Ensure(context.Background(), "600000", Gran1d, 10)
	require.NoError(t, err)
	assert.Len(t, bars, 2)
	assert.Equal(t, 1, provider.calls)
}

func TestRefresherRejectsUnsupportedGranularity(t *testing.T) {
	m := newTestManager(t)
	r := NewRefresher(m, &fakeProvider{}, zerolog.New(nil).Level(zerolog.Disabled))

	_, err := r.Ensure(context.Background(), "600000", Granularity("2h"), 10)
	assert.Error(t, err)
}
