package kline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Provider is the upstream market-data boundary. Given a span for a
// granularity it returns an ordered sequence of bars covering it. The cache
// never fetches data itself; a concrete provider is supplied by whoever
// composes the system.
type Provider interface {
	FetchBars(ctx context.Context, symbol string, g Granularity, start, end time.Time) ([]Bar, error)
}

// Refresher composes analyze -> fetch -> merge on behalf of callers that
// want count fresh bars without tracking gaps themselves.
type Refresher struct {
	manager  *Manager
	provider Provider
	log      zerolog.Logger
}

// NewRefresher creates a refresher over the given cache and provider.
func NewRefresher(manager *Manager, provider Provider, log zerolog.Logger) *Refresher {
	return &Refresher{
		manager:  manager,
		provider: provider,
		log:      log.With().Str("component", "kline_refresher").Logger(),
	}
}

// Ensure returns up to count fresh bars for the symbol, fetching only the
// missing range from upstream first. A provider failure degrades to whatever
// the cache already holds.
func (r *Refresher) Ensure(ctx context.Context, symbol string, g Granularity, count int) ([]Bar, error) {
	if !g.Valid() {
		return nil, fmt.Errorf("unsupported granularity: %q", g)
	}

	for _, gap := range r.manager.AnalyzeMissingRanges(symbol, g, count) {
		bars, err := r.provider.FetchBars(ctx, symbol, g, gap.Start, gap.End)
		if err != nil {
			r.log.Warn().
				Err(err).
				Str("symbol", symbol).
				Str("granularity", string(g)).
				Time("start", gap.Start).
				Time("end", gap.End).
				Msg("Upstream fetch failed, serving cached bars only")
			break
		}
		if err := r.manager.MergeUpdate(symbol, g, bars); err != nil {
			return nil, fmt.Errorf("failed to merge fetched bars: %w", err)
		}
	}

	bars, _ := r.manager.GetCached(symbol, g, count)
	return bars, nil
}
