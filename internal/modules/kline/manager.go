package kline

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/aristath/klinecache/internal/database"
	"github.com/rs/zerolog"
)

// Manager orchestrates one dataset store per granularity. It is constructed
// explicitly with an injected storage root and owned by whoever composes the
// system; there is no process-wide singleton. The manager is the only writer
// of the dataset files.
type Manager struct {
	databases map[Granularity]*database.DB
	stores    map[Granularity]*Store
	log       zerolog.Logger
}

// NewManager opens one SQLite dataset per granularity under dataDir
// (kline_1m.db, kline_5m.db, ... kline_1M.db) and applies schemas.
func NewManager(dataDir string, log zerolog.Logger) (*Manager, error) {
	m := &Manager{
		databases: make(map[Granularity]*database.DB, len(AllGranularities)),
		stores:    make(map[Granularity]*Store, len(AllGranularities)),
		log:       log.With().Str("component", "kline_cache").Logger(),
	}

	for _, g := range AllGranularities {
		db, err := database.New(database.Config{
			Path:    filepath.Join(dataDir, g.DatasetName()+".db"),
			Profile: database.ProfileCache,
			Name:    g.DatasetName(),
		})
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("failed to open dataset %s: %w", g.DatasetName(), err)
		}
		m.databases[g] = db

		store, err := NewStore(g, db.Conn(), log)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("failed to initialize store %s: %w", g.DatasetName(), err)
		}
		m.stores[g] = store
	}

	return m, nil
}

// Close releases all dataset connections.
func (m *Manager) Close() {
	for g, db := range m.databases {
		if err := db.Close(); err != nil {
			m.log.Warn().Err(err).Str("dataset", g.DatasetName()).Msg("Failed to close dataset")
		}
	}
}

// Store returns the dataset store for a granularity, nil for unsupported
// tokens.
func (m *Manager) Store(g Granularity) *Store {
	return m.stores[g]
}

// GetCached returns up to count fresh bars for the symbol, ascending by
// timestamp. The boolean is false on a miss: no rows survived freshness
// filtering (callers branch on data, not on errors). Fewer than count bars is
// not a miss - the caller decides whether to treat a partial result as
// sufficient.
func (m *Manager) GetCached(symbol string, g Granularity, count int) ([]Bar, bool) {
	store := m.stores[g]
	if store == nil || count <= 0 {
		return nil, false
	}

	bars := store.LoadSymbol(symbol)
	fresh := filterFresh(bars, g, time.Now())
	if len(fresh) == 0 {
		return nil, false
	}
	if len(fresh) > count {
		fresh = fresh[len(fresh)-count:]
	}
	return fresh, true
}

// stampAndValidate stamps missing fetch times to now and drops invalid bars
// and bars addressed to a different symbol. Rejecting one bar never aborts
// ingestion of the rest of the batch.
func (m *Manager) stampAndValidate(symbol string, bars []Bar) []Bar {
	now := FormatTimestamp(time.Now())
	kept := make([]Bar, 0, len(bars))
	for _, b := range bars {
		if b.Symbol == "" {
			b.Symbol = symbol
		} else if b.Symbol != symbol {
			// A stray bar for another symbol must not ride along: the keyed
			// upsert would overwrite that symbol's rows.
			m.log.Warn().Str("expected", symbol).Str("got", b.Symbol).Msg("Rejecting bar for mismatched symbol")
			continue
		}
		if err := b.Validate(); err != nil {
			m.log.Warn().Err(err).Msg("Rejecting invalid bar")
			continue
		}
		if b.FetchTime == "" {
			b.FetchTime = now
		}
		kept = append(kept, b)
	}
	return kept
}

// Put overwrites the symbol's rows in the granularity's dataset with the
// given bars. Used when a caller has fetched a complete window and wants to
// discard stale leftovers for that symbol.
func (m *Manager) Put(symbol string, g Granularity, bars []Bar) error {
	store := m.stores[g]
	if store == nil {
		return fmt.Errorf("unsupported granularity: %q", g)
	}
	return store.ReplaceForSymbol(symbol, m.stampAndValidate(symbol, bars))
}

// MergeUpdate upserts the given bars into the symbol's rows, keyed by
// (symbol, datetime). Rows outside the merged key set are never deleted.
// Idempotent: merging the same bars twice yields the same dataset.
func (m *Manager) MergeUpdate(symbol string, g Granularity, bars []Bar) error {
	store := m.stores[g]
	if store == nil {
		return fmt.Errorf("unsupported granularity: %q", g)
	}
	return store.UpsertForSymbol(symbol, m.stampAndValidate(symbol, bars))
}

// AnalyzeMissingRanges computes the minimal time range that must be fetched
// from upstream so that count fresh bars are available for the symbol.
//
// The cache is oversampled at 2x count so freshness filtering is unlikely to
// starve the estimate. An empty cache yields one default lookback window; a
// satisfied cache yields nothing; otherwise the single suffix after the
// latest cached bar. Interior gaps in an otherwise dense series are
// deliberately not detected - the result is always zero or one range.
func (m *Manager) AnalyzeMissingRanges(symbol string, g Granularity, count int) []TimeRange {
	if m.stores[g] == nil || count <= 0 {
		return nil
	}
	now := time.Now()

	cached, ok := m.GetCached(symbol, g, 2*count)
	if !ok || len(cached) == 0 {
		return []TimeRange{{Start: now.Add(-g.DefaultLookback(count)), End: now}}
	}
	if len(cached) >= count {
		return nil
	}

	latest, err := ParseTimestamp(cached[len(cached)-1].Datetime)
	if err != nil {
		// No usable anchor; fall back to the full window.
		return []TimeRange{{Start: now.Add(-g.DefaultLookback(count)), End: now}}
	}

	start := latest.Add(g.Period())
	if !start.Before(now) {
		// The suffix after the latest cached bar has not opened yet.
		return nil
	}
	return []TimeRange{{Start: start, End: now}}
}

// Clear evicts cached bars. Four modes:
//   - symbol and granularity set: that symbol's rows in one dataset
//   - symbol set only: that symbol's rows in every dataset
//   - granularity set only: the entire dataset for that granularity
//   - neither: every dataset
//
// An empty Granularity ("") selects all datasets. Returns the number of rows
// removed.
func (m *Manager) Clear(symbol string, g Granularity) (int64, error) {
	grans := AllGranularities
	if g != "" {
		if m.stores[g] == nil {
			return 0, fmt.Errorf("unsupported granularity: %q", g)
		}
		grans = []Granularity{g}
	}

	var total int64
	for _, gran := range grans {
		store := m.stores[gran]

		var removed int64
		var err error
		if symbol != "" {
			removed, err = store.DeleteSymbol(symbol)
		} else {
			removed, err = store.DeleteAll()
		}
		if err != nil {
			return total, fmt.Errorf("failed to clear %s: %w", gran.DatasetName(), err)
		}
		total += removed
	}

	m.log.Info().
		Str("symbol", symbol).
		Str("granularity", string(g)).
		Int64("removed", total).
		Msg("Cleared cached bars")

	return total, nil
}

// PurgeExpired removes rows that are both stale and carry a fetch time. Rows
// without a fetch time are never removed. Returns the exact number of rows
// removed across all datasets.
func (m *Manager) PurgeExpired() (int64, error) {
	now := time.Now()

	var total int64
	for _, g := range AllGranularities {
		store := m.stores[g]

		var stale []Key
		for _, b := range store.LoadAll() {
			if b.FetchTime == "" {
				continue
			}
			if !IsFresh(b.Datetime, b.FetchTime, g, now) {
				stale = append(stale, b.Key())
			}
		}
		if len(stale) == 0 {
			continue
		}

		removed, err := store.DeleteKeys(stale)
		if err != nil {
			return total, fmt.Errorf("failed to purge %s: %w", g.DatasetName(), err)
		}
		if removed > 0 {
			m.log.Info().
				Str("dataset", g.DatasetName()).
				Int64("removed", removed).
				Msg("Purged expired bars")
		}
		total += removed
	}

	return total, nil
}

// GranularityStats describes one dataset for observability.
type GranularityStats struct {
	Rows      int64  `json:"rows"`
	SizeBytes int64  `json:"size_bytes"`
	Error     string `json:"error,omitempty"`
}

// CacheStats aggregates read-only statistics across all datasets. Failures
// degrade to per-dataset error descriptors, never past the boundary.
type CacheStats struct {
	Granularities map[string]GranularityStats `json:"granularities"`
	Symbols       map[string]int64            `json:"symbols"`
	TotalRows     int64                       `json:"total_rows"`
}

// Stats aggregates row and byte counts per granularity plus row counts per
// symbol across all granularities.
func (m *Manager) Stats() *CacheStats {
	stats := &CacheStats{
		Granularities: make(map[string]GranularityStats, len(AllGranularities)),
		Symbols:       make(map[string]int64),
	}

	for _, g := range AllGranularities {
		store := m.stores[g]
		entry := GranularityStats{}

		rows, err := store.CountRows()
		if err != nil {
			entry.Error = err.Error()
			stats.Granularities[string(g)] = entry
			continue
		}
		entry.Rows = rows
		stats.TotalRows += rows

		if dbStats, err := m.databases[g].GetStats(); err == nil {
			entry.SizeBytes = dbStats.SizeBytes
		}

		if counts, err := store.CountBySymbol(); err == nil {
			for symbol, count := range counts {
				stats.Symbols[symbol] += count
			}
		} else {
			entry.Error = err.Error()
		}

		stats.Granularities[string(g)] = entry
	}

	return stats
}

// CheckpointAll forces a WAL checkpoint on every dataset to prevent WAL
// bloat on long-running instances.
func (m *Manager) CheckpointAll() error {
	for g, db := range m.databases {
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			return fmt.Errorf("checkpoint failed for %s: %w", g.DatasetName(), err)
		}
	}
	return nil
}
