package kline

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/aristath/klinecache/internal/database"
	"github.com/rs/zerolog"
)

// schema is the column contract of a persisted dataset. One table per
// granularity database file. symbol and datetime are TEXT always so that
// instrument codes with leading zeros survive round-trips.
const schema = `
CREATE TABLE IF NOT EXISTS bars (
	symbol     TEXT NOT NULL,
	datetime   TEXT NOT NULL,
	open       REAL NOT NULL,
	high       REAL NOT NULL,
	low        REAL NOT NULL,
	close      REAL NOT NULL,
	volume     INTEGER NOT NULL DEFAULT 0,
	amount     REAL,
	fetch_time TEXT,
	PRIMARY KEY (symbol, datetime)
);
`

// Store persists the dataset of one granularity across all symbols. All
// mutating operations are serialized behind a per-dataset lock (single-writer
// discipline); reads go against the last-persisted snapshot and may observe
// slightly stale data under a concurrent write, which is acceptable because
// freshness is re-derived on every read.
type Store struct {
	gran Granularity
	db   *sql.DB
	mu   sync.Mutex
	log  zerolog.Logger
}

// NewStore creates a dataset store on the given connection and applies the
// schema idempotently.
func NewStore(gran Granularity, db *sql.DB, log zerolog.Logger) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema for %s: %w", gran.DatasetName(), err)
	}
	return &Store{
		gran: gran,
		db:   db,
		log:  log.With().Str("store", gran.DatasetName()).Logger(),
	}, nil
}

// Granularity returns the granularity this store persists.
func (s *Store) Granularity() Granularity {
	return s.gran
}

// scanBars reads bar rows, skipping malformed ones rather than propagating
// scan failures. A skipped row is logged and excluded from the dataset.
func (s *Store) scanBars(rows *sql.Rows) []Bar {
	var bars []Bar
	for rows.Next() {
		var b Bar
		var amount sql.NullFloat64
		var fetchTime sql.NullString

		if err := rows.Scan(&b.Symbol, &b.Datetime, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &amount, &fetchTime); err != nil {
			s.log.Warn().Err(err).Msg("Skipping malformed bar row")
			continue
		}
		if b.Symbol == "" || b.Datetime == "" {
			s.log.Warn().Str("symbol", b.Symbol).Str("datetime", b.Datetime).Msg("Skipping bar row with empty key")
			continue
		}
		if _, err := ParseTimestamp(b.Datetime); err != nil {
			// A corrupt timestamp can neither be aged nor purged; excluding
			// the row here keeps it from being served as fresh forever.
			s.log.Warn().Str("symbol", b.Symbol).Str("datetime", b.Datetime).Msg("Skipping bar row with unparsable timestamp")
			continue
		}
		if amount.Valid {
			v := amount.Float64
			b.Amount = &v
		}
		if fetchTime.Valid {
			b.FetchTime = fetchTime.String
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		s.log.Warn().Err(err).Msg("Error iterating bar rows")
	}
	return bars
}

// LoadAll reads the full dataset sorted by (symbol, datetime). An I/O failure
// degrades to an empty dataset - callers treat it as a cache miss.
func (s *Store) LoadAll() []Bar {
	rows, err := s.db.Query(`SELECT symbol, datetime, open, high, low, close, volume, amount, fetch_time FROM bars ORDER BY symbol, datetime`)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to load dataset, treating as empty")
		return nil
	}
	defer rows.Close()

	return s.scanBars(rows)
}

// LoadSymbol reads one symbol's rows sorted by datetime ascending. An I/O
// failure degrades to an empty result.
func (s *Store) LoadSymbol(symbol string) []Bar {
	rows, err := s.db.Query(`SELECT symbol, datetime, open, high, low, close, volume, amount, fetch_time FROM bars WHERE symbol = ? ORDER BY datetime`, symbol)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to load symbol rows, treating as empty")
		return nil
	}
	defer rows.Close()

	return s.scanBars(rows)
}

func insertBars(tx *sql.Tx, bars []Bar) error {
	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO bars
		(symbol, datetime, open, high, low, close, volume, amount, fetch_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		amount := sql.NullFloat64{}
		if b.Amount != nil {
			amount.Float64 = *b.Amount
			amount.Valid = true
		}
		fetchTime := sql.NullString{}
		if b.FetchTime != "" {
			fetchTime.String = b.FetchTime
			fetchTime.Valid = true
		}

		if _, err := stmt.Exec(b.Symbol, b.Datetime, b.Open, b.High, b.Low, b.Close, b.Volume, amount, fetchTime); err != nil {
			return fmt.Errorf("failed to insert bar %s@%s: %w", b.Symbol, b.Datetime, err)
		}
	}
	return nil
}

// SaveAll replaces the entire dataset. Best-effort, not transactional across
// process crashes: on failure the prior on-disk state is left untouched.
func (s *Store) SaveAll(bars []Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM bars`); err != nil {
			return err
		}
		return insertBars(tx, bars)
	})
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to save dataset, prior state unchanged")
		return err
	}
	return nil
}

// ReplaceForSymbol removes all existing rows for the symbol and writes the
// given bars in their place, leaving other symbols untouched.
func (s *Store) ReplaceForSymbol(symbol string, bars []Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM bars WHERE symbol = ?`, symbol); err != nil {
			return err
		}
		return insertBars(tx, bars)
	})
	if err != nil {
		s.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to replace symbol rows, prior state unchanged")
		return err
	}
	return nil
}

// UpsertForSymbol overwrites or adds the given bars keyed by (symbol,
// datetime), leaving every other row untouched. Applying the same bars twice
// yields the same dataset.
func (s *Store) UpsertForSymbol(symbol string, bars []Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		return insertBars(tx, bars)
	})
	if err != nil {
		s.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to upsert symbol rows, prior state unchanged")
		return err
	}
	return nil
}

// DeleteSymbol removes all rows for a symbol. Returns the number of rows
// removed.
func (s *Store) DeleteSymbol(symbol string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`DELETE FROM bars WHERE symbol = ?`, symbol)
	if err != nil {
		return 0, fmt.Errorf("failed to delete rows for %s: %w", symbol, err)
	}
	removed, _ := result.RowsAffected()
	return removed, nil
}

// DeleteAll empties the dataset. Returns the number of rows removed.
func (s *Store) DeleteAll() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`DELETE FROM bars`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete dataset: %w", err)
	}
	removed, _ := result.RowsAffected()
	return removed, nil
}

// DeleteKeys removes exactly the given keys. Returns the number of rows
// removed.
func (s *Store) DeleteKeys(keys []Key) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`DELETE FROM bars WHERE symbol = ? AND datetime = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, k := range keys {
			result, err := stmt.Exec(k.Symbol, k.Datetime)
			if err != nil {
				return err
			}
			n, _ := result.RowsAffected()
			removed += n
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete keys: %w", err)
	}
	return removed, nil
}

// CountRows returns the total number of rows in the dataset.
func (s *Store) CountRows() (int64, error) {
	var count int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM bars`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return count, nil
}

// CountBySymbol returns row counts grouped by symbol.
func (s *Store) CountBySymbol() (map[string]int64, error) {
	rows, err := s.db.Query(`SELECT symbol, COUNT(*) FROM bars GROUP BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to count rows by symbol: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var symbol string
		var count int64
		if err := rows.Scan(&symbol, &count); err != nil {
			return nil, fmt.Errorf("failed to scan symbol count: %w", err)
		}
		counts[symbol] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symbol counts: %w", err)
	}
	return counts, nil
}
