package kline

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T, g Granularity) *Store {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// In-memory databases exist per connection; keep the pool at one.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewStore(g, db, zerolog.New(nil).Level(zerolog.Disabled))
	require.NoError(t, err)
	return store
}

func mustBar(t *testing.T, symbol, datetime string, close float64) Bar {
	t.Helper()
	b, err := NewBar(symbol, datetime, close, close, close, close, 100)
	require.NoError(t, err)
	b.FetchTime = "2025-06-02 10:00:00"
	return b
}

func TestStoreLoadAllEmptyDataset(t *testing.T) {
	store := setupTestStore(t, Gran1d)
	assert.Empty(t, store.LoadAll())
}

func TestStoreUpsertAndLoad(t *testing.T) {
	store := setupTestStore(t, Gran1d)

	bars := []Bar{
		mustBar(t, "600000", "2024-03-01", 10.0),
		mustBar(t, "600000", "2024-03-02", 10.5),
	}
	require.NoError(t, store.UpsertForSymbol("600000", bars))

	loaded := store.LoadSymbol("600000")
	require.Len(t, loaded, 2)
	assert.Equal(t, "2024-03-01", loaded[0].Datetime)
	assert.Equal(t, "2024-03-02", loaded[1].Datetime)
}

func TestStoreUpsertIsIdempotent(t *testing.T) {
	store := setupTestStore(t, Gran1d)

	bars := []Bar{
		mustBar(t, "600000", "2024-03-01", 10.0),
		mustBar(t, "600000", "2024-03-02", 10.5),
	}
	require.NoError(t, store.UpsertForSymbol("600000", bars))
	require.NoError(t, store.UpsertForSymbol("600000", bars))

	count, err := store.CountRows()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestStoreUpsertOverwritesSameKey(t *testing.T) {
	store := setupTestStore(t, Gran1d)

	require.NoError(t, store.UpsertForSymbol("600000", []Bar{mustBar(t, "600000", "2024-03-01", 10.0)}))
	require.NoError(t, store.UpsertForSymbol("600000", []Bar{mustBar(t, "600000", "2024-03-01", 12.0)}))

	loaded := store.LoadSymbol("600000")
	require.Len(t, loaded, 1)
	assert.Equal(t, 12.0, loaded[0].Close)
}

func TestStoreUpsertLeavesOtherSymbolsUntouched(t *testing.T) {
	store := setupTestStore(t, Gran1d)

	require.NoError(t, store.UpsertForSymbol("000001", []Bar{mustBar(t, "000001", "2024-03-01", 8.0)}))
	require.NoError(t, store.UpsertForSymbol("600000", []Bar{mustBar(t, "600000", "2024-03-01", 10.0)}))

	other := store.LoadSymbol("000001")
	require.Len(t, other, 1)
	assert.Equal(t, 8.0, other[0].Close)
}

func TestStoreReplaceForSymbolDiscardsLeftovers(t *testing.T) {
	store := setupTestStore(t, Gran1d)

	require.NoError(t, store.UpsertForSymbol("600000", []Bar{
		mustBar(t, "600000", "2024-03-01", 10.0),
		mustBar(t, "600000", "2024-03-02", 10.5),
		mustBar(t, "600000", "2024-03-03", 10.7),
	}))
	require.NoError(t, store.UpsertForSymbol("000001", []Bar{mustBar(t, "000001", "2024-03-01", 8.0)}))

	require.NoError(t, store.ReplaceForSymbol("600000", []Bar{mustBar(t, "600000", "2024-03-04", 11.0)}))

	loaded := store.LoadSymbol("600000")
	require.Len(t, loaded, 1)
	assert.Equal(t, "2024-03-04", loaded[0].Datetime)

	// Replace never touches other symbols.
	assert.Len(t, store.LoadSymbol("000001"), 1)
}

func TestStoreLoadAllSortedBySymbolThenDatetime(t *testing.T) {
	store := setupTestStore(t, Gran1d)

	require.NoError(t, store.UpsertForSymbol("600000", []Bar{
		mustBar(t, "600000", "2024-03-02", 10.5),
		mustBar(t, "600000", "2024-03-01", 10.0),
	}))
	require.NoError(t, store.UpsertForSymbol("000001", []Bar{mustBar(t, "000001", "2024-03-05", 8.0)}))

	all := store.LoadAll()
	require.Len(t, all, 3)
	assert.Equal(t, "000001", all[0].Symbol)
	assert.Equal(t, "2024-03-01", all[1].Datetime)
	assert.Equal(t, "2024-03-02", all[2].Datetime)
}

func TestStoreSymbolKeepsLeadingZeros(t *testing.T) {
	store := setupTestStore(t, Gran1d)

	require.NoError(t, store.UpsertForSymbol("000858", []Bar{mustBar(t, "000858", "2024-03-01", 150.0)}))

	loaded := store.LoadSymbol("000858")
	require.Len(t, loaded, 1)
	assert.Equal(t, "000858", loaded[0].Symbol)
}

func TestStoreNullableColumns(t *testing.T) {
	store := setupTestStore(t, Gran1d)

	withAmount := mustBar(t, "600000", "2024-03-01", 10.0)
	amount := 123456.78
	withAmount.Amount = &amount

	bare := mustBar(t, "600000", "2024-03-02", 10.5)
	bare.FetchTime = ""

	require.NoError(t, store.UpsertForSymbol("600000", []Bar{withAmount, bare}))

	loaded := store.LoadSymbol("600000")
	require.Len(t, loaded, 2)
	require.NotNil(t, loaded[0].Amount)
	assert.Equal(t, amount, *loaded[0].Amount)
	assert.Nil(t, loaded[1].Amount)
	assert.Empty(t, loaded[1].FetchTime)
}

func TestStoreLoadSkipsUnparsableTimestamps(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewStore(Gran1d, db, zerolog.New(nil).Level(zerolog.Disabled))
	require.NoError(t, err)

	require.NoError(t, store.UpsertForSymbol("600000", []Bar{mustBar(t, "600000", "2024-03-01", 10.0)}))

	// A corrupt row written outside the store, with no fetch provenance.
	_, err = db.Exec(`INSERT INTO bars (symbol, datetime, open, high, low, close, volume)
		VALUES ('600000', 'not-a-timestamp', 10, 11, 9, 10.5, 100)`)
	require.NoError(t, err)

	loaded := store.LoadSymbol("600000")
	require.Len(t, loaded, 1)
	assert.Equal(t, "2024-03-01", loaded[0].Datetime)
	assert.Len(t, store.LoadAll(), 1)
}

func TestStoreSaveAllReplacesDataset(t *testing.T) {
	store := setupTestStore(t, Gran1d)

	require.NoError(t, store.UpsertForSymbol("600000", []Bar{mustBar(t, "600000", "2024-03-01", 10.0)}))
	require.NoError(t, store.SaveAll([]Bar{mustBar(t, "000001", "2024-03-01", 8.0)}))

	all := store.LoadAll()
	require.Len(t, all, 1)
	assert.Equal(t, "000001", all[0].Symbol)
}

func TestStoreDeleteSymbol(t *testing.T) {
	store := setupTestStore(t, Gran1d)

	require.NoError(t, store.UpsertForSymbol("600000", []Bar{
		mustBar(t, "600000", "2024-03-01", 10.0),
		mustBar(t, "600000", "2024-03-02", 10.5),
	}))
	require.NoError(t, store.UpsertForSymbol("000001", []Bar{mustBar(t, "000001", "2024-03-01", 8.0)}))

	removed, err := store.DeleteSymbol("600000")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	assert.Empty(t, store.LoadSymbol("600000"))
	assert.Len(t, store.LoadSymbol("000001"), 1)
}

func TestStoreDeleteKeys(t *testing.T) {
	store := setupTestStore(t, Gran1d)

	require.NoError(t, store.UpsertForSymbol("600000", []Bar{
		mustBar(t, "600000", "2024-03-01", 10.0),
		mustBar(t, "600000", "2024-03-02", 10.5),
	}))

	removed, err := store.DeleteKeys([]Key{
		{Symbol: "600000", Datetime: "2024-03-01"},
		{Symbol: "600000", Datetime: "2099-01-01"}, // absent key, no effect
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	loaded := store.LoadSymbol("600000")
	require.Len(t, loaded, 1)
	assert.Equal(t, "2024-03-02", loaded[0].Datetime)
}

func TestStoreCountBySymbol(t *testing.T) {
	store := setupTestStore(t, Gran1d)

	require.NoError(t, store.UpsertForSymbol("600000", []Bar{
		mustBar(t, "600000", "2024-03-01", 10.0),
		mustBar(t, "600000", "2024-03-02", 10.5),
	}))
	require.NoError(t, store.UpsertForSymbol("000001", []Bar{mustBar(t, "000001", "2024-03-01", 8.0)}))

	counts, err := store.CountBySymbol()
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["600000"])
	assert.Equal(t, int64(1), counts["000001"])
}
