package quotes

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/quotegate/internal/domain"
)

func sampleRecord() *domain.Record {
	open := 99.5
	return &domain.Record{
		Ticker:   "SBER",
		Name:     "Sberbank of Russia",
		Currency: "RUB",
		Exchange: domain.ExchangeMOEX,
		Price:    100,
		OpenPrice: &open,
		Timestamp: time.Date(2024, 6, 28, 15, 30, 0, 0, time.UTC),
		Changes: map[domain.Horizon]domain.Change{
			domain.Horizon1D: {Pct: 0.01, Date: time.Date(2024, 6, 27, 0, 0, 0, 0, time.UTC)},
		},
		Source: "yahoo",
	}
}

func maxRecord() *domain.Record {
	rec := sampleRecord()
	rec.Changes[domain.HorizonMax] = domain.Change{
		Pct:  1.5,
		Date: time.Date(2010, 1, 4, 0, 0, 0, 0, time.UTC),
	}
	return rec
}

func TestCache_FreshEntryIsServed(t *testing.T) {
	cache := NewCache(NewMemoryStore(), 10*time.Minute, zerolog.Nop())

	cache.Save("k", sampleRecord())

	rec, ok := cache.Get("k", "1y")
	require.True(t, ok)
	assert.Equal(t, "SBER", rec.Ticker)
	assert.Equal(t, 100.0, rec.Price)
}

func TestCache_ExpiredEntryIsMiss(t *testing.T) {
	cache := NewCache(NewMemoryStore(), 10*time.Minute, zerolog.Nop())

	now := time.Date(2024, 6, 28, 12, 0, 0, 0, time.UTC)
	cache.clock = func() time.Time { return now }
	cache.Save("k", sampleRecord())

	// Just inside the TTL.
	cache.clock = func() time.Time { return now.Add(10*time.Minute - time.Second) }
	_, ok := cache.Get("k", "1y")
	assert.True(t, ok)

	// At the TTL boundary the entry is stale.
	cache.clock = func() time.Time { return now.Add(10 * time.Minute) }
	_, ok = cache.Get("k", "1y")
	assert.False(t, ok)
}

func TestCache_MaxRangeRequiresFullHistoryRecord(t *testing.T) {
	cache := NewCache(NewMemoryStore(), 10*time.Minute, zerolog.Nop())

	cache.Save("k", sampleRecord())

	// A record without the full-history change cannot satisfy a max ask.
	_, ok := cache.Get("k", "max")
	assert.False(t, ok)

	// But it still serves narrower ranges.
	_, ok = cache.Get("k", "1y")
	assert.True(t, ok)

	cache.Save("k", maxRecord())
	rec, ok := cache.Get("k", "max")
	require.True(t, ok)
	assert.True(t, rec.HasChange(domain.HorizonMax))
}

func TestCache_MissOnUnknownKey(t *testing.T) {
	cache := NewCache(NewMemoryStore(), 10*time.Minute, zerolog.Nop())
	_, ok := cache.Get("nope", "1y")
	assert.False(t, ok)
}

func setupSQLiteStore(t *testing.T, ttl time.Duration) (*SQLiteStore, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(Schema)
	require.NoError(t, err)

	return NewSQLiteStore(db, ttl), db
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	store, _ := setupSQLiteStore(t, 10*time.Minute)

	ts := time.Date(2024, 6, 28, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save("yahoo:MOEX:SBER:1y", maxRecord(), ts))

	entry, err := store.Load("yahoo:MOEX:SBER:1y")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "yahoo:MOEX:SBER:1y", entry.Key)
	assert.True(t, entry.Timestamp.Equal(ts))
	assert.Equal(t, 100.0, entry.Record.Price)
	assert.Equal(t, domain.ExchangeMOEX, entry.Record.Exchange)
	require.NotNil(t, entry.Record.OpenPrice)
	assert.Equal(t, 99.5, *entry.Record.OpenPrice)
	assert.True(t, entry.Record.HasChange(domain.HorizonMax))
}

func TestSQLiteStore_MissingKey(t *testing.T) {
	store, _ := setupSQLiteStore(t, 10*time.Minute)

	entry, err := store.Load("absent")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestSQLiteStore_SaveOverwrites(t *testing.T) {
	store, _ := setupSQLiteStore(t, 10*time.Minute)

	ts := time.Now().UTC()
	require.NoError(t, store.Save("k", sampleRecord(), ts))

	updated := sampleRecord()
	updated.Price = 200
	require.NoError(t, store.Save("k", updated, ts.Add(time.Minute)))

	entry, err := store.Load("k")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 200.0, entry.Record.Price)
}

func TestSQLiteStore_DeleteExpired(t *testing.T) {
	store, db := setupSQLiteStore(t, time.Minute)

	// One row already expired, one still live.
	require.NoError(t, store.Save("old", sampleRecord(), time.Now().Add(-time.Hour)))
	require.NoError(t, store.Save("fresh", sampleRecord(), time.Now()))

	deleted, err := store.DeleteExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM quote_cache").Scan(&count))
	assert.Equal(t, 1, count)

	entry, err := store.Load("fresh")
	require.NoError(t, err)
	assert.NotNil(t, entry)
}

func TestCleanupJob(t *testing.T) {
	store, _ := setupSQLiteStore(t, time.Minute)
	require.NoError(t, store.Save("old", sampleRecord(), time.Now().Add(-time.Hour)))

	job := NewCleanupJob(store, zerolog.Nop())
	assert.Equal(t, "quote_cache_cleanup", job.Name())
	require.NoError(t, job.Run())

	entry, err := store.Load("old")
	require.NoError(t, err)
	assert.Nil(t, entry)
}
