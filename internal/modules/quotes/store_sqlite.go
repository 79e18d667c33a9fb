package quotes

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/quotegate/internal/domain"
)

// Schema creates the quote cache table. Idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS quote_cache (
	cache_key  TEXT PRIMARY KEY,
	entry      BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_quote_cache_expires ON quote_cache(expires_at);
`

// SQLiteStore persists cache entries as msgpack blobs with an expiration
// column so expired rows can be pruned with plain SQL.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
}

// NewSQLiteStore creates a store over db. ttl sets the expires_at horizon on
// saved rows; freshness checks still live in the cache layer, expires_at
// exists for the cleanup job.
func NewSQLiteStore(db *sql.DB, ttl time.Duration) *SQLiteStore {
	return &SQLiteStore{db: db, ttl: ttl}
}

// Load returns the entry for key regardless of expiration, or (nil, nil)
// when the key is absent.
func (s *SQLiteStore) Load(key string) (*CacheEntry, error) {
	var blob []byte
	err := s.db.QueryRow(
		"SELECT entry FROM quote_cache WHERE cache_key = ?", key,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cache entry %s: %w", key, err)
	}

	var entry CacheEntry
	if err := msgpack.Unmarshal(blob, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry %s: %w", key, err)
	}
	return &entry, nil
}

// Save upserts the entry for key.
func (s *SQLiteStore) Save(key string, rec *domain.Record, ts time.Time) error {
	entry := CacheEntry{Key: key, Timestamp: ts, Record: *rec}
	blob, err := msgpack.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}

	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO quote_cache (cache_key, entry, created_at, expires_at) VALUES (?, ?, ?, ?)",
		key, blob, ts.Unix(), ts.Add(s.ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save cache entry %s: %w", key, err)
	}
	return nil
}

// DeleteExpired removes rows whose expires_at has passed and returns the
// number of rows deleted.
func (s *SQLiteStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(
		"DELETE FROM quote_cache WHERE expires_at < ?", time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}
	return result.RowsAffected()
}
