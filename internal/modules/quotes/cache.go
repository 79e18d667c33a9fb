// Package quotes implements the quote acquisition pipeline: local result
// cache, request deduplication and the resolver-driven fetch service.
package quotes

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/quotegate/internal/domain"
)

// CacheEntry is one cached normalized record plus the moment it was stored.
type CacheEntry struct {
	Key       string        `msgpack:"key"`
	Timestamp time.Time     `msgpack:"timestamp"`
	Record    domain.Record `msgpack:"record"`
}

// Store persists cache entries. Load returns (nil, nil) on a clean miss.
type Store interface {
	Load(key string) (*CacheEntry, error)
	Save(key string, rec *domain.Record, ts time.Time) error
}

// Cache is the freshness layer over a Store. Stores only persist; whether an
// entry is usable is decided here: it must be younger than the TTL, and a
// "max" range request additionally demands a record that carries the
// full-history change, so partial records never satisfy full-history asks.
type Cache struct {
	store Store
	ttl   time.Duration
	clock func() time.Time
	log   zerolog.Logger
}

// NewCache wraps store with TTL-based freshness checks.
func NewCache(store Store, ttl time.Duration, log zerolog.Logger) *Cache {
	return &Cache{
		store: store,
		ttl:   ttl,
		clock: time.Now,
		log:   log.With().Str("component", "result_cache").Logger(),
	}
}

// Get returns the cached record for key when it is still usable for the
// requested range.
func (c *Cache) Get(key, rng string) (*domain.Record, bool) {
	entry, err := c.store.Load(key)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Cache load failed, treating as miss")
		return nil, false
	}
	if entry == nil {
		return nil, false
	}
	if c.clock().Sub(entry.Timestamp) >= c.ttl {
		return nil, false
	}
	if rng == "max" && !entry.Record.HasChange(domain.HorizonMax) {
		return nil, false
	}
	rec := entry.Record
	return &rec, true
}

// Save stores rec under key, stamped with the current time.
func (c *Cache) Save(key string, rec *domain.Record) {
	if err := c.store.Save(key, rec, c.clock()); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Cache save failed")
	}
}
