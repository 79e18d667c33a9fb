package quotes

import (
	"golang.org/x/sync/singleflight"

	"github.com/aristath/quotegate/internal/domain"
)

// Deduplicator collapses concurrent fetches for the same cache key into a
// single producer run. All waiters for a key receive the one outcome,
// errors included, and the ledger entry is cleared as soon as the producer
// settles.
type Deduplicator struct {
	group singleflight.Group
}

// NewDeduplicator creates an empty deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{}
}

// Do runs fn for key unless an identical call is already in flight, in which
// case it waits for that call's result instead.
func (d *Deduplicator) Do(key string, fn func() (*domain.Record, error)) (*domain.Record, error) {
	v, err, _ := d.group.Do(key, func() (interface{}, error) {
		rec, err := fn()
		if err != nil {
			return nil, err
		}
		if rec == nil {
			// Avoid a typed-nil interface so callers can test v == nil.
			return nil, nil
		}
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*domain.Record), nil
}
