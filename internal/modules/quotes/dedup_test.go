package quotes

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/quotegate/internal/domain"
)

func TestDeduplicator_SharesOneProducerRun(t *testing.T) {
	d := NewDeduplicator()

	var calls int32
	release := make(chan struct{})
	producer := func() (*domain.Record, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return &domain.Record{Ticker: "SBER", Price: 100}, nil
	}

	const waiters = 20
	var wg sync.WaitGroup
	records := make([]*domain.Record, waiters)
	errs := make([]error, waiters)

	started := make(chan struct{}, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started <- struct{}{}
			records[i], errs[i] = d.Do("yahoo:MOEX:SBER:1y", producer)
		}(i)
	}

	// Wait for every goroutine to be underway before releasing the producer.
	for i := 0; i < waiters; i++ {
		<-started
	}
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for i := 0; i < waiters; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, records[i])
		assert.Equal(t, 100.0, records[i].Price)
	}
}

func TestDeduplicator_ErrorsAreShared(t *testing.T) {
	d := NewDeduplicator()
	boom := errors.New("upstream down")

	rec, err := d.Do("k", func() (*domain.Record, error) {
		return nil, boom
	})
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, boom)
}

func TestDeduplicator_NilRecordPassesThrough(t *testing.T) {
	d := NewDeduplicator()

	rec, err := d.Do("k", func() (*domain.Record, error) {
		return nil, nil
	})
	assert.Nil(t, rec)
	assert.NoError(t, err)
}

func TestDeduplicator_EntryClearedAfterSettlement(t *testing.T) {
	d := NewDeduplicator()

	var calls int32
	producer := func() (*domain.Record, error) {
		atomic.AddInt32(&calls, 1)
		return &domain.Record{Price: 1}, nil
	}

	_, err := d.Do("k", producer)
	require.NoError(t, err)
	_, err = d.Do("k", producer)
	require.NoError(t, err)

	// Sequential calls are separate producer runs.
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDeduplicator_DistinctKeysDoNotCollapse(t *testing.T) {
	d := NewDeduplicator()

	var calls int32
	producer := func() (*domain.Record, error) {
		atomic.AddInt32(&calls, 1)
		return &domain.Record{Price: 1}, nil
	}

	_, _ = d.Do("a", producer)
	_, _ = d.Do("b", producer)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
