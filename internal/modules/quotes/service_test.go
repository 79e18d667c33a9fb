package quotes

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/quotegate/internal/domain"
	"github.com/aristath/quotegate/internal/modules/resolver"
	"github.com/aristath/quotegate/internal/modules/timeseries"
)

// fakeFetcher serves canned payloads per symbol and records every request.
type fakeFetcher struct {
	mu       sync.Mutex
	payloads map[string]*timeseries.ChartPayload
	errs     map[string]error
	requests []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		payloads: make(map[string]*timeseries.ChartPayload),
		errs:     make(map[string]error),
	}
}

func (f *fakeFetcher) FetchChart(ctx context.Context, symbol, rng string) (*timeseries.ChartPayload, error) {
	f.mu.Lock()
	f.requests = append(f.requests, symbol)
	f.mu.Unlock()

	if err, ok := f.errs[symbol]; ok {
		return nil, err
	}
	return f.payloads[symbol], nil
}

func (f *fakeFetcher) requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	copy(out, f.requests)
	return out
}

// chartFor builds a minimal payload with a single close.
func chartFor(price float64) *timeseries.ChartPayload {
	p := &timeseries.ChartPayload{}
	close := price
	r := timeseries.ChartResult{
		Timestamp: []int64{time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC).Unix()},
	}
	r.Indicators.Quote = []timeseries.Quote{{Close: []*float64{&close}}}
	p.Chart.Result = []timeseries.ChartResult{r}
	return p
}

func newTestService(fetcher Fetcher) (*Service, *resolver.Resolver) {
	res := resolver.New(resolver.DefaultOverrides(), resolver.NewMemorySuccessStore(), zerolog.Nop())
	norm := timeseries.New(zerolog.Nop())
	cache := NewCache(NewMemoryStore(), 10*time.Minute, zerolog.Nop())
	return NewService(res, norm, fetcher, cache, zerolog.Nop()), res
}

func TestGetQuote_FetchesAndCaches(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.payloads["SBER.ME"] = chartFor(250)
	svc, res := newTestService(fetcher)

	rec, err := svc.GetQuote(context.Background(), "SBER", "MOEX", "STOCK", "1y", false)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 250.0, rec.Price)

	// The winning symbol is memoized.
	learned, ok := res.Learned("SBER", domain.ExchangeMOEX)
	require.True(t, ok)
	assert.Equal(t, "SBER.ME", learned)

	// Second call is served from cache without another fetch.
	before := len(fetcher.requested())
	rec2, err := svc.GetQuote(context.Background(), "SBER", "MOEX", "STOCK", "1y", false)
	require.NoError(t, err)
	require.NotNil(t, rec2)
	assert.Equal(t, before, len(fetcher.requested()))
}

func TestGetQuote_ForceBypassesCacheRead(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.payloads["SBER.ME"] = chartFor(250)
	svc, _ := newTestService(fetcher)

	_, err := svc.GetQuote(context.Background(), "SBER", "MOEX", "STOCK", "1y", false)
	require.NoError(t, err)
	before := len(fetcher.requested())

	_, err = svc.GetQuote(context.Background(), "SBER", "MOEX", "STOCK", "1y", true)
	require.NoError(t, err)
	assert.Greater(t, len(fetcher.requested()), before)
}

func TestGetQuote_EmptyCandidatesSkipsNetwork(t *testing.T) {
	fetcher := newFakeFetcher()
	svc, _ := newTestService(fetcher)

	// Numeric ticker outside MOEX index codes resolves to nothing.
	rec, err := svc.GetQuote(context.Background(), "123456", "NYSE", "STOCK", "1y", false)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Empty(t, fetcher.requested())
}

func TestGetQuote_FallsThroughToLaterCandidate(t *testing.T) {
	fetcher := newFakeFetcher()
	// An index probe: plain symbol yields nothing, caret variant has data.
	fetcher.payloads["IMOEX.ME"] = nil
	fetcher.payloads["^IMOEX.ME"] = chartFor(3200)
	svc, res := newTestService(fetcher)

	rec, err := svc.GetQuote(context.Background(), "IMOEX", "MOEX", "INDEX", "1y", false)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 3200.0, rec.Price)

	learned, ok := res.Learned("IMOEX", domain.ExchangeMOEX)
	require.True(t, ok)
	assert.Equal(t, "^IMOEX.ME", learned)
}

func TestGetQuote_LearnedSymbolIsPromoted(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.payloads["^IMOEX.ME"] = chartFor(3200)
	svc, res := newTestService(fetcher)
	res.RecordSuccess("IMOEX", domain.ExchangeMOEX, "^IMOEX.ME")

	rec, err := svc.GetQuote(context.Background(), "IMOEX", "MOEX", "INDEX", "1y", false)
	require.NoError(t, err)
	require.NotNil(t, rec)

	reqs := fetcher.requested()
	require.NotEmpty(t, reqs)
	assert.Contains(t, reqs, "^IMOEX.ME")
}

func TestGetQuote_AllCandidatesError(t *testing.T) {
	fetcher := newFakeFetcher()
	boom := errors.New("connection refused")
	fetcher.errs["SBER.ME"] = boom
	svc, _ := newTestService(fetcher)

	rec, err := svc.GetQuote(context.Background(), "SBER", "MOEX", "STOCK", "1y", false)
	assert.Nil(t, rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestGetQuote_NoUsableRecordIsNotAnError(t *testing.T) {
	fetcher := newFakeFetcher()
	svc, _ := newTestService(fetcher)

	rec, err := svc.GetQuote(context.Background(), "SBER", "MOEX", "STOCK", "1y", false)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestGetQuote_ValidationErrors(t *testing.T) {
	svc, _ := newTestService(newFakeFetcher())

	_, err := svc.GetQuote(context.Background(), "SBER", "NOPE", "STOCK", "1y", false)
	assert.Error(t, err)

	_, err = svc.GetQuote(context.Background(), "SBER", "MOEX", "NOPE", "1y", false)
	assert.Error(t, err)

	_, err = svc.GetQuote(context.Background(), "   ", "MOEX", "STOCK", "1y", false)
	assert.Error(t, err)
}

func TestGetQuote_CancelledContext(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.payloads["SBER.ME"] = chartFor(250)
	svc, _ := newTestService(fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec, err := svc.GetQuote(ctx, "SBER", "MOEX", "STOCK", "1y", false)
	if err == nil {
		// The probe may settle before the cancellation is observed; a
		// completed record is acceptable, a partial state is not.
		require.NotNil(t, rec)
		return
	}
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetQuote_DefaultRange(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.payloads["SBER.ME"] = chartFor(250)
	svc, _ := newTestService(fetcher)

	rec, err := svc.GetQuote(context.Background(), "SBER", "MOEX", "STOCK", "", false)
	require.NoError(t, err)
	require.NotNil(t, rec)
}

func TestGetQuote_MaxRangeNotServedFromNarrowCache(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.payloads["SBER.ME"] = chartFor(250)
	svc, _ := newTestService(fetcher)

	_, err := svc.GetQuote(context.Background(), "SBER", "MOEX", "STOCK", "1y", false)
	require.NoError(t, err)

	// A max request uses a different cache key and fetches again.
	before := len(fetcher.requested())
	rec, err := svc.GetQuote(context.Background(), "SBER", "MOEX", "STOCK", "max", false)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Greater(t, len(fetcher.requested()), before)
	assert.True(t, rec.HasChange(domain.HorizonMax))
}
