package quotes

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/quotegate/internal/domain"
	"github.com/aristath/quotegate/internal/modules/resolver"
	"github.com/aristath/quotegate/internal/modules/timeseries"
)

// DefaultRange is the chart range fetched when the caller does not ask for
// a specific one.
const DefaultRange = "1y"

// Fetcher retrieves a raw chart payload for a provider symbol. Implemented
// by the in-process gateway engine and by the edge HTTP client.
type Fetcher interface {
	FetchChart(ctx context.Context, symbol, rng string) (*timeseries.ChartPayload, error)
}

// Service is the quote acquisition pipeline: cache check, deduplication,
// symbol resolution, concurrent candidate probing and normalization.
type Service struct {
	resolver   *resolver.Resolver
	normalizer *timeseries.Normalizer
	fetcher    Fetcher
	cache      *Cache
	dedup      *Deduplicator
	log        zerolog.Logger
}

// NewService wires the pipeline together.
func NewService(
	res *resolver.Resolver,
	norm *timeseries.Normalizer,
	fetcher Fetcher,
	cache *Cache,
	log zerolog.Logger,
) *Service {
	return &Service{
		resolver:   res,
		normalizer: norm,
		fetcher:    fetcher,
		cache:      cache,
		dedup:      NewDeduplicator(),
		log:        log.With().Str("component", "quotes").Logger(),
	}
}

// cacheKey builds the deduplication and result-cache key for a request.
func cacheKey(ex domain.Exchange, ticker, rng string) string {
	return fmt.Sprintf("yahoo:%s:%s:%s", ex, strings.ToUpper(ticker), rng)
}

// GetQuote returns the normalized record for an instrument, serving from the
// local result cache when possible. force bypasses the cache read (the fresh
// result is still written back). A nil record with a nil error means the
// instrument resolves to no provider symbols and nothing was fetched.
func (s *Service) GetQuote(ctx context.Context, ticker, exchange, group, rng string, force bool) (*domain.Record, error) {
	ex, ok := domain.ParseExchange(exchange)
	if !ok {
		return nil, fmt.Errorf("unknown exchange %q", exchange)
	}
	grp, ok := domain.ParseGroup(group)
	if !ok {
		return nil, fmt.Errorf("unknown instrument group %q", group)
	}
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return nil, fmt.Errorf("ticker is required")
	}
	if rng == "" {
		rng = DefaultRange
	}

	key := cacheKey(ex, ticker, rng)

	if !force {
		if rec, ok := s.cache.Get(key, rng); ok {
			s.log.Debug().Str("key", key).Msg("Serving quote from result cache")
			return rec, nil
		}
	}

	return s.dedup.Do(key, func() (*domain.Record, error) {
		return s.fetch(ctx, domain.InstrumentKey{Ticker: ticker, Exchange: ex, Group: grp}, rng, key)
	})
}

// fetch resolves candidates and probes them until one yields a record.
func (s *Service) fetch(ctx context.Context, instrument domain.InstrumentKey, rng, key string) (*domain.Record, error) {
	candidates := s.resolver.Candidates(instrument)
	if len(candidates) == 0 {
		s.log.Debug().
			Str("ticker", instrument.Ticker).
			Str("exchange", string(instrument.Exchange)).
			Msg("No symbol candidates, skipping fetch")
		return nil, nil
	}

	// A previously successful symbol jumps the queue.
	if learned, ok := s.resolver.Learned(instrument.Ticker, instrument.Exchange); ok {
		candidates = promote(candidates, learned)
	}

	fetchID := uuid.New().String()
	log := s.log.With().Str("fetch_id", fetchID).Str("key", key).Logger()
	log.Debug().Strs("candidates", candidates).Msg("Probing symbol candidates")

	type probe struct {
		symbol string
		rec    *domain.Record
		err    error
	}

	// All candidates are probed concurrently, but results are consumed in
	// priority order so a slow high-priority probe still wins over a fast
	// low-priority one. Losing probes run to completion; they are cheap and
	// cancelling them buys nothing.
	results := make([]chan probe, len(candidates))
	for i, symbol := range candidates {
		results[i] = make(chan probe, 1)
		go func(i int, symbol string) {
			rec, err := s.probe(ctx, symbol, instrument, rng)
			results[i] <- probe{symbol: symbol, rec: rec, err: err}
		}(i, symbol)
	}

	var firstErr error
	for i := range results {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case p := <-results[i]:
			if p.err != nil {
				if firstErr == nil {
					firstErr = p.err
				}
				continue
			}
			if p.rec == nil {
				continue
			}
			s.resolver.RecordSuccess(instrument.Ticker, instrument.Exchange, p.symbol)
			s.cache.Save(key, p.rec)
			log.Info().Str("symbol", p.symbol).Msg("Quote fetched")
			return p.rec, nil
		}
	}

	if firstErr != nil {
		return nil, fmt.Errorf("all candidates failed for %s: %w", instrument.Ticker, firstErr)
	}
	log.Debug().Msg("No candidate produced a usable record")
	return nil, nil
}

// probe fetches and normalizes a single candidate symbol.
func (s *Service) probe(ctx context.Context, symbol string, instrument domain.InstrumentKey, rng string) (*domain.Record, error) {
	payload, err := s.fetcher.FetchChart(ctx, symbol, rng)
	if err != nil {
		return nil, err
	}
	return s.normalizer.Normalize(payload, instrument, rng), nil
}

// promote moves symbol to the front of candidates, inserting it when absent.
func promote(candidates []string, symbol string) []string {
	out := make([]string, 0, len(candidates)+1)
	out = append(out, symbol)
	for _, c := range candidates {
		if c != symbol {
			out = append(out, c)
		}
	}
	return out
}
