package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/quotegate/internal/modules/timeseries"
)

// internalClientID keys rate limit accounting for in-process callers.
const internalClientID = "internal"

// RateLimitError reports a rejected admission and how long to back off.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// Service is the gateway engine: admission control, routing and the edge
// cache, independent of the HTTP surface. The quote pipeline uses it
// directly in-process; remote callers reach it through the server.
type Service struct {
	router  *Router
	cache   *EdgeCache
	limiter *Limiter
	log     zerolog.Logger
}

// NewService assembles the gateway engine.
func NewService(router *Router, cache *EdgeCache, limiter *Limiter, log zerolog.Logger) *Service {
	return &Service{
		router:  router,
		cache:   cache,
		limiter: limiter,
		log:     log.With().Str("component", "gateway").Logger(),
	}
}

// Execute runs one gateway request for clientID: admission, route build,
// cached fetch.
func (s *Service) Execute(ctx context.Context, apiID string, params map[string]string, clientID string) (*Response, error) {
	allowed, wait := s.limiter.Admit(clientID)
	if !allowed {
		return nil, &RateLimitError{RetryAfter: wait}
	}

	built, err := s.router.Build(apiID, params)
	if err != nil {
		return nil, err
	}
	return s.cache.Fetch(ctx, built)
}

// FetchChart retrieves a raw chart payload for a provider symbol through
// the yahoo chart route. Implements the quote pipeline's Fetcher.
func (s *Service) FetchChart(ctx context.Context, symbol, rng string) (*timeseries.ChartPayload, error) {
	resp, err := s.Execute(ctx, "yahoo.chart", map[string]string{
		"symbol": symbol,
		"range":  rng,
	}, internalClientID)
	if err != nil {
		return nil, err
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return nil, fmt.Errorf("chart fetch for %s returned status %d", symbol, resp.Status)
	}

	var payload timeseries.ChartPayload
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode chart payload for %s: %w", symbol, err)
	}
	return &payload, nil
}
