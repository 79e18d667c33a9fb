package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// maxDateRollbacks bounds the trading-date retry loop.
const maxDateRollbacks = 4

// Response is what the edge cache hands back to the HTTP surface.
type Response struct {
	Status      int
	Body        []byte
	ContentType string
	CacheState  string // "HIT" or "MISS"
	TTL         time.Duration
}

type cachedResponse struct {
	body        []byte
	contentType string
	storedAt    time.Time
	ttl         time.Duration
}

// EdgeCache serves upstream responses through an in-memory TTL cache and
// applies the trading-date rollback retry for date-sensitive routes.
type EdgeCache struct {
	mu      sync.RWMutex
	entries map[string]cachedResponse
	client  *http.Client
	router  *Router
	clock   func() time.Time
	log     zerolog.Logger
}

// NewEdgeCache creates an edge cache that rebuilds rollback requests
// through router.
func NewEdgeCache(router *Router, client *http.Client, log zerolog.Logger) *EdgeCache {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &EdgeCache{
		entries: make(map[string]cachedResponse),
		client:  client,
		router:  router,
		clock:   time.Now,
		log:     log.With().Str("component", "edge_cache").Logger(),
	}
}

// cacheKey builds the deterministic key for a request: the final URL with
// any POST body fields folded in as sorted synthetic query parameters, so
// the same logical request keys identically regardless of method.
func cacheKey(built *BuiltRequest) string {
	if len(built.Body) == 0 {
		return built.URL
	}
	fields := make([]string, 0, len(built.Body))
	for field := range built.Body {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString(built.URL)
	sep := "?"
	if strings.Contains(built.URL, "?") {
		sep = "&"
	}
	for _, field := range fields {
		b.WriteString(sep)
		b.WriteString("post_")
		b.WriteString(field)
		b.WriteString("=")
		b.WriteString(built.Body.Get(field))
		sep = "&"
	}
	return b.String()
}

// Fetch serves the request from cache or upstream. Date-sensitive routes
// that come back with an empty result set are retried with the date rolled
// back two calendar days, a bounded number of times; exhaustion serves the
// last empty response rather than an error.
func (ec *EdgeCache) Fetch(ctx context.Context, built *BuiltRequest) (*Response, error) {
	resp, err := ec.fetchOne(ctx, built)
	if err != nil {
		return nil, err
	}
	if !built.Route.DateSensitive || !emptyResultSet(resp.Body) {
		return resp, nil
	}

	params := built.Params
	for attempt := 0; attempt < maxDateRollbacks; attempt++ {
		rolled, ok := rollbackDate(params)
		if !ok {
			return resp, nil
		}
		ec.log.Debug().
			Str("api_id", built.APIID).
			Str("date", rolled["date"]).
			Int("attempt", attempt+1).
			Msg("Empty result set, rolling trading date back")

		rebuilt, err := ec.router.Build(built.APIID, rolled)
		if err != nil {
			return resp, nil
		}
		params = rebuilt.Params

		resp, err = ec.fetchOne(ctx, rebuilt)
		if err != nil {
			return nil, err
		}
		if !emptyResultSet(resp.Body) {
			return resp, nil
		}
	}
	return resp, nil
}

// fetchOne is a single cache-or-upstream round trip.
func (ec *EdgeCache) fetchOne(ctx context.Context, built *BuiltRequest) (*Response, error) {
	key := cacheKey(built)
	now := ec.clock()

	ec.mu.RLock()
	entry, ok := ec.entries[key]
	ec.mu.RUnlock()
	if ok && now.Sub(entry.storedAt) < entry.ttl {
		return &Response{
			Status:      http.StatusOK,
			Body:        entry.body,
			ContentType: entry.contentType,
			CacheState:  "HIT",
			TTL:         entry.ttl - now.Sub(entry.storedAt),
		}, nil
	}

	var bodyReader io.Reader
	if len(built.Body) > 0 {
		bodyReader = strings.NewReader(built.Body.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, built.Route.Method, built.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	for name, values := range built.Header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	if len(built.Body) > 0 {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	upstream, err := ec.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream call failed: %w", err)
	}
	defer upstream.Body.Close()

	body, err := io.ReadAll(upstream.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream response: %w", err)
	}

	resp := &Response{
		Status:      upstream.StatusCode,
		Body:        body,
		ContentType: upstream.Header.Get("Content-Type"),
		CacheState:  "MISS",
		TTL:         built.Route.CacheTTL,
	}

	// Only successful responses are cached, and storing never delays the
	// reply to the caller.
	if upstream.StatusCode >= 200 && upstream.StatusCode < 300 {
		go ec.store(key, resp, now)
	}
	return resp, nil
}

func (ec *EdgeCache) store(key string, resp *Response, now time.Time) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.entries[key] = cachedResponse{
		body:        resp.Body,
		contentType: resp.ContentType,
		storedAt:    now,
		ttl:         resp.TTL,
	}
}

// PruneExpired drops entries past their TTL. Run by the scheduler.
func (ec *EdgeCache) PruneExpired() int {
	now := ec.clock()

	ec.mu.Lock()
	defer ec.mu.Unlock()

	dropped := 0
	for key, entry := range ec.entries {
		if now.Sub(entry.storedAt) >= entry.ttl {
			delete(ec.entries, key)
			dropped++
		}
	}
	return dropped
}

// rollbackDate returns a parameter copy with the trading date moved two
// calendar days back. ok is false when no parseable date is present.
func rollbackDate(params map[string]string) (map[string]string, bool) {
	raw, ok := params["date"]
	if !ok {
		return nil, false
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, false
	}
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = v
	}
	out["date"] = date.AddDate(0, 0, -2).Format("2006-01-02")
	return out, true
}

// emptyResultSet reports whether a parsed listing payload carries no rows:
// any object in the response with a "data" field holding an empty array.
func emptyResultSet(body []byte) bool {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}
	sawData := false
	for _, raw := range payload {
		var section struct {
			Data []json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &section); err != nil {
			continue
		}
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(raw, &probe); err != nil {
			continue
		}
		if _, ok := probe["data"]; !ok {
			continue
		}
		sawData = true
		if len(section.Data) > 0 {
			return false
		}
	}
	return sawData
}
