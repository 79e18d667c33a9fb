// Package edge is the HTTP client for a remote gateway instance. It speaks
// the /api/fetch surface and implements the quote pipeline's Fetcher.
package edge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/quotegate/internal/modules/timeseries"
)

// Client calls a gateway over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a client for the gateway at baseURL.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log.With().Str("client", "edge").Logger(),
	}
}

// Fetch runs one gateway route and returns the raw payload.
func (c *Client) Fetch(ctx context.Context, apiID string, params map[string]string) ([]byte, error) {
	q := url.Values{}
	q.Set("apiId", apiID)
	for name, value := range params {
		q.Set(name, value)
	}
	target := fmt.Sprintf("%s/api/fetch?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned status %d for %s", resp.StatusCode, apiID)
	}

	c.log.Debug().
		Str("api_id", apiID).
		Str("cache", resp.Header.Get("X-Cache")).
		Msg("Gateway fetch completed")
	return body, nil
}

// FetchChart retrieves a raw chart payload for a provider symbol.
func (c *Client) FetchChart(ctx context.Context, symbol, rng string) (*timeseries.ChartPayload, error) {
	body, err := c.Fetch(ctx, "yahoo.chart", map[string]string{
		"symbol": symbol,
		"range":  rng,
	})
	if err != nil {
		return nil, err
	}

	var payload timeseries.ChartPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode chart payload for %s: %w", symbol, err)
	}
	return &payload, nil
}
