package edge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/fetch", r.URL.Path)
		assert.Equal(t, "yahoo.chart", r.URL.Query().Get("apiId"))
		assert.Equal(t, "SBER.ME", r.URL.Query().Get("symbol"))
		w.Header().Set("X-Cache", "MISS")
		w.Write([]byte(`{"chart":{"result":[],"error":null}}`))
	}))
	defer gateway.Close()

	c := NewClient(gateway.URL, zerolog.Nop())
	body, err := c.Fetch(context.Background(), "yahoo.chart", map[string]string{
		"symbol": "SBER.ME",
		"range":  "1y",
	})
	require.NoError(t, err)
	assert.Contains(t, string(body), "chart")
}

func TestFetch_GatewayError(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream failure", http.StatusBadGateway)
	}))
	defer gateway.Close()

	c := NewClient(gateway.URL, zerolog.Nop())
	_, err := c.Fetch(context.Background(), "yahoo.chart", map[string]string{"symbol": "X", "range": "1y"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestFetchChart(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"chart": {
				"result": [{
					"meta": {"currency": "RUB", "regularMarketPrice": 250.5},
					"timestamp": [1719532800],
					"indicators": {"quote": [{"close": [250.5]}]}
				}],
				"error": null
			}
		}`))
	}))
	defer gateway.Close()

	c := NewClient(gateway.URL, zerolog.Nop())
	payload, err := c.FetchChart(context.Background(), "SBER.ME", "1y")
	require.NoError(t, err)
	require.Len(t, payload.Chart.Result, 1)
	assert.Equal(t, "RUB", payload.Chart.Result[0].Meta.Currency)
	require.NotNil(t, payload.Chart.Result[0].Meta.RegularMarketPrice)
	assert.Equal(t, 250.5, *payload.Chart.Result[0].Meta.RegularMarketPrice)
}

func TestFetchChart_BadPayload(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer gateway.Close()

	c := NewClient(gateway.URL, zerolog.Nop())
	_, err := c.FetchChart(context.Background(), "SBER.ME", "1y")
	assert.Error(t, err)
}
