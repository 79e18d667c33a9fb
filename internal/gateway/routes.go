// Package gateway implements the upstream edge: route templating with
// strict parameter validation, dual-window rate limiting, a shared response
// cache with a trading-date rollback retry, and the HTTP surface in front
// of it all.
package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Sentinel errors mapped to HTTP statuses by the server layer.
var (
	ErrUnknownRoute = errors.New("unknown apiId")
	ErrInvalidParam = errors.New("parameter contains disallowed characters")
	ErrMissingParam = errors.New("missing required parameter")
)

// paramPattern is the injection guard: Latin and Cyrillic letters, digits
// and a fixed punctuation set. Everything else is rejected outright.
var paramPattern = regexp.MustCompile(`^[0-9A-Za-zА-Яа-яЁё .,\-_^=:/]+$`)

// placeholderPattern matches {name} and {raw:name} template slots.
var placeholderPattern = regexp.MustCompile(`\{(raw:)?([a-zA-Z]+)\}`)

// Route describes one upstream endpoint reachable through the gateway.
type Route struct {
	Method        string
	URLTemplate   string
	BodyFields    []string
	CacheTTL      time.Duration
	DateSensitive bool
}

// routeTable maps apiId to its upstream route. The identifier prefix
// selects the outbound header set.
var routeTable = map[string]Route{
	"yahoo.chart": {
		Method:      http.MethodGet,
		URLTemplate: "https://query1.finance.yahoo.com/v8/finance/chart/{symbol}?range={raw:range}&interval=1d&events=div%7Csplit",
		CacheTTL:    10 * time.Minute,
	},
	"yahoo.quote": {
		Method:      http.MethodGet,
		URLTemplate: "https://query1.finance.yahoo.com/v7/finance/quote?symbols={symbol}",
		CacheTTL:    5 * time.Minute,
	},
	"moex.listing": {
		Method:        http.MethodGet,
		URLTemplate:   "https://iss.moex.com/iss/history/engines/stock/markets/shares/securities.json?date={raw:date}&start={start}",
		CacheTTL:      time.Hour,
		DateSensitive: true,
	},
	"moex.security": {
		Method:      http.MethodGet,
		URLTemplate: "https://iss.moex.com/iss/securities/{symbol}.json",
		CacheTTL:    24 * time.Hour,
	},
	"fx.latest": {
		Method:      http.MethodGet,
		URLTemplate: "https://api.apilayer.com/exchangerates_data/latest?base={base}&symbols={symbols}",
		CacheTTL:    time.Hour,
	},
	"investing.history": {
		Method:      http.MethodPost,
		URLTemplate: "https://www.investing.com/instruments/HistoricalDataAjax",
		BodyFields:  []string{"pairId", "startDate", "endDate", "interval"},
		CacheTTL:    time.Hour,
	},
	"investing.history.list": {
		Method:      http.MethodPost,
		URLTemplate: "https://www.investing.com/instruments/HistoricalDataAjax",
		BodyFields:  []string{"pairId", "startDate", "endDate", "interval"},
		CacheTTL:    time.Hour,
	},
}

// BuiltRequest is a fully resolved upstream request plus the metadata the
// edge cache needs: the route's TTL, the final parameter set (for date
// rollback) and the body fields that fold into the cache key.
type BuiltRequest struct {
	APIID  string
	Route  Route
	URL    string
	Header http.Header
	Body   url.Values
	Params map[string]string
}

// Router validates parameters and turns (apiId, params) into upstream
// requests.
type Router struct {
	routes   map[string]Route
	fxAPIKey string
	clock    func() time.Time
	log      zerolog.Logger
}

// NewRouter creates a router over the default route table.
func NewRouter(fxAPIKey string, log zerolog.Logger) *Router {
	return &Router{
		routes:   routeTable,
		fxAPIKey: fxAPIKey,
		clock:    time.Now,
		log:      log.With().Str("component", "router").Logger(),
	}
}

// Build resolves apiId and params into an upstream request. Parameter
// values are validated against the character allow-list before any
// substitution happens.
func (rt *Router) Build(apiID string, params map[string]string) (*BuiltRequest, error) {
	route, ok := rt.routes[apiID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoute, apiID)
	}

	for name, value := range params {
		if value == "" || !paramPattern.MatchString(value) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidParam, name)
		}
	}

	resolved := rt.deriveParams(apiID, params)

	finalURL := placeholderPattern.ReplaceAllStringFunc(route.URLTemplate, func(m string) string {
		groups := placeholderPattern.FindStringSubmatch(m)
		value, ok := resolved[groups[2]]
		if !ok {
			return m
		}
		if groups[1] == "raw:" {
			return value
		}
		return url.QueryEscape(value)
	})
	if strings.ContainsAny(finalURL, "{}") {
		return nil, fmt.Errorf("%w in %s", ErrMissingParam, apiID)
	}

	built := &BuiltRequest{
		APIID:  apiID,
		Route:  route,
		URL:    finalURL,
		Header: rt.headersFor(apiID),
		Params: resolved,
	}

	if len(route.BodyFields) > 0 {
		body := url.Values{}
		for _, field := range route.BodyFields {
			value, ok := resolved[field]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrMissingParam, field)
			}
			body.Set(field, value)
		}
		built.Body = body
	}
	return built, nil
}

// deriveParams copies params and injects computed values: the most recent
// trading date for date-sensitive listings and the clamped end date for the
// list variant of the history query.
func (rt *Router) deriveParams(apiID string, params map[string]string) map[string]string {
	resolved := make(map[string]string, len(params)+1)
	for k, v := range params {
		resolved[k] = v
	}

	if apiID == "moex.listing" {
		if _, ok := resolved["date"]; !ok {
			resolved["date"] = lastTradingDate(rt.clock()).Format("2006-01-02")
		}
		if _, ok := resolved["start"]; !ok {
			resolved["start"] = "0"
		}
	}

	if apiID == "investing.history.list" {
		resolved["endDate"] = clampEndDate(resolved["endDate"], rt.clock())
	}
	return resolved
}

// headersFor returns the outbound header set by apiId prefix.
func (rt *Router) headersFor(apiID string) http.Header {
	h := http.Header{}
	switch {
	case strings.HasPrefix(apiID, "yahoo."):
		h.Set("Referer", "https://finance.yahoo.com/")
	case strings.HasPrefix(apiID, "investing."):
		h.Set("Referer", "https://www.investing.com/")
		h.Set("X-Requested-With", "XMLHttpRequest")
	case strings.HasPrefix(apiID, "fx."):
		h.Set("apikey", rt.fxAPIKey)
	}
	return h
}

// lastTradingDate returns the most recent date upstream listings can be
// expected for: the previous day, or two days back on Sundays when no
// session happened the day before.
func lastTradingDate(now time.Time) time.Time {
	if now.Weekday() == time.Sunday {
		return now.AddDate(0, 0, -2)
	}
	return now.AddDate(0, 0, -1)
}

// clampEndDate caps an end date at two calendar months before now. Dates
// use the upstream's MM/DD/YYYY form; an unparseable input collapses to the
// cap itself.
func clampEndDate(raw string, now time.Time) string {
	limit := now.AddDate(0, -2, 0)
	end, err := time.Parse("01/02/2006", raw)
	if err != nil || end.After(limit) {
		return limit.Format("01/02/2006")
	}
	return raw
}
