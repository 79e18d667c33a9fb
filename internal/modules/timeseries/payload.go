// Package timeseries converts raw provider chart payloads into canonical
// normalized records: price, multi-horizon percentage changes, dividends and
// splits.
package timeseries

// ChartPayload is the raw chart response shape shared by the upstream
// providers the gateway proxies. Close/open/volume series use pointers
// because providers emit explicit nulls for non-trading intervals.
type ChartPayload struct {
	Chart struct {
		Result []ChartResult `json:"result"`
		Error  interface{}   `json:"error"`
	} `json:"chart"`
}

// ChartResult is one instrument's series plus quote metadata.
type ChartResult struct {
	Meta       Meta    `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote    []Quote    `json:"quote"`
		AdjClose []AdjClose `json:"adjclose"`
	} `json:"indicators"`
	Events *Events `json:"events,omitempty"`
}

// Meta carries the quote-level fields of a chart response.
type Meta struct {
	Currency            string   `json:"currency"`
	Symbol              string   `json:"symbol"`
	ExchangeName        string   `json:"exchangeName"`
	LongName            string   `json:"longName"`
	ShortName           string   `json:"shortName"`
	RegularMarketPrice  *float64 `json:"regularMarketPrice"`
	RegularMarketTime   int64    `json:"regularMarketTime"`
	PreviousClose       *float64 `json:"previousClose"`
	ChartPreviousClose  *float64 `json:"chartPreviousClose"`
	DataGranularity     string   `json:"dataGranularity"`
	RegularMarketVolume *float64 `json:"regularMarketVolume"`
}

// Quote holds the OHLCV arrays, index-aligned with ChartResult.Timestamp.
type Quote struct {
	Open   []*float64 `json:"open"`
	Close  []*float64 `json:"close"`
	Volume []*float64 `json:"volume"`
}

// AdjClose holds the adjusted close series.
type AdjClose struct {
	AdjClose []*float64 `json:"adjclose"`
}

// Events carries corporate actions keyed by epoch-second strings.
type Events struct {
	Dividends map[string]DividendEvent `json:"dividends,omitempty"`
	Splits    map[string]SplitEvent    `json:"splits,omitempty"`
}

// DividendEvent is one cash distribution.
type DividendEvent struct {
	Amount float64 `json:"amount"`
	Date   int64   `json:"date"`
}

// SplitEvent is one share split.
type SplitEvent struct {
	Date        int64 `json:"date"`
	Numerator   int   `json:"numerator"`
	Denominator int   `json:"denominator"`
}
