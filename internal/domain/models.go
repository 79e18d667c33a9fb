// Package domain provides core domain models and types.
package domain

import (
	"strings"
	"time"
)

// Exchange identifies a trading venue the pipeline knows how to resolve
// symbols for. FX is a pseudo-exchange used for currency pairs that have no
// real venue of their own.
type Exchange string

const (
	ExchangeMOEX   Exchange = "MOEX"
	ExchangeSPB    Exchange = "SPB"
	ExchangeNYSE   Exchange = "NYSE"
	ExchangeNASDAQ Exchange = "NASDAQ"
	ExchangeLSE    Exchange = "LSE"
	ExchangeXETRA  Exchange = "XETRA"
	ExchangeHKEX   Exchange = "HKEX"
	ExchangeFX     Exchange = "FX"
)

// ParseExchange maps a string to an Exchange, case-insensitively.
// Unknown values return false.
func ParseExchange(s string) (Exchange, bool) {
	switch Exchange(strings.ToUpper(strings.TrimSpace(s))) {
	case ExchangeMOEX:
		return ExchangeMOEX, true
	case ExchangeSPB:
		return ExchangeSPB, true
	case ExchangeNYSE:
		return ExchangeNYSE, true
	case ExchangeNASDAQ:
		return ExchangeNASDAQ, true
	case ExchangeLSE:
		return ExchangeLSE, true
	case ExchangeXETRA:
		return ExchangeXETRA, true
	case ExchangeHKEX:
		return ExchangeHKEX, true
	case ExchangeFX:
		return ExchangeFX, true
	}
	return "", false
}

// InstrumentGroup classifies what kind of instrument a ticker refers to.
// The resolver uses it to pick candidate generation rules.
type InstrumentGroup string

const (
	GroupStock     InstrumentGroup = "STOCK"
	GroupETF       InstrumentGroup = "ETF"
	GroupBond      InstrumentGroup = "BOND"
	GroupIndex     InstrumentGroup = "INDEX"
	GroupCurrency  InstrumentGroup = "CURRENCY"
	GroupCommodity InstrumentGroup = "COMMODITY"
)

// ParseGroup maps a string to an InstrumentGroup, case-insensitively.
func ParseGroup(s string) (InstrumentGroup, bool) {
	switch InstrumentGroup(strings.ToUpper(strings.TrimSpace(s))) {
	case GroupStock:
		return GroupStock, true
	case GroupETF:
		return GroupETF, true
	case GroupBond:
		return GroupBond, true
	case GroupIndex:
		return GroupIndex, true
	case GroupCurrency:
		return GroupCurrency, true
	case GroupCommodity:
		return GroupCommodity, true
	}
	return "", false
}

// InstrumentKey is the logical identity the caller uses to request data.
// It is resolved into provider-specific symbols and never persisted.
type InstrumentKey struct {
	Ticker   string          `json:"ticker"`
	Exchange Exchange        `json:"exchange"`
	Group    InstrumentGroup `json:"group"`
}

// Horizon is a fixed lookback period over which a percentage price change
// is computed.
type Horizon string

const (
	Horizon1D  Horizon = "1d"
	Horizon1M  Horizon = "1mo"
	Horizon3M  Horizon = "3mo"
	Horizon1Y  Horizon = "1y"
	Horizon3Y  Horizon = "3y"
	Horizon5Y  Horizon = "5y"
	HorizonYTD Horizon = "ytd"
	HorizonMax Horizon = "max"
)

// LookbackHorizons lists the horizons computed from the historical series,
// in ascending lookback order. The 1-day change is derived separately from
// previous-close data.
var LookbackHorizons = []Horizon{
	Horizon1M, Horizon3M, Horizon1Y, Horizon3Y, Horizon5Y, HorizonYTD, HorizonMax,
}

// Change is a percentage price change against a matched historical point.
type Change struct {
	Pct  float64   `json:"pct"`
	Date time.Time `json:"date"`
}

// PricePoint is one element of the normalized historical series.
type PricePoint struct {
	Date          time.Time `json:"date"`
	Price         float64   `json:"price"`
	AdjustedPrice float64   `json:"adjusted_price"`
}

// Dividend is a single cash distribution.
type Dividend struct {
	Date   time.Time `json:"date"`
	Amount float64   `json:"amount"`
}

// Split is a share split expressed as numerator:denominator (e.g. 4:1).
type Split struct {
	Date        time.Time `json:"date"`
	Numerator   int       `json:"numerator"`
	Denominator int       `json:"denominator"`
}

// Record is the canonical normalized output of the pipeline. Price is the
// only mandatory field; everything else degrades to its zero value when the
// provider payload lacks the data.
type Record struct {
	Ticker    string             `json:"ticker"`
	Name      string             `json:"name,omitempty"`
	Currency  string             `json:"currency,omitempty"`
	Exchange  Exchange           `json:"exchange"`
	Price     float64            `json:"price"`
	OpenPrice *float64           `json:"open_price,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
	Changes   map[Horizon]Change `json:"changes,omitempty"`
	History   []PricePoint       `json:"history,omitempty"`
	Dividends []Dividend         `json:"dividends,omitempty"`
	Splits    []Split            `json:"splits,omitempty"`
	Volume    *float64           `json:"volume,omitempty"`
	Source    string             `json:"source,omitempty"`
}

// HasChange reports whether the record carries a computed change for the
// given horizon.
func (r *Record) HasChange(h Horizon) bool {
	if r == nil || r.Changes == nil {
		return false
	}
	_, ok := r.Changes[h]
	return ok
}
