package timeseries

import (
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/quotegate/internal/domain"
)

// DefaultExchangeAliases maps provider-reported exchange codes to canonical
// exchanges. Lookups are case-insensitive; unmapped codes fall back to the
// exchange the caller requested.
func DefaultExchangeAliases() map[string]domain.Exchange {
	return map[string]domain.Exchange{
		"MCX":    domain.ExchangeMOEX,
		"MISX":   domain.ExchangeMOEX,
		"MOEX":   domain.ExchangeMOEX,
		"SPB":    domain.ExchangeSPB,
		"NYQ":    domain.ExchangeNYSE,
		"NYSE":   domain.ExchangeNYSE,
		"NMS":    domain.ExchangeNASDAQ,
		"NGM":    domain.ExchangeNASDAQ,
		"NASDAQ": domain.ExchangeNASDAQ,
		"LSE":    domain.ExchangeLSE,
		"LON":    domain.ExchangeLSE,
		"GER":    domain.ExchangeXETRA,
		"FRA":    domain.ExchangeXETRA,
		"XETRA":  domain.ExchangeXETRA,
		"HKG":    domain.ExchangeHKEX,
		"HKEX":   domain.ExchangeHKEX,
		"CCY":    domain.ExchangeFX,
		"CCC":    domain.ExchangeFX,
		"FX":     domain.ExchangeFX,
	}
}

// point is one usable series element: timestamp plus non-null close.
type point struct {
	ts    time.Time
	close float64
	adj   float64
}

// Normalizer converts chart payloads into domain records.
type Normalizer struct {
	aliases map[string]domain.Exchange
	log     zerolog.Logger
}

// New creates a normalizer with the default exchange alias table.
func New(log zerolog.Logger) *Normalizer {
	return &Normalizer{
		aliases: DefaultExchangeAliases(),
		log:     log.With().Str("component", "normalizer").Logger(),
	}
}

// Normalize converts a raw payload into a canonical record, or nil when no
// price can be determined. rng is the range the caller requested; the
// max-horizon change is only attached for "max" fetches so that partial
// records from narrower ranges are never mistaken for full-history ones.
// Every derived field other than price degrades to absent on bad data.
func (n *Normalizer) Normalize(payload *ChartPayload, requested domain.InstrumentKey, rng string) *domain.Record {
	if payload == nil || len(payload.Chart.Result) == 0 || payload.Chart.Error != nil {
		return nil
	}
	result := &payload.Chart.Result[0]

	points := collectPoints(result)

	price, ok := extractPrice(&result.Meta, points)
	if !ok {
		n.log.Debug().
			Str("ticker", requested.Ticker).
			Msg("No usable price in payload, discarding record")
		return nil
	}

	rec := &domain.Record{
		Ticker:    requested.Ticker,
		Name:      displayName(&result.Meta),
		Currency:  result.Meta.Currency,
		Exchange:  n.mapExchange(result.Meta.ExchangeName, requested.Exchange),
		Price:     price,
		Timestamp: recordTimestamp(result, points),
		Changes:   make(map[domain.Horizon]domain.Change),
		Source:    "yahoo",
	}

	if open := lastNonNull(quoteOpen(result)); open != nil {
		rec.OpenPrice = open
	}

	if change, ok := dayChange(&result.Meta, points, price); ok {
		rec.Changes[domain.Horizon1D] = change
	}

	n.applyLookbackChanges(rec, points, price, rng)

	rec.History = historyPoints(points)
	rec.Dividends = collectDividends(result.Events)
	rec.Splits = collectSplits(result.Events)
	rec.Volume = volumeEstimate(result, price)

	if len(rec.Changes) == 0 {
		rec.Changes = nil
	}
	return rec
}

// mapExchange resolves a provider exchange code via the alias table,
// falling back to the requested exchange rather than failing the record.
func (n *Normalizer) mapExchange(reported string, requested domain.Exchange) domain.Exchange {
	if ex, ok := n.aliases[strings.ToUpper(strings.TrimSpace(reported))]; ok {
		return ex
	}
	return requested
}

// collectPoints builds the ordered usable series: entries with both a
// timestamp and a non-null close. Adjusted close falls back to close.
func collectPoints(result *ChartResult) []point {
	if len(result.Indicators.Quote) == 0 {
		return nil
	}
	closes := result.Indicators.Quote[0].Close

	var adj []*float64
	if len(result.Indicators.AdjClose) > 0 {
		adj = result.Indicators.AdjClose[0].AdjClose
	}

	points := make([]point, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if ts == 0 || i >= len(closes) || closes[i] == nil {
			continue
		}
		p := point{ts: time.Unix(ts, 0).UTC(), close: *closes[i], adj: *closes[i]}
		if i < len(adj) && adj[i] != nil {
			p.adj = *adj[i]
		}
		points = append(points, p)
	}
	return points
}

// extractPrice returns the current price: the meta market price when
// present, else the last usable close.
func extractPrice(meta *Meta, points []point) (float64, bool) {
	if meta.RegularMarketPrice != nil && *meta.RegularMarketPrice > 0 {
		return *meta.RegularMarketPrice, true
	}
	if len(points) > 0 {
		return points[len(points)-1].close, true
	}
	return 0, false
}

func displayName(meta *Meta) string {
	if meta.LongName != "" {
		return meta.LongName
	}
	return meta.ShortName
}

func recordTimestamp(result *ChartResult, points []point) time.Time {
	if result.Meta.RegularMarketTime > 0 {
		return time.Unix(result.Meta.RegularMarketTime, 0).UTC()
	}
	if len(points) > 0 {
		return points[len(points)-1].ts
	}
	return time.Time{}
}

// dayChange derives the 1-day change. Preference order: the explicit
// previous-close field, the chart previous close when the series uses daily
// granularity, finally the second-to-last usable close in the series.
func dayChange(meta *Meta, points []point, price float64) (domain.Change, bool) {
	var prev float64
	var prevDate time.Time

	switch {
	case meta.PreviousClose != nil && *meta.PreviousClose != 0:
		prev = *meta.PreviousClose
		if len(points) > 0 {
			prevDate = points[len(points)-1].ts.AddDate(0, 0, -1)
		}
	case meta.ChartPreviousClose != nil && *meta.ChartPreviousClose != 0 && meta.DataGranularity == "1d":
		prev = *meta.ChartPreviousClose
		if len(points) > 0 {
			prevDate = points[len(points)-1].ts.AddDate(0, 0, -1)
		}
	case len(points) >= 2:
		p := points[len(points)-2]
		prev = p.close
		prevDate = p.ts
	default:
		return domain.Change{}, false
	}

	if prev == 0 {
		return domain.Change{}, false
	}
	return domain.Change{Pct: (price - prev) / prev, Date: prevDate}, true
}

// applyLookbackChanges computes the calendar-horizon changes by
// nearest-timestamp matching against the usable series.
func (n *Normalizer) applyLookbackChanges(rec *domain.Record, points []point, price float64, rng string) {
	if len(points) == 0 {
		return
	}
	last := points[len(points)-1]

	for _, h := range domain.LookbackHorizons {
		if h == domain.HorizonMax {
			// Max is only meaningful when the whole history was fetched.
			if rng != "max" {
				continue
			}
			earliest := points[0]
			if earliest.close == 0 {
				continue
			}
			rec.Changes[h] = domain.Change{
				Pct:  (price - earliest.close) / earliest.close,
				Date: earliest.ts,
			}
			continue
		}

		target, ok := horizonTarget(last.ts, h)
		if !ok {
			continue
		}
		matched := nearestPoint(points, target)
		if matched.close == 0 {
			continue
		}
		rec.Changes[h] = domain.Change{
			Pct:  (price - matched.close) / matched.close,
			Date: matched.ts,
		}
	}
}

// horizonTarget computes the lookback target using calendar-field
// arithmetic, not fixed durations.
func horizonTarget(last time.Time, h domain.Horizon) (time.Time, bool) {
	switch h {
	case domain.Horizon1M:
		return last.AddDate(0, -1, 0), true
	case domain.Horizon3M:
		return last.AddDate(0, -3, 0), true
	case domain.Horizon1Y:
		return last.AddDate(-1, 0, 0), true
	case domain.Horizon3Y:
		return last.AddDate(-3, 0, 0), true
	case domain.Horizon5Y:
		return last.AddDate(-5, 0, 0), true
	case domain.HorizonYTD:
		return time.Date(last.Year(), time.January, 1, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// nearestPoint finds the series point with the smallest absolute distance to
// target. Linear scan; ties keep the first-found (lowest index) point.
func nearestPoint(points []point, target time.Time) point {
	best := points[0]
	bestDist := absDuration(points[0].ts.Sub(target))
	for _, p := range points[1:] {
		d := absDuration(p.ts.Sub(target))
		if d < bestDist {
			best = p
			bestDist = d
		}
	}
	return best
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func historyPoints(points []point) []domain.PricePoint {
	if len(points) == 0 {
		return nil
	}
	out := make([]domain.PricePoint, 0, len(points))
	for _, p := range points {
		out = append(out, domain.PricePoint{Date: p.ts, Price: p.close, AdjustedPrice: p.adj})
	}
	return out
}

func collectDividends(events *Events) []domain.Dividend {
	if events == nil || len(events.Dividends) == 0 {
		return nil
	}
	out := make([]domain.Dividend, 0, len(events.Dividends))
	for _, d := range events.Dividends {
		if d.Date == 0 {
			continue
		}
		out = append(out, domain.Dividend{Date: time.Unix(d.Date, 0).UTC(), Amount: d.Amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if len(out) == 0 {
		return nil
	}
	return out
}

func collectSplits(events *Events) []domain.Split {
	if events == nil || len(events.Splits) == 0 {
		return nil
	}
	out := make([]domain.Split, 0, len(events.Splits))
	for _, s := range events.Splits {
		if s.Date == 0 || s.Denominator == 0 {
			continue
		}
		out = append(out, domain.Split{
			Date:        time.Unix(s.Date, 0).UTC(),
			Numerator:   s.Numerator,
			Denominator: s.Denominator,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if len(out) == 0 {
		return nil
	}
	return out
}

// volumeEstimate derives a notional traded volume: reported share volume
// times price, else the last series volume times price. May be absent.
func volumeEstimate(result *ChartResult, price float64) *float64 {
	if result.Meta.RegularMarketVolume != nil {
		v := *result.Meta.RegularMarketVolume * price
		return &v
	}
	if len(result.Indicators.Quote) > 0 {
		if v := lastNonNull(result.Indicators.Quote[0].Volume); v != nil {
			notional := *v * price
			return &notional
		}
	}
	return nil
}

func quoteOpen(result *ChartResult) []*float64 {
	if len(result.Indicators.Quote) == 0 {
		return nil
	}
	return result.Indicators.Quote[0].Open
}

func lastNonNull(series []*float64) *float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if series[i] != nil {
			v := *series[i]
			return &v
		}
	}
	return nil
}
