// Package resolver turns logical instrument identities into ordered lists of
// provider-symbol candidates. Candidate order encodes priority: explicit
// overrides first, already-formatted symbols next, generated variants last.
// Downstream fetch logic always takes the first candidate that yields data.
package resolver

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/quotegate/internal/domain"
)

// exchangeSuffixes maps an exchange to the provider's symbol suffix.
// Exchanges absent from the map use unsuffixed symbols.
var exchangeSuffixes = map[domain.Exchange]string{
	domain.ExchangeMOEX:  ".ME",
	domain.ExchangeLSE:   ".L",
	domain.ExchangeXETRA: ".DE",
	domain.ExchangeHKEX:  ".HK",
}

// Formatted symbol pattern: ends with .X, .XX or .XXX exchange suffix
var formattedSuffixPattern = regexp.MustCompile(`\.[A-Z]{1,3}$`)

var numericPattern = regexp.MustCompile(`^[0-9]+$`)

// Overrides is an authoritative (exchange, ticker) -> provider symbol table.
// An override short-circuits all other candidate generation.
type Overrides map[domain.Exchange]map[string]string

// DefaultOverrides returns the built-in override table. Entries cover tickers
// whose provider symbol cannot be derived mechanically (renames, share-class
// punctuation, currency conventions).
func DefaultOverrides() Overrides {
	return Overrides{
		domain.ExchangeMOEX: {
			"USDRUB": "RUB=X",
			"EURRUB": "EURRUB=X",
		},
		domain.ExchangeSPB: {
			"BRK.B": "BRK-B",
			"BF.B":  "BF-B",
		},
		domain.ExchangeXETRA: {
			"DAI": "MBG.DE", // renamed to Mercedes-Benz Group
		},
		domain.ExchangeLSE: {
			"BT.A": "BT-A.L",
		},
	}
}

// SuccessStore is the learned-success map: (exchange, ticker) keys mapped to
// the provider symbol that last returned usable data. Implementations must be
// safe for concurrent use; keys are independent units of consistency.
type SuccessStore interface {
	Get(key string) (string, bool)
	Put(key, symbol string)
}

// Resolver generates provider-symbol candidates for instrument keys.
// It is pure apart from the injected learned-success store.
type Resolver struct {
	overrides Overrides
	learned   SuccessStore
	log       zerolog.Logger
}

// New creates a new resolver. A nil overrides table falls back to
// DefaultOverrides; the store must not be nil.
func New(overrides Overrides, learned SuccessStore, log zerolog.Logger) *Resolver {
	if overrides == nil {
		overrides = DefaultOverrides()
	}
	return &Resolver{
		overrides: overrides,
		learned:   learned,
		log:       log.With().Str("component", "resolver").Logger(),
	}
}

// successKey builds the learned-success map key.
func successKey(ex domain.Exchange, ticker string) string {
	return string(ex) + ":" + strings.ToUpper(strings.TrimSpace(ticker))
}

// Candidates returns the ordered provider-symbol candidate list for key.
// An empty result means the instrument cannot be resolved at all (currently
// only numeric tickers outside MOEX index codes) and no fetch should happen.
func (r *Resolver) Candidates(key domain.InstrumentKey) []string {
	ticker := strings.ToUpper(strings.TrimSpace(key.Ticker))
	if ticker == "" {
		return nil
	}

	// 1. Explicit overrides are authoritative and never combined.
	if byTicker, ok := r.overrides[key.Exchange]; ok {
		if symbol, ok := byTicker[ticker]; ok {
			return []string{symbol}
		}
	}

	// 2. Already fully qualified: pass through untouched.
	if isFormatted(ticker) {
		return []string{ticker}
	}

	// 3. Numeric identifiers are reserved for MOEX index codes.
	numeric := numericPattern.MatchString(ticker)
	if numeric && !(key.Exchange == domain.ExchangeMOEX && key.Group == domain.GroupIndex) {
		r.log.Debug().
			Str("ticker", ticker).
			Str("exchange", string(key.Exchange)).
			Msg("Numeric ticker outside MOEX index codes, no candidates")
		return nil
	}

	// 4. Base candidate set with group-specific variants.
	base := []string{ticker}
	switch {
	case key.Group == domain.GroupIndex && !numeric:
		base = append(base, "^"+ticker)
	case key.Group == domain.GroupCurrency || key.Exchange == domain.ExchangeFX:
		// Currency pairs bypass exchange-suffix logic entirely.
		return PairCandidates(ticker)
	case key.Group == domain.GroupCommodity:
		base = append(base, ticker+"=F")
	}

	// 5. Exchange suffix, avoiding double-suffixing.
	suffix, ok := exchangeSuffixes[key.Exchange]
	if !ok {
		return base
	}
	out := make([]string, 0, len(base))
	for _, c := range base {
		if strings.HasSuffix(c, suffix) {
			out = append(out, c)
			continue
		}
		out = append(out, c+suffix)
	}
	return out
}

// VerifiedSymbol returns the learned provider symbol for (ticker, exchange)
// when one exists, else the generator's best guess. Returns "" when the
// ticker resolves to nothing.
func (r *Resolver) VerifiedSymbol(ticker string, ex domain.Exchange) string {
	if symbol, ok := r.learned.Get(successKey(ex, ticker)); ok {
		return symbol
	}

	candidates := r.Candidates(domain.InstrumentKey{
		Ticker:   ticker,
		Exchange: ex,
		Group:    domain.GroupStock,
	})
	if len(candidates) == 0 {
		return ""
	}
	return candidates[0]
}

// RecordSuccess memoizes the provider symbol that produced usable data for
// (ticker, exchange). Idempotent; later calls overwrite earlier mappings.
func (r *Resolver) RecordSuccess(ticker string, ex domain.Exchange, symbol string) {
	r.learned.Put(successKey(ex, ticker), symbol)
}

// Learned returns the memoized symbol for (ticker, exchange), if any.
func (r *Resolver) Learned(ticker string, ex domain.Exchange) (string, bool) {
	return r.learned.Get(successKey(ex, ticker))
}

// isFormatted reports whether the raw ticker already looks like a complete
// provider symbol: caret-prefixed index, futures or FX suffix, hyphenated
// pair/share class, or an exchange-suffix tail.
func isFormatted(ticker string) bool {
	if strings.HasPrefix(ticker, "^") {
		return true
	}
	if strings.HasSuffix(ticker, "=X") || strings.HasSuffix(ticker, "=F") {
		return true
	}
	if strings.Contains(ticker, "-") {
		return true
	}
	return formattedSuffixPattern.MatchString(ticker)
}
