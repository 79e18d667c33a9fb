package resolver

import "strings"

// quoteCurrencies are the quote-side codes the pair formatter recognizes.
var quoteCurrencies = []string{
	"USD", "EUR", "GBP", "JPY", "RUB", "CHF", "CNY", "AUD", "CAD",
}

// defaultQuoteSuffix is appended to bare symbols that carry no quote
// currency of their own (crypto tickers like BTC, ETH).
const defaultQuoteSuffix = "-USD"

// FormatPair reformats a raw currency-style symbol into the provider's
// hyphenated scheme. Pure string surgery, no I/O.
//
// Already-hyphenated input is returned uppercased unchanged. A 6-character
// symbol containing a recognized quote code splits into 3+3 around a hyphen;
// other lengths >= 5 with a recognized quote code are returned unmodified
// (only 3+3 pairs are split). Anything else gets the default quote suffix,
// exactly once.
func FormatPair(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return s
	}

	if strings.Contains(s, "-") {
		return s
	}

	if len(s) >= 5 && containsQuoteCode(s) {
		if len(s) == 6 {
			return s[:3] + "-" + s[3:]
		}
		return s
	}

	return s + defaultQuoteSuffix
}

// PairCandidates generates the ordered candidate list for a currency-style
// symbol. A 6-character two-code pair is additionally offered in the
// equals-suffixed scheme, since providers differ in the symbol format they
// expect for the same pair.
func PairCandidates(raw string) []string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return nil
	}

	out := []string{FormatPair(s)}
	if len(s) == 6 && !strings.Contains(s, "-") && containsQuoteCode(s) {
		out = append(out, s+"=X")
	}
	return out
}

func containsQuoteCode(s string) bool {
	for _, code := range quoteCurrencies {
		if strings.Contains(s, code) {
			return true
		}
	}
	return false
}
