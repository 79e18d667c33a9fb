package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatPair(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"hyphenated passes through", "BTC-USD", "BTC-USD"},
		{"hyphenated is uppercased", "eth-eur", "ETH-EUR"},
		{"six chars with quote code splits 3+3", "EURUSD", "EUR-USD"},
		{"six chars lowercase", "gbpjpy", "GBP-JPY"},
		{"five chars with quote code unmodified", "XAUSD", "XAUSD"},
		{"seven chars with quote code unmodified", "DOGEUSD", "DOGEUSD"},
		{"bare symbol gets default quote", "BTC", "BTC-USD"},
		{"default quote is not double-appended", "BTC-USD", "BTC-USD"},
		{"four chars without quote code", "DOGE", "DOGE-USD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatPair(tt.input))
		})
	}
}

func TestFormatPair_Idempotent(t *testing.T) {
	inputs := []string{"BTC", "EURUSD", "eth", "XAUSD", "SOL-EUR"}
	for _, in := range inputs {
		once := FormatPair(in)
		assert.Equal(t, once, FormatPair(once), "re-application must not change %q", in)
	}
}

func TestPairCandidates(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"two-code pair offers both schemes", "EURUSD", []string{"EUR-USD", "EURUSD=X"}},
		{"hyphenated stays singleton", "BTC-USD", []string{"BTC-USD"}},
		{"bare crypto stays singleton", "BTC", []string{"BTC-USD"}},
		{"empty input", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PairCandidates(tt.input))
		})
	}
}
