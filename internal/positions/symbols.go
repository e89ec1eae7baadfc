package positions

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Tickers recognised when they appear as a whole word inside a block.
var Tickers = []string{
	"BTC", "ETH", "SOL", "XRP", "BNB", "DOGE", "ADA", "AVAX", "TON", "LTC",
	"DOT", "LINK", "ATOM", "APE", "NEAR", "OP", "ARB", "FTM", "SUI", "SEI",
	"PEPE", "SHIB", "XLM", "ETC", "BCH", "APT", "TIA", "INJ", "RUNE", "UNI",
	"MATIC", "POL", "WIF", "ORDI",
}

var tickerRe = regexp.MustCompile(`\b(` + strings.Join(Tickers, "|") + `)\b`)

// Price bands used when no ticker is present. The bands are a heuristic
// tuned for current market levels and will misclassify outside them.
var priceBands = []struct {
	min, max decimal.Decimal
	symbol   string
}{
	{decimal.NewFromInt(1000), decimal.NewFromInt(5000), "ETH"},
	{decimal.NewFromInt(50000), decimal.NewFromInt(150000), "BTC"},
	{decimal.RequireFromString("0.5"), decimal.NewFromInt(10), "SOL"},
}

func matchTicker(upper string) string {
	loc := tickerRe.FindStringSubmatchIndex(upper)
	if loc == nil {
		return ""
	}
	return upper[loc[2]:loc[3]]
}

func inferFromPrice(price decimal.Decimal) string {
	for _, b := range priceBands {
		if price.GreaterThanOrEqual(b.min) && price.LessThan(b.max) {
			return b.symbol
		}
	}
	return ""
}
