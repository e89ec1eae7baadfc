package positions

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Patterns run against upper-cased text, first match wins.
// Groups: sign before the dollar, sign after it, magnitude.
var aggregatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`UNREALIZED[^\n$]*?([-+]?)\$\s*([-+]?)\s*([0-9][0-9,]*(?:\.[0-9]+)?)`),
	regexp.MustCompile(`UNREALISED[^\n$]*?([-+]?)\$\s*([-+]?)\s*([0-9][0-9,]*(?:\.[0-9]+)?)`),
	regexp.MustCompile(`UNREALI[SZ]ED[^\n$]{0,40}?()([-+])\s*([0-9][0-9,]*(?:\.[0-9]+)?)`),
}

// ExtractAggregatePnL finds the first labeled unrealized P&L figure in text.
// The result is invalid when no pattern matches or the figure does not parse.
func ExtractAggregatePnL(text string) decimal.NullDecimal {
	upper := strings.ToUpper(text)
	for _, re := range aggregatePatterns {
		m := re.FindStringSubmatch(upper)
		if m == nil {
			continue
		}
		sign := m[1]
		if sign == "" {
			sign = m[2]
		}
		return ParseMoney(sign + m[3])
	}
	return decimal.NullDecimal{}
}

// ParseMoney parses a loosely formatted signed amount such as "-$1,234.50".
func ParseMoney(raw string) decimal.NullDecimal {
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "", "\t", "").Replace(raw)
	negative := false
	for len(cleaned) > 0 && (cleaned[0] == '+' || cleaned[0] == '-') {
		if cleaned[0] == '-' {
			negative = !negative
		}
		cleaned = cleaned[1:]
	}
	if cleaned == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.NullDecimal{}
	}
	if negative {
		d = d.Neg()
	}
	return decimal.NewNullDecimal(d)
}

// FormatSignedDollar renders d as "+$43.20" or "-$120.50".
func FormatSignedDollar(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-$" + d.Abs().StringFixed(2)
	}
	return "+$" + d.StringFixed(2)
}

// FormatDelta renders d with an explicit sign and two decimals, e.g. "+163.70".
func FormatDelta(d decimal.Decimal) string {
	if d.IsNegative() {
		return d.StringFixed(2)
	}
	return "+" + d.StringFixed(2)
}
