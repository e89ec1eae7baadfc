package positions

import (
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	blockDelimiter = regexp.MustCompile(`(?i)Entry Time:\s*\d+:\d+:\d+`)

	sideRe       = regexp.MustCompile(`SIDE:\s*(LONG|SHORT)`)
	entryPriceRe = regexp.MustCompile(`ENTRY PRICE:\s*\$?\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)
	leverageRe   = regexp.MustCompile(`LEVERAGE:\s*(\d+)\s*X`)
	pnlRe        = regexp.MustCompile(`UNREALI[SZ]ED P&L:\s*([+-]?\s*\$\s*[+-]?\s*[0-9][0-9,]*(?:\.[0-9]+)?)`)
	quantityRe   = regexp.MustCompile(`QUANTITY:\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)
)

// Parse splits the section text into per-position blocks and extracts the
// fields of each. Blocks without a side and without a P&L value are dropped.
// The result is ordered by P&L descending, positions without P&L last.
func Parse(text string) []Position {
	parts := blockDelimiter.Split(text, -1)
	if len(parts) < 2 {
		return nil
	}

	var out []Position
	for _, block := range parts[1:] {
		p := parseBlock(block)
		if p.Valid() {
			out = append(out, p)
		}
	}
	Sort(out)
	return out
}

func parseBlock(block string) Position {
	upper := strings.ToUpper(block)
	var p Position

	if m := sideRe.FindStringSubmatch(upper); m != nil {
		if m[1] == "LONG" {
			p.Side = SideLong
		} else {
			p.Side = SideShort
		}
	}
	if m := entryPriceRe.FindStringSubmatch(upper); m != nil {
		p.EntryPrice = stripSeparators(m[1])
	}
	if m := leverageRe.FindStringSubmatch(upper); m != nil {
		p.Leverage = m[1] + "X"
	}
	if m := pnlRe.FindStringSubmatch(upper); m != nil {
		p.PnLText = strings.Join(strings.Fields(m[1]), "")
		p.PnLValue = ParseMoney(p.PnLText)
	}
	if m := quantityRe.FindStringSubmatch(upper); m != nil {
		p.Quantity = stripSeparators(m[1])
	}

	if sym := matchTicker(upper); sym != "" {
		p.Symbol = sym
	} else if p.EntryPrice != "" {
		if price, err := decimal.NewFromString(p.EntryPrice); err == nil {
			if sym := inferFromPrice(price); sym != "" {
				p.Symbol = sym
				p.SymbolInferred = true
			}
		}
	}
	return p
}

// Sort orders positions with a P&L value first, by value descending. Ties
// and positions without a value keep their relative order.
func Sort(list []Position) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].PnLValue, list[j].PnLValue
		if a.Valid != b.Valid {
			return a.Valid
		}
		if !a.Valid {
			return false
		}
		return a.Decimal.GreaterThan(b.Decimal)
	})
}

func stripSeparators(s string) string {
	return strings.ReplaceAll(s, ",", "")
}
