package positions

import (
	"github.com/shopspring/decimal"
)

// Side is the direction of an open position.
type Side string

const (
	SideUnknown Side = ""
	SideLong    Side = "Long"
	SideShort   Side = "Short"
)

// Position is one parsed entry from the active positions section.
type Position struct {
	Symbol         string              `json:"symbol"`
	SymbolInferred bool                `json:"symbol_inferred,omitempty"`
	Side           Side                `json:"side"`
	Leverage       string              `json:"leverage,omitempty"`
	EntryPrice     string              `json:"entry_price,omitempty"`
	Quantity       string              `json:"quantity,omitempty"`
	PnLValue       decimal.NullDecimal `json:"pnl_value"`
	PnLText        string              `json:"pnl_text,omitempty"`
}

// Valid reports whether the block carried enough to be worth listing.
func (p Position) Valid() bool {
	return p.Side != SideUnknown || p.PnLValue.Valid
}

// DisplaySymbol returns the symbol or a placeholder when none was found.
func (p Position) DisplaySymbol() string {
	if p.Symbol == "" {
		return "N/A"
	}
	return p.Symbol
}

// DisplaySide returns the side or a placeholder when none was found.
func (p Position) DisplaySide() string {
	if p.Side == SideUnknown {
		return "N/A"
	}
	return string(p.Side)
}

// Total sums the defined P&L values.
func Total(list []Position) decimal.Decimal {
	total := decimal.Zero
	for _, p := range list {
		if p.PnLValue.Valid {
			total = total.Add(p.PnLValue.Decimal)
		}
	}
	return total
}

// Clone returns a copy that shares no backing array with list.
func Clone(list []Position) []Position {
	if list == nil {
		return nil
	}
	out := make([]Position, len(list))
	copy(out, list)
	return out
}
