package alert

import (
	"strings"

	"github.com/dgnsrekt/positions_watch/internal/positions"
	"github.com/olekukonko/tablewriter"
)

// FormatDetails renders the position list as a fixed-width table followed
// by the total P&L line.
func FormatDetails(list []positions.Position) string {
	var b strings.Builder
	if len(list) == 0 {
		b.WriteString("No positions parsed\n")
	} else {
		table := tablewriter.NewWriter(&b)
		table.SetAutoFormatHeaders(false)
		table.SetHeader([]string{"Symbol", "Side", "Lev", "Entry", "P&L"})
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetColumnSeparator("")
		table.SetBorder(false)
		table.SetHeaderLine(false)
		for _, p := range list {
			table.Append([]string{
				p.DisplaySymbol(),
				p.DisplaySide(),
				orNA(p.Leverage),
				orNA(p.EntryPrice),
				orNA(p.PnLText),
			})
		}
		table.Render()
	}
	b.WriteString("Total P&L: $")
	b.WriteString(positions.FormatDelta(positions.Total(list)))
	return b.String()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
