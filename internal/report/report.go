// Package report renders the latest parsed position list as an HTML page
// and a CSV file. Both are overwritten on every change.
package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/positions_watch/internal/positions"
	"github.com/gocarina/gocsv"
	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Writer writes the report files.
type Writer struct {
	Title    string
	HTMLPath string
	CSVPath  string

	mu sync.Mutex
}

// Row is one rendered position.
type Row struct {
	Symbol   string
	Inferred bool
	Side     string
	Leverage string
	Entry    string
	PnLText  string
	Class    string
}

// Summary holds figures over the positions with a defined P&L.
type Summary struct {
	Count   int
	Priced  int
	Total   string
	Class   string
	Mean    string
	Best    string
	Worst   string
	HasData bool
}

type page struct {
	Title     string
	UpdatedAt string
	Rows      []Row
	Summary   Summary
}

type csvRow struct {
	Symbol         string `csv:"symbol"`
	SymbolInferred bool   `csv:"symbol_inferred"`
	Side           string `csv:"side"`
	Leverage       string `csv:"leverage"`
	EntryPrice     string `csv:"entry_price"`
	Quantity       string `csv:"quantity"`
	PnL            string `csv:"pnl"`
	PnLText        string `csv:"pnl_text"`
}

// Write renders list to the configured paths. An empty path is skipped.
func (w *Writer) Write(list []positions.Position, at time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.HTMLPath != "" {
		var buf bytes.Buffer
		if err := pageTemplate.Execute(&buf, w.buildPage(list, at)); err != nil {
			return fmt.Errorf("report: render html: %w", err)
		}
		if err := writeAtomic(w.HTMLPath, buf.Bytes()); err != nil {
			return err
		}
	}

	if w.CSVPath != "" {
		rows := make([]csvRow, 0, len(list))
		for _, p := range list {
			r := csvRow{
				Symbol:         p.Symbol,
				SymbolInferred: p.SymbolInferred,
				Side:           string(p.Side),
				Leverage:       p.Leverage,
				EntryPrice:     p.EntryPrice,
				Quantity:       p.Quantity,
				PnLText:        p.PnLText,
			}
			if p.PnLValue.Valid {
				r.PnL = p.PnLValue.Decimal.StringFixed(2)
			}
			rows = append(rows, r)
		}
		var buf bytes.Buffer
		if err := gocsv.Marshal(rows, &buf); err != nil {
			return fmt.Errorf("report: render csv: %w", err)
		}
		if err := writeAtomic(w.CSVPath, buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// Latest returns the last written HTML report.
func (w *Writer) Latest() ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.HTMLPath == "" {
		return nil, os.ErrNotExist
	}
	return os.ReadFile(w.HTMLPath)
}

func (w *Writer) buildPage(list []positions.Position, at time.Time) page {
	title := w.Title
	if title == "" {
		title = "Active Positions"
	}
	p := page{
		Title:     title,
		UpdatedAt: at.Local().Format("2006-01-02 15:04:05"),
		Summary:   summarize(list),
	}
	for _, pos := range list {
		row := Row{
			Symbol:   pos.DisplaySymbol(),
			Inferred: pos.SymbolInferred,
			Side:     string(pos.Side),
			Leverage: pos.Leverage,
			PnLText:  pos.PnLText,
		}
		if pos.EntryPrice != "" {
			row.Entry = "$" + pos.EntryPrice
			if d, err := decimal.NewFromString(pos.EntryPrice); err == nil {
				row.Entry = "$" + FormatAmount(d)
			}
		}
		if row.PnLText == "" {
			row.PnLText = "N/A"
		}
		if pos.PnLValue.Valid {
			row.Class = pnlClass(pos.PnLValue.Decimal)
		}
		p.Rows = append(p.Rows, row)
	}
	return p
}

func summarize(list []positions.Position) Summary {
	total := positions.Total(list)
	s := Summary{
		Count: len(list),
		Total: "$" + FormatSigned(total),
		Class: pnlClass(total),
	}

	var data stats.Float64Data
	for _, p := range list {
		if p.PnLValue.Valid {
			data = append(data, p.PnLValue.Decimal.InexactFloat64())
		}
	}
	s.Priced = len(data)
	if len(data) == 0 {
		return s
	}
	s.HasData = true
	if mean, err := stats.Mean(data); err == nil {
		s.Mean = "$" + FormatSigned(decimal.NewFromFloat(mean))
	}
	if best, err := stats.Max(data); err == nil {
		s.Best = "$" + FormatSigned(decimal.NewFromFloat(best))
	}
	if worst, err := stats.Min(data); err == nil {
		s.Worst = "$" + FormatSigned(decimal.NewFromFloat(worst))
	}
	return s
}

func pnlClass(d decimal.Decimal) string {
	if d.IsNegative() {
		return "loss"
	}
	return "profit"
}

// FormatAmount renders d with thousands separators and two decimals.
// Only the integer part goes through the printer; the cents are taken
// from the exact decimal string.
func FormatAmount(d decimal.Decimal) string {
	fixed := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	whole, frac, _ := strings.Cut(fixed, ".")
	n, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return sign + fixed
	}
	return sign + printer.Sprintf("%d", n) + "." + frac
}

// FormatSigned is FormatAmount with an explicit sign, e.g. "+1,234.50".
func FormatSigned(d decimal.Decimal) string {
	if d.Round(2).IsNegative() {
		return "-" + FormatAmount(d.Abs())
	}
	return "+" + FormatAmount(d)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("report: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("report: temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("report: close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("report: chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("report: rename %s: %w", path, err)
	}
	return nil
}
