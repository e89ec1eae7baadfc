// Package alert delivers change notifications to the user through a set
// of optional backends. Each backend is probed once at startup; a backend
// that cannot run is reported once and skipped for the life of the process.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgnsrekt/positions_watch/internal/positions"
	"github.com/shopspring/decimal"
)

// Capability names an alert backend.
type Capability string

const (
	Notify Capability = "notify"
	Sound  Capability = "sound"
	Popup  Capability = "popup"
	Visual Capability = "visual"
	Push   Capability = "push"
)

// Payload is what every backend renders.
type Payload struct {
	Title     string
	Message   string
	Details   string
	Positions []positions.Position
	Delta     decimal.NullDecimal
}

// NewPayload builds the alert for a change. Message carries the aggregate
// delta when both sides were known.
func NewPayload(title string, delta decimal.NullDecimal, list []positions.Position) Payload {
	msg := "Active positions changed"
	if delta.Valid {
		msg = "Δ Unrealized P&L: " + positions.FormatDelta(delta.Decimal)
	}
	return Payload{
		Title:     title,
		Message:   msg,
		Details:   FormatDetails(list),
		Positions: positions.Clone(list),
		Delta:     delta,
	}
}

func (p Payload) clone() Payload {
	p.Positions = positions.Clone(p.Positions)
	return p
}

// Summary is a compact one line per position rendering for backends with
// little room, capped at limit lines.
func (p Payload) Summary(limit int) string {
	var b strings.Builder
	for i, pos := range p.Positions {
		if i == limit {
			fmt.Fprintf(&b, "… and %d more", len(p.Positions)-limit)
			break
		}
		pnl := pos.PnLText
		if pnl == "" {
			pnl = "N/A"
		}
		fmt.Fprintf(&b, "%s %s %s\n", pos.DisplaySymbol(), pos.DisplaySide(), pnl)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Backend delivers a payload through one channel.
type Backend interface {
	Capability() Capability
	// Available returns nil when the backend can run here, or the reason
	// it cannot.
	Available() error
	Deliver(ctx context.Context, p Payload) error
}

// Dispatcher fans a payload out to the available backends.
type Dispatcher struct {
	active []Backend
}

// NewDispatcher probes each backend once and keeps the usable ones.
func NewDispatcher(backends ...Backend) *Dispatcher {
	d := &Dispatcher{}
	for _, b := range backends {
		if b == nil {
			continue
		}
		if err := b.Available(); err != nil {
			slog.Info("alert backend unavailable", "capability", b.Capability(), "reason", err)
			continue
		}
		d.active = append(d.active, b)
	}
	return d
}

// Active lists the capabilities that passed the startup probe.
func (d *Dispatcher) Active() []Capability {
	out := make([]Capability, 0, len(d.active))
	for _, b := range d.active {
		out = append(out, b.Capability())
	}
	return out
}

// Dispatch delivers p to every active backend. A failing backend does not
// stop the others; the number of failures is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, p Payload) int {
	failed := 0
	for _, b := range d.active {
		if err := b.Deliver(ctx, p.clone()); err != nil {
			failed++
			slog.Warn("alert delivery failed", "capability", b.Capability(), "error", err)
		}
	}
	return failed
}
