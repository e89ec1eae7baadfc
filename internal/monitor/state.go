package monitor

import (
	"strings"
	"time"

	"github.com/dgnsrekt/positions_watch/internal/positions"
	"github.com/shopspring/decimal"
)

// Phase of the change detector.
type Phase string

const (
	Priming Phase = "priming"
	Steady  Phase = "steady"
)

// Observation is one fetched section, trimmed and stamped to the second.
type Observation struct {
	Timestamp    time.Time
	RawText      string
	AggregatePnL decimal.NullDecimal
}

// NewObservation trims text and extracts its aggregate P&L.
func NewObservation(at time.Time, text string) Observation {
	text = strings.TrimSpace(text)
	return Observation{
		Timestamp:    at.UTC().Truncate(time.Second),
		RawText:      text,
		AggregatePnL: positions.ExtractAggregatePnL(text),
	}
}

// ChangeEvent describes a difference between the stored and the current
// observation.
type ChangeEvent struct {
	Timestamp    time.Time
	PreviousText string
	CurrentText  string
	PreviousPnL  decimal.NullDecimal
	CurrentPnL   decimal.NullDecimal
	Delta        decimal.NullDecimal
}

// DeltaMessage returns " (Δ Unrealized P&L: +163.70)" when the delta is
// known and "" otherwise.
func (e ChangeEvent) DeltaMessage() string {
	if !e.Delta.Valid {
		return ""
	}
	return " (Δ Unrealized P&L: " + positions.FormatDelta(e.Delta.Decimal) + ")"
}

// State is the detector memory. It is owned by the poll loop and never
// shared with other goroutines.
type State struct {
	phase Phase
	last  Observation
}

// NewState starts in Priming.
func NewState() *State {
	return &State{phase: Priming}
}

func (s *State) Phase() Phase { return s.phase }

// Last returns the stored observation; ok is false while priming.
func (s *State) Last() (obs Observation, ok bool) {
	return s.last, s.phase == Steady
}

// Prime stores the first observation and moves to Steady.
func (s *State) Prime(obs Observation) {
	s.last = obs
	s.phase = Steady
}

// Compare reports a ChangeEvent when the trimmed texts differ. It never
// changes the state and reports nothing while priming.
func (s *State) Compare(obs Observation) (ChangeEvent, bool) {
	if s.phase != Steady {
		return ChangeEvent{}, false
	}
	prev := strings.TrimSpace(s.last.RawText)
	cur := strings.TrimSpace(obs.RawText)
	if prev == cur {
		return ChangeEvent{}, false
	}

	ev := ChangeEvent{
		Timestamp:    obs.Timestamp,
		PreviousText: prev,
		CurrentText:  cur,
		PreviousPnL:  s.last.AggregatePnL,
		CurrentPnL:   obs.AggregatePnL,
	}
	if ev.PreviousPnL.Valid && ev.CurrentPnL.Valid {
		ev.Delta = decimal.NewNullDecimal(ev.CurrentPnL.Decimal.Sub(ev.PreviousPnL.Decimal))
	}
	return ev, true
}

// Apply stores obs after a change. An undefined aggregate keeps the
// previous one so the next delta still has a baseline.
func (s *State) Apply(obs Observation) {
	pnl := obs.AggregatePnL
	if !pnl.Valid {
		pnl = s.last.AggregatePnL
	}
	s.last = obs
	s.last.AggregatePnL = pnl
	s.phase = Steady
}
