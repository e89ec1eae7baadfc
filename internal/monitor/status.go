package monitor

import (
	"sync/atomic"
	"time"

	"github.com/dgnsrekt/positions_watch/internal/positions"
	"github.com/shopspring/decimal"
)

// Status is a read-only copy of the loop's progress for the API.
type Status struct {
	Phase         Phase                `json:"phase"`
	TargetURL     string               `json:"target_url"`
	Model         string               `json:"model"`
	StartedAt     time.Time            `json:"started_at"`
	Cycles        int64                `json:"cycles"`
	Changes       int64                `json:"changes"`
	Heartbeats    int64                `json:"heartbeats"`
	SkippedCycles int64                `json:"skipped_cycles"`
	LastPollAt    time.Time            `json:"last_poll_at,omitzero"`
	LastChangeAt  time.Time            `json:"last_change_at,omitzero"`
	LastSource    string               `json:"last_source,omitempty"`
	LastText      string               `json:"last_text"`
	AggregatePnL  decimal.NullDecimal  `json:"aggregate_pnl"`
	Positions     []positions.Position `json:"positions"`
	LastError     string               `json:"last_error,omitempty"`
}

// Board publishes Status snapshots. The poll loop is the only writer;
// readers always get a complete, never-mutated value.
type Board struct {
	p atomic.Pointer[Status]
}

// NewBoard seeds the board with initial.
func NewBoard(initial Status) *Board {
	b := &Board{}
	if initial.Phase == "" {
		initial.Phase = Priming
	}
	if initial.Positions == nil {
		initial.Positions = []positions.Position{}
	}
	b.p.Store(&initial)
	return b
}

// Load returns the latest status.
func (b *Board) Load() Status {
	s := *b.p.Load()
	s.Positions = positions.Clone(s.Positions)
	return s
}

func (b *Board) update(fn func(*Status)) {
	next := *b.p.Load()
	fn(&next)
	b.p.Store(&next)
}
