package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/positions_watch/internal/monitor"
	"github.com/dgnsrekt/positions_watch/internal/positions"
	"github.com/dgnsrekt/positions_watch/internal/storage"
	"github.com/shopspring/decimal"
)

type positionView struct {
	Symbol         string  `json:"symbol" doc:"Ticker, or N/A when neither named nor inferred"`
	SymbolInferred bool    `json:"symbol_inferred" doc:"True when the symbol was guessed from the entry price"`
	Side           string  `json:"side" enum:"Long,Short,N/A"`
	Leverage       string  `json:"leverage,omitempty"`
	EntryPrice     string  `json:"entry_price,omitempty"`
	Quantity       string  `json:"quantity,omitempty"`
	PnL            *string `json:"pnl,omitempty" doc:"Unrealized P&L, two decimals"`
	PnLText        string  `json:"pnl_text,omitempty"`
}

type statusView struct {
	Phase         string     `json:"phase" enum:"priming,steady"`
	TargetURL     string     `json:"target_url"`
	Model         string     `json:"model"`
	StartedAt     time.Time  `json:"started_at"`
	Cycles        int64      `json:"cycles"`
	Changes       int64      `json:"changes"`
	Heartbeats    int64      `json:"heartbeats"`
	SkippedCycles int64      `json:"skipped_cycles"`
	LastPollAt    *time.Time `json:"last_poll_at,omitempty"`
	LastChangeAt  *time.Time `json:"last_change_at,omitempty"`
	LastSource    string     `json:"last_source,omitempty"`
	AggregatePnL  *string    `json:"aggregate_pnl,omitempty"`
	PositionCount int        `json:"position_count"`
	LastError     string     `json:"last_error,omitempty"`
}

func fixed(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.StringFixed(2)
	return &s
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func toPositionViews(list []positions.Position) []positionView {
	out := make([]positionView, 0, len(list))
	for _, p := range list {
		out = append(out, positionView{
			Symbol:         p.DisplaySymbol(),
			SymbolInferred: p.SymbolInferred,
			Side:           p.DisplaySide(),
			Leverage:       p.Leverage,
			EntryPrice:     p.EntryPrice,
			Quantity:       p.Quantity,
			PnL:            fixed(p.PnLValue),
			PnLText:        p.PnLText,
		})
	}
	return out
}

func toStatusView(s monitor.Status) statusView {
	return statusView{
		Phase:         string(s.Phase),
		TargetURL:     s.TargetURL,
		Model:         s.Model,
		StartedAt:     s.StartedAt,
		Cycles:        s.Cycles,
		Changes:       s.Changes,
		Heartbeats:    s.Heartbeats,
		SkippedCycles: s.SkippedCycles,
		LastPollAt:    timePtr(s.LastPollAt),
		LastChangeAt:  timePtr(s.LastChangeAt),
		LastSource:    s.LastSource,
		AggregatePnL:  fixed(s.AggregatePnL),
		PositionCount: len(s.Positions),
		LastError:     s.LastError,
	}
}

func registerStatusHandlers(api huma.API, svc Service) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	type statusOutput struct {
		Body statusView
	}
	huma.Register(api, huma.Operation{OperationID: "get-status", Method: http.MethodGet, Path: "/api/v1/status", Summary: "Monitor status", Description: "Counters and last observation summary of the poll loop.", Tags: []string{"Monitor"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			out := &statusOutput{}
			out.Body = toStatusView(svc.Status(ctx))
			return out, nil
		})

	type positionsOutput struct {
		Body struct {
			UpdatedAt *time.Time     `json:"updated_at,omitempty"`
			Count     int            `json:"count"`
			Total     string         `json:"total_pnl"`
			Text      string         `json:"active_positions"`
			Positions []positionView `json:"positions"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "get-positions", Method: http.MethodGet, Path: "/api/v1/positions", Summary: "Current positions", Description: "Positions parsed from the last init or change record.", Tags: []string{"Monitor"}},
		func(ctx context.Context, input *struct{}) (*positionsOutput, error) {
			st := svc.Status(ctx)
			out := &positionsOutput{}
			out.Body.UpdatedAt = timePtr(st.LastChangeAt)
			out.Body.Count = len(st.Positions)
			out.Body.Total = positions.Total(st.Positions).StringFixed(2)
			out.Body.Text = st.LastText
			out.Body.Positions = toPositionViews(st.Positions)
			return out, nil
		})

	type historyInput struct {
		Limit int `query:"limit" default:"20" minimum:"1" maximum:"1000" doc:"Most recent records to return"`
	}
	type historyOutput struct {
		Body struct {
			Records []storage.Record `json:"records"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "get-history", Method: http.MethodGet, Path: "/api/v1/history", Summary: "Recent log records", Description: "Tail of the positions log, oldest first.", Tags: []string{"Monitor"}},
		func(ctx context.Context, input *historyInput) (*historyOutput, error) {
			recs, err := svc.History(ctx, input.Limit)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &historyOutput{}
			out.Body.Records = recs
			if out.Body.Records == nil {
				out.Body.Records = []storage.Record{}
			}
			return out, nil
		})
}
