package monitor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgnsrekt/positions_watch/internal/alert"
	"github.com/dgnsrekt/positions_watch/internal/positions"
	"github.com/dgnsrekt/positions_watch/internal/relay"
	"github.com/dgnsrekt/positions_watch/internal/report"
	"github.com/dgnsrekt/positions_watch/internal/snapshot"
	"github.com/dgnsrekt/positions_watch/internal/storage"
)

// Emission is everything a sink may need about one init or change record.
// Sinks must treat it as read-only.
type Emission struct {
	Kind        string
	Record      storage.Record
	Observation Observation
	Change      *ChangeEvent
	Positions   []positions.Position
	Selector    string
}

// Sink consumes emissions. Errors are logged by the loop and never stop
// other sinks.
type Sink interface {
	Name() string
	Emit(ctx context.Context, e Emission) error
}

// LogSink appends the record to the positions log.
type LogSink struct {
	Log *storage.PositionsLog
}

func (s LogSink) Name() string { return "log" }

func (s LogSink) Emit(_ context.Context, e Emission) error {
	return s.Log.Append(e.Record)
}

// Capturer takes section screenshots.
type Capturer interface {
	Capture(ctx context.Context, selector string) (img []byte, fullPage bool, err error)
}

// SnapshotSink stores a screenshot of the located section, or of the
// whole page when there is no section.
type SnapshotSink struct {
	Page  Capturer
	Store *snapshot.Store
}

func (s SnapshotSink) Name() string { return "snapshot" }

func (s SnapshotSink) Emit(ctx context.Context, e Emission) error {
	img, fullPage, err := s.Page.Capture(ctx, e.Selector)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	meta, err := s.Store.Save(e.Kind, e.Selector, fullPage, img, e.Observation.Timestamp)
	if err != nil {
		return err
	}
	slog.Info("snapshot saved", "file", meta.File, "kind", e.Kind, "full_page", fullPage)
	return nil
}

// ReportSink rewrites the HTML and CSV report on every change.
type ReportSink struct {
	Writer *report.Writer
}

func (s ReportSink) Name() string { return "report" }

func (s ReportSink) Emit(_ context.Context, e Emission) error {
	if e.Kind != snapshot.KindChange {
		return nil
	}
	return s.Writer.Write(e.Positions, e.Observation.Timestamp)
}

// FeedEvent is the live feed payload.
type FeedEvent struct {
	Kind      string               `json:"kind"`
	Record    storage.Record       `json:"record"`
	Delta     *string              `json:"delta,omitempty"`
	Positions []positions.Position `json:"positions,omitempty"`
}

// FeedSink publishes records to SSE and WebSocket subscribers.
type FeedSink struct {
	Relay *relay.Relay
}

func (s FeedSink) Name() string { return "feed" }

func (s FeedSink) Emit(_ context.Context, e Emission) error {
	ev := FeedEvent{Kind: e.Kind, Record: e.Record, Positions: e.Positions}
	if e.Change != nil && e.Change.Delta.Valid {
		d := positions.FormatDelta(e.Change.Delta.Decimal)
		ev.Delta = &d
	}
	feed := relay.FeedChange
	if e.Kind == snapshot.KindInit {
		feed = relay.FeedInit
	}
	return s.Relay.Publish(feed, ev)
}

// AlertSink dispatches change alerts.
type AlertSink struct {
	Dispatcher *alert.Dispatcher
	Title      string
}

func (s AlertSink) Name() string { return "alert" }

func (s AlertSink) Emit(ctx context.Context, e Emission) error {
	if e.Kind != snapshot.KindChange || e.Change == nil {
		return nil
	}
	p := alert.NewPayload(s.Title, e.Change.Delta, e.Positions)
	if n := s.Dispatcher.Dispatch(ctx, p); n > 0 {
		return fmt.Errorf("%d alert backend(s) failed", n)
	}
	return nil
}
