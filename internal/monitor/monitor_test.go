package monitor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/positions_watch/internal/alert"
	"github.com/dgnsrekt/positions_watch/internal/locator"
	"github.com/dgnsrekt/positions_watch/internal/positions"
	"github.com/dgnsrekt/positions_watch/internal/report"
	"github.com/dgnsrekt/positions_watch/internal/snapshot"
	"github.com/dgnsrekt/positions_watch/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	textT0 = `ACTIVE POSITIONS
BTC Entry Time: 10:00:00 Side: LONG Entry Price: $65,000 Leverage: 10X Unrealized P&L: -$120.50
TOTAL UNREALIZED P&L: -$120.50`
	textT1 = `ACTIVE POSITIONS
BTC Entry Time: 10:00:00 Side: LONG Entry Price: $65,000 Leverage: 10X Unrealized P&L: +$43.20
TOTAL UNREALIZED P&L: $43.20`
)

var fakePNG = []byte("\x89PNG\r\n\x1a\nfake")

type fakePage struct {
	texts      []string
	loadErrs   []error
	reloadErrs []error

	loads, reloads, locates, captures, fullCaptures int

	onLoad   func(n int)
	onLocate func(n int)
}

func next(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (p *fakePage) Load(context.Context) error {
	p.loads++
	if p.onLoad != nil {
		p.onLoad(p.loads)
	}
	return next(&p.loadErrs)
}

func (p *fakePage) Reload(context.Context) error {
	p.reloads++
	return next(&p.reloadErrs)
}

func (p *fakePage) Locate(context.Context) locator.Result {
	p.locates++
	if p.onLocate != nil {
		defer p.onLocate(p.locates)
	}
	if len(p.texts) == 0 {
		return locator.Result{Source: locator.SourceNone}
	}
	text := p.texts[0]
	if len(p.texts) > 1 {
		p.texts = p.texts[1:]
	}
	return locator.Result{Text: text, Ref: locator.SectionSelector, Source: locator.SourceSibling}
}

func (p *fakePage) Capture(_ context.Context, selector string) ([]byte, bool, error) {
	p.captures++
	return fakePNG, selector == "", nil
}

func (p *fakePage) CaptureFullPage(context.Context) ([]byte, error) {
	p.fullCaptures++
	return fakePNG, nil
}

type recordingBackend struct {
	got []alert.Payload
}

func (r *recordingBackend) Capability() alert.Capability { return alert.Visual }
func (r *recordingBackend) Available() error             { return nil }

func (r *recordingBackend) Deliver(_ context.Context, p alert.Payload) error {
	r.got = append(r.got, p)
	return nil
}

type failingSink struct{ calls int }

func (f *failingSink) Name() string { return "failing" }

func (f *failingSink) Emit(context.Context, Emission) error {
	f.calls++
	return errors.New("disk full")
}

type recordingSink struct{ got []Emission }

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Emit(_ context.Context, e Emission) error {
	r.got = append(r.got, e)
	return nil
}

func TestStateCompare(t *testing.T) {
	at := time.Date(2025, 10, 21, 12, 0, 0, 0, time.UTC)
	s := NewState()
	assert.Equal(t, Priming, s.Phase())

	_, changed := s.Compare(NewObservation(at, "x"))
	assert.False(t, changed, "no change events while priming")

	s.Prime(NewObservation(at, "  UNREALIZED P&L: -$120.50\n"))
	assert.Equal(t, Steady, s.Phase())

	_, changed = s.Compare(NewObservation(at, "UNREALIZED P&L: -$120.50"))
	assert.False(t, changed, "identical trimmed text")

	ev, changed := s.Compare(NewObservation(at, "UNREALIZED P&L: $43.20"))
	require.True(t, changed)
	require.True(t, ev.Delta.Valid)
	assert.Equal(t, "163.7", ev.Delta.Decimal.String())
	assert.Equal(t, " (Δ Unrealized P&L: +163.70)", ev.DeltaMessage())

	ev, changed = s.Compare(NewObservation(at, "no figure here"))
	require.True(t, changed)
	assert.False(t, ev.Delta.Valid)
	assert.Equal(t, "", ev.DeltaMessage())
}

func TestStateApplyKeepsPriorAggregate(t *testing.T) {
	at := time.Now()
	s := NewState()
	s.Prime(NewObservation(at, "UNREALIZED P&L: -$10.00"))

	s.Apply(NewObservation(at, "text without a figure"))
	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, "text without a figure", last.RawText)
	assert.True(t, last.AggregatePnL.Valid)
	assert.Equal(t, "-10", last.AggregatePnL.Decimal.String())

	ev, changed := s.Compare(NewObservation(at, "UNREALIZED P&L: $5"))
	require.True(t, changed)
	assert.Equal(t, "15", ev.Delta.Decimal.String())
}

type harness struct {
	page    *fakePage
	mon     *Monitor
	console *bytes.Buffer
	log     *storage.PositionsLog
	store   *snapshot.Store
	alerts  *recordingBackend
	dir     string
}

func newHarness(t *testing.T, page *fakePage, extra ...Sink) *harness {
	t.Helper()
	dir := t.TempDir()

	log, err := storage.OpenPositionsLog(filepath.Join(dir, "positions-log.txt"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	store, err := snapshot.NewStore(filepath.Join(dir, "snaps"))
	require.NoError(t, err)

	alerts := &recordingBackend{}
	sinks := append([]Sink{}, extra...)
	sinks = append(sinks,
		LogSink{Log: log},
		SnapshotSink{Page: page, Store: store},
		ReportSink{Writer: &report.Writer{HTMLPath: filepath.Join(dir, "positions_latest.html")}},
		AlertSink{Dispatcher: alert.NewDispatcher(alerts), Title: "DeepSeek Positions Updated"},
	)

	console := &bytes.Buffer{}
	mon := New(page, Options{
		TargetURL:       "https://example.com/models/x",
		Model:           "DEEPSEEK CHAT V3.1",
		Interval:        time.Millisecond,
		RetryBackoff:    time.Millisecond,
		DebugScreenshot: filepath.Join(dir, "debug_positions_full.png"),
		Console:         console,
		Sinks:           sinks,
	})
	return &harness{page: page, mon: mon, console: console, log: log, store: store, alerts: alerts, dir: dir}
}

func (h *harness) records(t *testing.T) []storage.Record {
	t.Helper()
	recs, err := h.log.Tail(100)
	require.NoError(t, err)
	return recs
}

func (h *harness) snapshots(t *testing.T) []snapshot.Meta {
	t.Helper()
	list, err := h.store.List()
	require.NoError(t, err)
	return list
}

func TestObserveEndToEndScenario(t *testing.T) {
	h := newHarness(t, &fakePage{texts: []string{textT0, textT0, textT1}})
	ctx := context.Background()

	// Initial fetch primes the detector.
	h.mon.Observe(ctx)
	recs := h.records(t)
	require.Len(t, recs, 1)
	assert.Equal(t, textT0, recs[0].ActivePositions)
	assert.Equal(t, "DEEPSEEK CHAT V3.1", recs[0].Model)
	snaps := h.snapshots(t)
	require.Len(t, snaps, 1)
	assert.Equal(t, snapshot.KindInit, snaps[0].Kind)
	assert.Empty(t, h.alerts.got)
	assert.Contains(t, h.console.String(), "Initialized.")

	// Unchanged text is a heartbeat.
	h.mon.Observe(ctx)
	assert.Len(t, h.records(t), 1)
	assert.Len(t, h.snapshots(t), 1)
	assert.Contains(t, h.console.String(), "no change\n")

	// Changed text emits exactly once.
	h.mon.Observe(ctx)
	recs = h.records(t)
	require.Len(t, recs, 2)
	assert.Equal(t, textT1, recs[1].ActivePositions)
	assert.Len(t, h.snapshots(t), 2)
	require.Len(t, h.alerts.got, 1)
	assert.Equal(t, "Δ Unrealized P&L: +163.70", h.alerts.got[0].Message)
	assert.Equal(t, "DeepSeek Positions Updated", h.alerts.got[0].Title)
	assert.Contains(t, h.alerts.got[0].Details, "BTC")
	assert.Contains(t, h.console.String(), "⚡ Positions updated! (Δ Unrealized P&L: +163.70)\n")

	html, err := os.ReadFile(filepath.Join(h.dir, "positions_latest.html"))
	require.NoError(t, err)
	assert.Contains(t, string(html), "&#43;$43.20")

	st := h.mon.Board().Load()
	assert.Equal(t, Steady, st.Phase)
	assert.EqualValues(t, 3, st.Cycles)
	assert.EqualValues(t, 1, st.Changes)
	assert.EqualValues(t, 1, st.Heartbeats)
	assert.Equal(t, textT1, st.LastText)
	assert.Equal(t, "43.2", st.AggregatePnL.Decimal.String())
	require.Len(t, st.Positions, 1)
	assert.Equal(t, "BTC", st.Positions[0].Symbol)
	assert.Equal(t, 0, h.page.fullCaptures, "no debug screenshot for a located section")
}

func TestObserveEchoesRecordJSON(t *testing.T) {
	h := newHarness(t, &fakePage{texts: []string{"ACTIVE POSITIONS <b>none</b>"}})
	h.mon.now = func() time.Time { return time.Date(2025, 10, 21, 12, 30, 45, 999, time.UTC) }

	h.mon.Observe(context.Background())
	assert.Contains(t, h.console.String(),
		`{"timestamp":"2025-10-21T12:30:45Z","model":"DEEPSEEK CHAT V3.1","active_positions":"ACTIVE POSITIONS <b>none</b>"}`+"\n")
}

func TestSinkFailureIsIsolated(t *testing.T) {
	bad := &failingSink{}
	rec := &recordingSink{}
	h := newHarness(t, &fakePage{texts: []string{textT0, textT1}}, bad, rec)
	ctx := context.Background()

	h.mon.Observe(ctx)
	h.mon.Observe(ctx)

	assert.Equal(t, 2, bad.calls)
	require.Len(t, rec.got, 2)
	assert.Equal(t, snapshot.KindInit, rec.got[0].Kind)
	assert.Nil(t, rec.got[0].Change)
	assert.Equal(t, snapshot.KindChange, rec.got[1].Kind)
	require.NotNil(t, rec.got[1].Change)
	assert.Len(t, h.records(t), 2, "log sink still ran after the failing sink")
	assert.Len(t, h.alerts.got, 1)
}

func TestDebugScreenshotTakenOnce(t *testing.T) {
	h := newHarness(t, &fakePage{})
	ctx := context.Background()

	h.mon.Observe(ctx)
	h.mon.Observe(ctx)

	assert.Equal(t, 1, h.page.fullCaptures)
	_, err := os.Stat(filepath.Join(h.dir, "debug_positions_full.png"))
	assert.NoError(t, err)
	recs := h.records(t)
	require.Len(t, recs, 1, "empty init is still recorded")
	assert.Equal(t, "", recs[0].ActivePositions)
	assert.Equal(t, "none", h.mon.Board().Load().LastSource)
}

func TestRunRetriesInitialLoadUntilSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	page := &fakePage{
		texts:    []string{textT0},
		loadErrs: []error{errors.New("timeout"), errors.New("timeout")},
	}
	page.onLocate = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	h := newHarness(t, page)

	require.NoError(t, h.mon.Run(ctx))

	out := h.console.String()
	assert.Equal(t, 2, strings.Count(out, "Initial load failed, retrying in 1ms..."))
	assert.Contains(t, out, "🚀 Positions Monitor Started")
	assert.Contains(t, out, "Target URL: https://example.com/models/x")
	assert.Contains(t, out, "Stopped by user.")
	assert.Equal(t, 3, page.loads)
	assert.GreaterOrEqual(t, page.reloads, 1)
	assert.Len(t, h.records(t), 1)
}

func TestRunReloadFailureFallsBackToNavigation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	page := &fakePage{
		texts:      []string{textT0, textT1},
		reloadErrs: []error{errors.New("net::ERR_ABORTED")},
	}
	page.onLocate = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	h := newHarness(t, page)

	require.NoError(t, h.mon.Run(ctx))

	out := h.console.String()
	assert.Contains(t, out, "Reload failed, retrying in 1ms...")
	assert.NotContains(t, out, "skipping this cycle")
	assert.Equal(t, 2, page.loads, "initial load plus one navigation retry")
	assert.Len(t, h.records(t), 2)
}

func TestRunSkipsCycleWhenRetryFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	page := &fakePage{
		texts:      []string{textT0},
		reloadErrs: []error{errors.New("reload"), errors.New("reload")},
		loadErrs:   []error{nil, errors.New("nav"), errors.New("nav")},
	}
	page.onLoad = func(n int) {
		if n == 3 {
			cancel()
		}
	}
	h := newHarness(t, page)

	require.NoError(t, h.mon.Run(ctx))

	out := h.console.String()
	assert.Contains(t, out, "Navigation retry failed; skipping this cycle.")
	assert.Equal(t, 1, page.locates, "skipped cycles never locate")
	st := h.mon.Board().Load()
	assert.GreaterOrEqual(t, st.SkippedCycles, int64(1))
	assert.Contains(t, st.LastError, "nav")
	assert.Len(t, h.records(t), 1, "skipped cycles change nothing")
}

func TestBoardLoadReturnsCopy(t *testing.T) {
	b := NewBoard(Status{})
	b.update(func(s *Status) {
		s.Positions = append(s.Positions, positions.Position{Symbol: "BTC", Side: positions.SideLong})
	})

	got := b.Load()
	got.Positions[0].Symbol = "MUTATED"
	got.Cycles = 99

	again := b.Load()
	assert.Equal(t, "BTC", again.Positions[0].Symbol)
	assert.EqualValues(t, 0, again.Cycles)
	assert.Equal(t, Priming, again.Phase)
}
