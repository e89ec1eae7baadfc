package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgnsrekt/positions_watch/internal/monitor"
	"github.com/dgnsrekt/positions_watch/internal/positions"
	"github.com/dgnsrekt/positions_watch/internal/relay"
	"github.com/dgnsrekt/positions_watch/internal/report"
	"github.com/dgnsrekt/positions_watch/internal/snapshot"
	"github.com/dgnsrekt/positions_watch/internal/storage"
	"github.com/shopspring/decimal"
)

var pngStub = []byte("\x89PNG\r\n\x1a\nfake")

func pnl(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

func newBackend(t *testing.T) *Backend {
	t.Helper()
	dir := t.TempDir()

	store, err := snapshot.NewStore(filepath.Join(dir, "shots"))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	log, err := storage.OpenPositionsLog(filepath.Join(dir, "positions-log.txt"), 1)
	if err != nil {
		t.Fatalf("OpenPositionsLog() error = %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })

	board := monitor.NewBoard(monitor.Status{
		Phase:        monitor.Steady,
		TargetURL:    "https://chat.example.com/positions",
		Model:        "deepseek-chat-v3.1",
		StartedAt:    time.Date(2025, 10, 20, 9, 0, 0, 0, time.UTC),
		Cycles:       4,
		Changes:      1,
		Heartbeats:   2,
		LastChangeAt: time.Date(2025, 10, 20, 9, 1, 0, 0, time.UTC),
		LastSource:   "marker",
		LastText:     "ACTIVE POSITIONS BTC Long",
		AggregatePnL: pnl("43.2"),
		Positions: []positions.Position{
			{Symbol: "BTC", Side: positions.SideLong, Leverage: "10X", PnLValue: pnl("43.2"), PnLText: "+$43.20"},
			{Symbol: "ETH", Side: positions.SideShort, PnLValue: pnl("-3.05"), PnLText: "-$3.05"},
		},
	})

	return &Backend{
		Board:     board,
		Log:       log,
		Snapshots: store,
		Report:    &report.Writer{Title: "Positions", HTMLPath: filepath.Join(dir, "report.html")},
	}
}

func TestHealth(t *testing.T) {
	w := get(t, NewServer(&Backend{}, nil), "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body struct {
		Status string `json:"status"`
	}
	decode(t, w, &body)
	if body.Status != "ok" {
		t.Fatalf("status body = %q, want %q", body.Status, "ok")
	}
}

func TestStatusView(t *testing.T) {
	h := NewServer(newBackend(t), nil)
	w := get(t, h, "/api/v1/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var got statusView
	decode(t, w, &got)
	if got.Phase != "steady" {
		t.Fatalf("phase = %q, want steady", got.Phase)
	}
	if got.Cycles != 4 || got.Changes != 1 || got.Heartbeats != 2 {
		t.Fatalf("counters = %d/%d/%d, want 4/1/2", got.Cycles, got.Changes, got.Heartbeats)
	}
	if got.AggregatePnL == nil || *got.AggregatePnL != "43.20" {
		t.Fatalf("aggregate_pnl = %v, want 43.20", got.AggregatePnL)
	}
	if got.PositionCount != 2 {
		t.Fatalf("position_count = %d, want 2", got.PositionCount)
	}
	if got.LastPollAt != nil {
		t.Fatalf("last_poll_at = %v, want omitted", got.LastPollAt)
	}
}

func TestStatusWithoutBoardIsPriming(t *testing.T) {
	w := get(t, NewServer(&Backend{}, nil), "/api/v1/status")
	var got statusView
	decode(t, w, &got)
	if got.Phase != "priming" {
		t.Fatalf("phase = %q, want priming", got.Phase)
	}
	if got.AggregatePnL != nil {
		t.Fatalf("aggregate_pnl = %v, want nil", *got.AggregatePnL)
	}
}

func TestPositions(t *testing.T) {
	w := get(t, NewServer(newBackend(t), nil), "/api/v1/positions")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var body struct {
		Count     int            `json:"count"`
		Total     string         `json:"total_pnl"`
		Text      string         `json:"active_positions"`
		Positions []positionView `json:"positions"`
	}
	decode(t, w, &body)
	if body.Count != 2 {
		t.Fatalf("count = %d, want 2", body.Count)
	}
	if body.Total != "40.15" {
		t.Fatalf("total_pnl = %q, want %q", body.Total, "40.15")
	}
	if body.Text != "ACTIVE POSITIONS BTC Long" {
		t.Fatalf("active_positions = %q", body.Text)
	}
	if p := body.Positions[1]; p.Symbol != "ETH" || p.Side != "Short" || p.PnL == nil || *p.PnL != "-3.05" {
		t.Fatalf("positions[1] = %+v", p)
	}
}

func TestHistoryTail(t *testing.T) {
	b := newBackend(t)
	at := time.Date(2025, 10, 20, 9, 0, 0, 0, time.UTC)
	for i, text := range []string{"one", "two", "three"} {
		if err := b.Log.Append(storage.NewRecord(at.Add(time.Duration(i)*time.Minute), "m", text)); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	w := get(t, NewServer(b, nil), "/api/v1/history?limit=2")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body struct {
		Records []storage.Record `json:"records"`
	}
	decode(t, w, &body)
	if len(body.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(body.Records))
	}
	if body.Records[0].ActivePositions != "two" || body.Records[1].ActivePositions != "three" {
		t.Fatalf("records = %+v, want two then three", body.Records)
	}
}

func TestHistoryRejectsBadLimit(t *testing.T) {
	w := get(t, NewServer(newBackend(t), nil), "/api/v1/history?limit=0")
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
}

func TestSnapshotRoutes(t *testing.T) {
	b := newBackend(t)
	meta, err := b.Snapshots.Save(snapshot.KindChange, "#positions", false, pngStub, time.Now())
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	h := NewServer(b, nil)

	w := get(t, h, "/api/v1/snapshots")
	var list struct {
		Snapshots []snapshot.Meta `json:"snapshots"`
	}
	decode(t, w, &list)
	if len(list.Snapshots) != 1 || list.Snapshots[0].ID != meta.ID {
		t.Fatalf("snapshots = %+v, want [%s]", list.Snapshots, meta.ID)
	}

	w = get(t, h, "/api/v1/snapshots/"+meta.ID)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, want %d", w.Code, http.StatusOK)
	}
	var one struct {
		Meta     snapshot.Meta `json:"meta"`
		ImageURL string        `json:"image_url"`
	}
	decode(t, w, &one)
	if one.Meta.Selector != "#positions" {
		t.Fatalf("selector = %q, want %q", one.Meta.Selector, "#positions")
	}
	if want := "/api/v1/snapshots/" + meta.ID + "/image"; one.ImageURL != want {
		t.Fatalf("image_url = %q, want %q", one.ImageURL, want)
	}

	w = get(t, h, one.ImageURL)
	if w.Code != http.StatusOK {
		t.Fatalf("image status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content-type = %q, want image/png", ct)
	}
	if !bytes.Equal(w.Body.Bytes(), pngStub) {
		t.Fatalf("image body = %q, want %q", w.Body.Bytes(), pngStub)
	}
}

func TestSnapshotErrors(t *testing.T) {
	h := NewServer(newBackend(t), nil)

	if w := get(t, h, "/api/v1/snapshots/not-a-uuid"); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid id status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if w := get(t, h, "/api/v1/snapshots/0b9a3c9e-8f55-4a43-9d4e-3b3f4f0a1c2d"); w.Code != http.StatusNotFound {
		t.Fatalf("unknown id status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if w := get(t, NewServer(&Backend{}, nil), "/api/v1/snapshots/0b9a3c9e-8f55-4a43-9d4e-3b3f4f0a1c2d/image"); w.Code != http.StatusNotFound {
		t.Fatalf("no store status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestReport(t *testing.T) {
	b := newBackend(t)
	h := NewServer(b, nil)

	if w := get(t, h, "/report"); w.Code != http.StatusNotFound {
		t.Fatalf("status before write = %d, want %d", w.Code, http.StatusNotFound)
	}

	list := b.Board.Load().Positions
	if err := b.Report.Write(list, time.Now()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	w := get(t, h, "/report")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("ETH")) {
		t.Fatalf("report missing ETH row")
	}
}

func TestFeedRoutesMountedWithBroker(t *testing.T) {
	without := get(t, NewServer(&Backend{}, nil), "/api/v1/ws")
	if without.Code != http.StatusNotFound {
		t.Fatalf("ws without broker status = %d, want %d", without.Code, http.StatusNotFound)
	}

	srv := httptest.NewServer(NewServer(&Backend{}, relay.NewBroker()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/ws")
	if err != nil {
		t.Fatalf("GET /api/v1/ws: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNotFound {
		t.Fatalf("ws route not mounted")
	}
}
