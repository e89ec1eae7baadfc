package api

import (
	"context"
	"os"

	"github.com/dgnsrekt/positions_watch/internal/monitor"
	"github.com/dgnsrekt/positions_watch/internal/report"
	"github.com/dgnsrekt/positions_watch/internal/snapshot"
	"github.com/dgnsrekt/positions_watch/internal/storage"
)

// Backend implements Service over the watcher's live components. Every
// field is optional; a missing one makes its routes report not found.
type Backend struct {
	Board     *monitor.Board
	Log       *storage.PositionsLog
	Snapshots *snapshot.Store
	Report    *report.Writer
}

func (b *Backend) Status(context.Context) monitor.Status {
	if b.Board == nil {
		return monitor.Status{Phase: monitor.Priming}
	}
	return b.Board.Load()
}

func (b *Backend) History(_ context.Context, limit int) ([]storage.Record, error) {
	if b.Log == nil {
		return []storage.Record{}, nil
	}
	return b.Log.Tail(limit)
}

func (b *Backend) ListSnapshots(context.Context) ([]snapshot.Meta, error) {
	if b.Snapshots == nil {
		return []snapshot.Meta{}, nil
	}
	return b.Snapshots.List()
}

func (b *Backend) GetSnapshot(_ context.Context, id string) (snapshot.Meta, error) {
	if b.Snapshots == nil {
		return snapshot.Meta{}, snapshot.ErrNotFound
	}
	return b.Snapshots.Get(id)
}

func (b *Backend) ReadSnapshotImage(_ context.Context, id string) ([]byte, snapshot.Meta, error) {
	if b.Snapshots == nil {
		return nil, snapshot.Meta{}, snapshot.ErrNotFound
	}
	return b.Snapshots.ReadImage(id)
}

func (b *Backend) LatestReport(context.Context) ([]byte, error) {
	if b.Report == nil {
		return nil, os.ErrNotExist
	}
	return b.Report.Latest()
}
