package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/positions_watch/internal/monitor"
	"github.com/dgnsrekt/positions_watch/internal/relay"
	"github.com/dgnsrekt/positions_watch/internal/snapshot"
	"github.com/dgnsrekt/positions_watch/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Service is the read-only view of the watcher that the API exposes.
type Service interface {
	Status(ctx context.Context) monitor.Status
	History(ctx context.Context, limit int) ([]storage.Record, error)
	ListSnapshots(ctx context.Context) ([]snapshot.Meta, error)
	GetSnapshot(ctx context.Context, id string) (snapshot.Meta, error)
	ReadSnapshotImage(ctx context.Context, id string) ([]byte, snapshot.Meta, error)
	LatestReport(ctx context.Context) ([]byte, error)
}

// NewServer builds the status API. broker may be nil, in which case the
// live feed routes are not mounted.
func NewServer(svc Service, broker *relay.Broker) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Positions Watch API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	docs := renderDocs(cfg.Info.Title, cfg.Info.Version, broker != nil)
	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := w.Write(docs); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})

	router.Get("/report", func(w http.ResponseWriter, r *http.Request) {
		html, err := svc.LatestReport(r.Context())
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				http.Error(w, "no report yet", http.StatusNotFound)
				return
			}
			slog.Warn("report read failed", "error", err)
			http.Error(w, "report unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if _, err := w.Write(html); err != nil {
			slog.Debug("report response write failed", "error", err)
		}
	})

	if broker != nil {
		router.Get("/api/v1/events", relay.SSEHandler(broker))
		router.Get("/api/v1/ws", relay.WSHandler(broker))
	}

	registerStatusHandlers(api, svc)
	registerSnapshotHandlers(api, svc)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, snapshot.ErrInvalidID):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, snapshot.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return huma.Error504GatewayTimeout(err.Error())
	}
	return huma.Error500InternalServerError(err.Error())
}
