package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/dgnsrekt/positions_watch/internal/alert"
	"github.com/dgnsrekt/positions_watch/internal/api"
	"github.com/dgnsrekt/positions_watch/internal/browser"
	"github.com/dgnsrekt/positions_watch/internal/cdp"
	"github.com/dgnsrekt/positions_watch/internal/config"
	"github.com/dgnsrekt/positions_watch/internal/locator"
	"github.com/dgnsrekt/positions_watch/internal/monitor"
	"github.com/dgnsrekt/positions_watch/internal/netutil"
	"github.com/dgnsrekt/positions_watch/internal/relay"
	"github.com/dgnsrekt/positions_watch/internal/report"
	"github.com/dgnsrekt/positions_watch/internal/snapshot"
	"github.com/dgnsrekt/positions_watch/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
)

const popupDrainTimeout = 2 * time.Second

type flags struct {
	alerts     config.Alerts
	url        string
	configFile string
	interval   time.Duration
	headless   bool
	apiAddr    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:   "positions_watch",
		Short: "Watch a model's active positions page and alert on changes",
		Long: `Polls the active positions section of a rendered page, appends every
change to a JSON-lines log, screenshots the section and raises alerts.

Alert options can be combined:
  --notify   desktop notification
  --sound    sound alert
  --popup    popup window with details
  --push     ntfy / Discord push (WATCH_NTFY_URL, WATCH_DISCORD_WEBHOOK)

Examples:
  positions_watch --visual --notify --sound
  positions_watch --popup --sound --api-addr 127.0.0.1:8189`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags(), f)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}

	f.bind(cmd.Flags())
	return cmd
}

func (f *flags) bind(fs *pflag.FlagSet) {
	fs.BoolVar(&f.alerts.Visual, "visual", false, "render a colored positions table on every change")
	fs.BoolVar(&f.alerts.Notify, "notify", false, "desktop notification on change")
	fs.BoolVar(&f.alerts.Sound, "sound", false, "sound alert on change")
	fs.BoolVar(&f.alerts.Popup, "popup", false, "popup window with position details on change")
	fs.BoolVar(&f.alerts.Push, "push", false, "push notification via ntfy and/or Discord")
	fs.StringVar(&f.url, "url", "", "page to watch (default "+config.DefaultTargetURL+")")
	fs.StringVar(&f.configFile, "config", "", "YAML overrides file")
	fs.DurationVar(&f.interval, "interval", 0, "poll interval (default 10s)")
	fs.BoolVar(&f.headless, "headless", false, "launch the browser headless")
	fs.StringVar(&f.apiAddr, "api-addr", "", "serve the status API on this address")
}

// loadConfig layers env, the YAML overrides file and then flags.
func loadConfig(fs *pflag.FlagSet, f *flags) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if f.configFile != "" {
		cfg.ConfigFile = f.configFile
	}
	if cfg.ConfigFile != "" {
		o, err := config.LoadOverrides(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
		o.Apply(cfg)
	}

	if fs.Changed("url") {
		cfg.TargetURL = f.url
	}
	if fs.Changed("interval") {
		cfg.PollInterval = f.interval
	}
	if fs.Changed("headless") {
		cfg.Headless = f.headless
	}
	if fs.Changed("api-addr") {
		cfg.APIAddr = f.apiAddr
	}
	cfg.Alerts = f.alerts
	if !cfg.Alerts.Any() {
		cfg.Alerts.Notify = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cfg *config.Config) error {
	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		return err
	}

	slog.Info("positions_watch config loaded",
		"url", cfg.TargetURL,
		"model", cfg.Model,
		"interval", cfg.PollInterval,
		"cdp_url", cfg.GetCDPURL(),
		"launch_browser", cfg.Launch,
		"headless", cfg.Headless,
		"positions_log", cfg.PositionsLog,
		"snapshot_dir", cfg.SnapshotDir,
		"api_addr", cfg.APIAddr,
		"log_level", cfg.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		// A second signal gets the default handling and kills the process.
		<-ctx.Done()
		stop()
	}()

	if cfg.Launch {
		launcher := browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			ProfileDir: cfg.ProfileDir,
			LogFileDir: cfg.BrowserLogs,
			WindowSize: fmt.Sprintf("%d,%d", cfg.ViewportWidth, cfg.ViewportHeight),
			Headless:   cfg.Headless,
		})
		if err := launcher.Launch(ctx); err != nil {
			slog.Error("failed to launch browser", "error", err)
			return err
		}
		defer launcher.Stop()
	}

	session := cdp.NewSession(cdp.Options{
		CDPURL:         cfg.GetCDPURL(),
		TargetURL:      cfg.TargetURL,
		UserAgent:      cfg.UserAgent,
		Locale:         cfg.Locale,
		ViewportWidth:  cfg.ViewportWidth,
		ViewportHeight: cfg.ViewportHeight,
		ExtraHeaders:   cfg.ExtraHeaders,
		LoadTimeout:    cfg.LoadTimeout,
		SettleDelay:    cfg.SettleDelay,
		EvalTimeout:    cfg.EvalTimeout,
	})
	if err := session.Connect(ctx); err != nil {
		slog.Error("failed to connect to browser", "cdp_url", cfg.GetCDPURL(), "error", err)
		return err
	}
	defer session.Close()

	loc := locator.New()
	loc.Marker = cfg.Marker
	page := monitor.NewBrowserPage(session, loc)

	posLog, err := storage.OpenPositionsLog(cfg.PositionsLog, cfg.PositionsLogMaxMB)
	if err != nil {
		slog.Error("failed to open positions log", "path", cfg.PositionsLog, "error", err)
		return err
	}
	defer func() {
		if err := posLog.Close(); err != nil {
			slog.Debug("positions log close failed", "error", err)
		}
	}()

	store, err := snapshot.NewStore(cfg.SnapshotDir)
	if err != nil {
		slog.Error("failed to create snapshot store", "dir", cfg.SnapshotDir, "error", err)
		return err
	}

	rep := &report.Writer{Title: cfg.AlertTitle, HTMLPath: cfg.ReportHTML, CSVPath: cfg.ReportCSV}
	broker := relay.NewBroker(relay.FeedInit, relay.FeedChange)
	feed := relay.NewRelay(broker)

	backends, popup := buildBackends(cfg)
	dispatcher := alert.NewDispatcher(backends...)

	sinks := []monitor.Sink{
		monitor.LogSink{Log: posLog},
		monitor.SnapshotSink{Page: page, Store: store},
		monitor.ReportSink{Writer: rep},
		monitor.FeedSink{Relay: feed},
	}
	if len(dispatcher.Active()) > 0 {
		sinks = append(sinks, monitor.AlertSink{Dispatcher: dispatcher, Title: cfg.AlertTitle})
	}

	board := monitor.NewBoard(monitor.Status{TargetURL: cfg.TargetURL, Model: cfg.Model, StartedAt: time.Now().UTC()})

	var ln net.Listener
	if cfg.APIAddr != "" {
		ln, err = netutil.Listen(cfg.APIAddr, cfg.APICandidates, cfg.APIAutoFallback)
		if err != nil {
			slog.Error("failed to select api bind address", "preferred", cfg.APIAddr, "error", err)
			return err
		}
	}

	banner := []string{
		"Log file: " + cfg.PositionsLog,
		"Screenshots: " + cfg.SnapshotDir,
		"Visual mode: " + enabledMark(cfg.Alerts.Visual),
		"Alerts: " + alertsLine(cfg.Alerts, dispatcher.Active()),
	}
	if ln != nil {
		banner = append(banner, "Status API: http://"+ln.Addr().String()+"/docs")
	}

	mon := monitor.New(page, monitor.Options{
		TargetURL:       cfg.TargetURL,
		Model:           cfg.Model,
		Interval:        cfg.PollInterval,
		RetryBackoff:    cfg.RetryBackoff,
		DebugScreenshot: cfg.DebugScreenshot,
		Banner:          banner,
		Console:         os.Stdout,
		Sinks:           sinks,
		Board:           board,
		Status:          feed,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return mon.Run(gctx)
	})

	if ln != nil {
		svc := &api.Backend{Board: board, Log: posLog, Snapshots: store, Report: rep}
		srv := &http.Server{Handler: api.NewServer(svc, broker), ReadHeaderTimeout: 10 * time.Second}

		g.Go(func() error {
			slog.Info("status api listening", "addr", ln.Addr().String(), "docs", "http://"+ln.Addr().String()+"/docs")
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status api: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("status api shutdown failed", "error", err)
			}
			return nil
		})
	}

	err = g.Wait()
	if popup != nil && !popup.Wait(popupDrainTimeout) {
		slog.Info("popup still open at shutdown; leaving it")
	}
	if err != nil {
		slog.Error("positions_watch stopped with error", "error", err)
	}
	return err
}

// buildBackends returns the requested alert backends in delivery order.
// The popup backend is also returned so shutdown can wait for an open
// dialog.
func buildBackends(cfg *config.Config) ([]alert.Backend, *alert.PopupBackend) {
	var (
		backends []alert.Backend
		popup    *alert.PopupBackend
	)
	if cfg.Alerts.Visual {
		backends = append(backends, alert.NewVisualBackend(os.Stdout))
	}
	if cfg.Alerts.Notify {
		backends = append(backends, alert.NewNotifyBackend())
	}
	if cfg.Alerts.Sound {
		backends = append(backends, alert.NewSoundBackend())
	}
	if cfg.Alerts.Popup {
		p, err := alert.NewPopupBackend(EventBus.New())
		if err != nil {
			slog.Warn("popup alerts disabled", "error", err)
		} else {
			popup = p
			backends = append(backends, p)
		}
	}
	if cfg.Alerts.Push {
		client := &http.Client{Timeout: 10 * time.Second}
		backends = append(backends, alert.NewPushBackend(client, cfg.NtfyURL, cfg.DiscordWebhook))
	}
	return backends, popup
}

func enabledMark(on bool) string {
	if on {
		return "✓ Enabled"
	}
	return "✗ Disabled"
}

func alertsLine(a config.Alerts, active []alert.Capability) string {
	type entry struct {
		on         bool
		capability alert.Capability
		name       string
	}
	entries := []entry{
		{a.Notify, alert.Notify, "Desktop Notification"},
		{a.Sound, alert.Sound, "Sound Alert"},
		{a.Popup, alert.Popup, "Popup Window"},
		{a.Push, alert.Push, "Push"},
	}

	var parts []string
	for _, e := range entries {
		if !e.on {
			continue
		}
		if slices.Contains(active, e.capability) {
			parts = append(parts, e.name+" ✓")
		} else {
			parts = append(parts, e.name+" (⚠ unavailable)")
		}
	}
	if len(parts) == 0 {
		return "None"
	}
	return strings.Join(parts, ", ")
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	// stdout carries the cycle status and record echo.
	h := slog.NewTextHandler(io.MultiWriter(os.Stderr, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
