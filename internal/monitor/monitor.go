// Package monitor runs the poll loop: load the page, locate the positions
// section, compare it with the previous observation and hand init and
// change records to the sinks.
package monitor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dgnsrekt/positions_watch/internal/positions"
	"github.com/dgnsrekt/positions_watch/internal/relay"
	"github.com/dgnsrekt/positions_watch/internal/snapshot"
	"github.com/dgnsrekt/positions_watch/internal/storage"
)

const bannerRule = "============================================================"

// Options configures a Monitor.
type Options struct {
	TargetURL       string
	Model           string
	Interval        time.Duration
	RetryBackoff    time.Duration
	DebugScreenshot string
	// Banner lines are printed once after the first successful load.
	Banner []string
	// Console receives the one-line cycle status and the record echo.
	Console io.Writer
	Sinks   []Sink
	Board   *Board
	// Status, when set, receives a status event after every cycle.
	Status *relay.Relay
}

// Monitor owns the poll loop and its State.
type Monitor struct {
	page       Page
	opts       Options
	state      *State
	debugSaved bool
	now        func() time.Time
}

// New creates a monitor over page.
func New(page Page, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 30 * time.Second
	}
	if opts.Console == nil {
		opts.Console = os.Stdout
	}
	if opts.Board == nil {
		opts.Board = NewBoard(Status{TargetURL: opts.TargetURL, Model: opts.Model, StartedAt: time.Now().UTC()})
	}
	return &Monitor{page: page, opts: opts, state: NewState(), now: time.Now}
}

// Board returns the status board the loop writes to.
func (m *Monitor) Board() *Board { return m.opts.Board }

// Run blocks until ctx is cancelled. Load and reload failures are retried
// or skipped, never returned.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.initialLoad(ctx); err != nil {
		return m.stopped(ctx, err)
	}
	m.banner()
	m.Observe(ctx)

	timer := time.NewTimer(m.opts.Interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return m.stopped(ctx, ctx.Err())
		case <-timer.C:
		}

		if err := m.refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return m.stopped(ctx, err)
			}
			m.printf("Navigation retry failed; skipping this cycle.\n")
			slog.Warn("monitor cycle skipped", "error", err)
			m.opts.Board.update(func(s *Status) {
				s.Cycles++
				s.SkippedCycles++
				s.LastError = err.Error()
			})
			m.publishStatus()
		} else {
			m.Observe(ctx)
		}
		timer.Reset(m.opts.Interval)
	}
}

func (m *Monitor) stopped(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		m.printf("Stopped by user.\n")
		return nil
	}
	return err
}

func (m *Monitor) constantBackoff() backoff.RetryOption {
	return backoff.WithBackOff(backoff.NewConstantBackOff(m.opts.RetryBackoff))
}

// initialLoad navigates to the target until it succeeds or ctx ends.
func (m *Monitor) initialLoad(ctx context.Context) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, m.page.Load(ctx)
	},
		m.constantBackoff(),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			m.printf("Initial load failed, retrying in %s...\n", next)
			slog.Warn("initial load failed", "url", m.opts.TargetURL, "error", err, "retry_in", next)
			m.opts.Board.update(func(s *Status) { s.LastError = err.Error() })
		}),
	)
	return err
}

// refresh reloads the page; on failure it waits once and navigates to the
// target from scratch.
func (m *Monitor) refresh(ctx context.Context) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if attempt == 1 {
			return struct{}{}, m.page.Reload(ctx)
		}
		return struct{}{}, m.page.Load(ctx)
	},
		m.constantBackoff(),
		backoff.WithMaxTries(2),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			m.printf("Reload failed, retrying in %s...\n", next)
			slog.Warn("reload failed", "error", err, "retry_in", next)
		}),
	)
	return err
}

func (m *Monitor) banner() {
	var b strings.Builder
	b.WriteString(bannerRule + "\n")
	b.WriteString("🚀 Positions Monitor Started\n")
	b.WriteString(bannerRule + "\n")
	fmt.Fprintf(&b, "Target URL: %s\n", m.opts.TargetURL)
	for _, line := range m.opts.Banner {
		b.WriteString(line + "\n")
	}
	b.WriteString(bannerRule + "\n\n")
	m.printf("%s", b.String())
}

// Observe runs one locate-and-compare step against the loaded page.
func (m *Monitor) Observe(ctx context.Context) {
	res := m.page.Locate(ctx)
	obs := NewObservation(m.now(), res.Text)

	if (obs.RawText == "" || res.Degraded()) && !m.debugSaved {
		m.saveDebugScreenshot(ctx, string(res.Source))
	}

	m.opts.Board.update(func(s *Status) {
		s.Cycles++
		s.LastPollAt = obs.Timestamp
		s.LastSource = string(res.Source)
		s.LastError = ""
	})

	if m.state.Phase() == Priming {
		m.state.Prime(obs)
		list := positions.Parse(obs.RawText)
		m.printf("Initialized.\n")
		m.emit(ctx, snapshot.KindInit, obs, nil, list, res.Ref)
		m.opts.Board.update(func(s *Status) {
			s.Phase = Steady
			s.LastText = obs.RawText
			s.AggregatePnL = obs.AggregatePnL
			s.Positions = list
		})
		m.publishStatus()
		return
	}

	ev, changed := m.state.Compare(obs)
	if !changed {
		m.printf("no change\n")
		m.opts.Board.update(func(s *Status) { s.Heartbeats++ })
		m.publishStatus()
		return
	}

	m.printf("⚡ Positions updated!%s\n", ev.DeltaMessage())
	list := positions.Parse(obs.RawText)
	m.emit(ctx, snapshot.KindChange, obs, &ev, list, res.Ref)
	m.state.Apply(obs)

	last, _ := m.state.Last()
	m.opts.Board.update(func(s *Status) {
		s.Changes++
		s.LastChangeAt = obs.Timestamp
		s.LastText = last.RawText
		s.AggregatePnL = last.AggregatePnL
		s.Positions = list
	})
	m.publishStatus()
}

func (m *Monitor) emit(ctx context.Context, kind string, obs Observation, ev *ChangeEvent, list []positions.Position, selector string) {
	rec := storage.NewRecord(obs.Timestamp, m.opts.Model, obs.RawText)
	if line, err := rec.Marshal(); err == nil {
		m.printf("%s", line)
	}

	e := Emission{
		Kind:        kind,
		Record:      rec,
		Observation: obs,
		Change:      ev,
		Positions:   list,
		Selector:    selector,
	}
	for _, s := range m.opts.Sinks {
		if err := s.Emit(ctx, e); err != nil {
			slog.Warn("sink failed", "sink", s.Name(), "kind", kind, "error", err)
		}
	}
}

func (m *Monitor) saveDebugScreenshot(ctx context.Context, source string) {
	m.debugSaved = true
	slog.Warn("positions section not found; extraction degraded", "source", source)
	if m.opts.DebugScreenshot == "" {
		return
	}
	img, err := m.page.CaptureFullPage(ctx)
	if err == nil {
		if dir := filepath.Dir(m.opts.DebugScreenshot); dir != "." {
			err = os.MkdirAll(dir, 0o755)
		}
	}
	if err == nil {
		err = os.WriteFile(m.opts.DebugScreenshot, img, 0o644)
	}
	if err != nil {
		slog.Warn("debug screenshot failed", "path", m.opts.DebugScreenshot, "error", err)
		return
	}
	m.printf("⚠ No positions section detected; saved %s\n", m.opts.DebugScreenshot)
}

func (m *Monitor) publishStatus() {
	if m.opts.Status == nil {
		return
	}
	if err := m.opts.Status.Publish(relay.FeedStatus, m.opts.Board.Load()); err != nil {
		slog.Debug("status publish failed", "error", err)
	}
}

func (m *Monitor) printf(format string, args ...any) {
	if _, err := fmt.Fprintf(m.opts.Console, format, args...); err != nil {
		slog.Debug("console write failed", "error", err)
	}
}
