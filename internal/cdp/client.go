package cdp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Options configure a page Session.
type Options struct {
	CDPURL         string
	TargetURL      string
	UserAgent      string
	Locale         string
	ViewportWidth  int
	ViewportHeight int
	ExtraHeaders   map[string]string
	LoadTimeout    time.Duration
	SettleDelay    time.Duration
	EvalTimeout    time.Duration
	CaptureTimeout time.Duration
}

// Session drives one dedicated tab in a running Chromium.
type Session struct {
	opts Options

	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	mu        sync.Mutex
	mainFrame string
	idle      chan struct{}
}

// NewSession returns an unconnected Session.
func NewSession(opts Options) *Session {
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = 60 * time.Second
	}
	if opts.EvalTimeout <= 0 {
		opts.EvalTimeout = 15 * time.Second
	}
	if opts.CaptureTimeout <= 0 {
		opts.CaptureTimeout = 20 * time.Second
	}
	return &Session{opts: opts, idle: make(chan struct{}, 1)}
}

// Connect attaches to the browser, opens a tab and applies emulation.
func (s *Session) Connect(ctx context.Context) error {
	slog.Info("connecting to chromium", "url", s.opts.CDPURL)

	s.allocCtx, s.allocCancel = chromedp.NewRemoteAllocator(context.Background(), s.opts.CDPURL)
	s.tabCtx, s.tabCancel = chromedp.NewContext(s.allocCtx)

	// The first Run binds the new tab to tabCtx; it must not carry a deadline.
	if err := chromedp.Run(s.tabCtx); err != nil {
		s.Close()
		return NewError(CodeCDPUnavailable, "failed to open browser tab", err)
	}

	headers := network.Headers{}
	for k, v := range s.opts.ExtraHeaders {
		headers[k] = v
	}

	actions := []chromedp.Action{
		network.Enable(),
		network.SetCacheDisabled(true),
		network.SetExtraHTTPHeaders(headers),
		page.Enable(),
		page.SetLifecycleEventsEnabled(true),
	}
	if s.opts.UserAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(s.opts.UserAgent).WithAcceptLanguage(s.opts.Locale))
	}
	if s.opts.Locale != "" {
		actions = append(actions, emulation.SetLocaleOverride().WithLocale(s.opts.Locale))
	}
	if s.opts.ViewportWidth > 0 && s.opts.ViewportHeight > 0 {
		actions = append(actions, chromedp.EmulateViewport(int64(s.opts.ViewportWidth), int64(s.opts.ViewportHeight)))
	}

	if err := s.run(ctx, s.opts.LoadTimeout, actions...); err != nil {
		s.Close()
		return NewError(CodeCDPUnavailable, "failed to prepare browser tab", err)
	}

	chromedp.ListenTarget(s.tabCtx, s.onEvent)
	slog.Info("browser tab ready", "viewport", fmt.Sprintf("%dx%d", s.opts.ViewportWidth, s.opts.ViewportHeight))
	return nil
}

func (s *Session) onEvent(ev any) {
	switch e := ev.(type) {
	case *page.EventFrameNavigated:
		if e.Frame.ParentID == "" {
			s.mu.Lock()
			s.mainFrame = string(e.Frame.ID)
			s.mu.Unlock()
			slog.Debug("tab navigated", "url", truncateURL(e.Frame.URL))
		}
	case *page.EventLifecycleEvent:
		s.mu.Lock()
		main := s.mainFrame == "" || s.mainFrame == string(e.FrameID)
		s.mu.Unlock()
		if !main {
			return
		}
		switch e.Name {
		case "init":
			s.drainIdle()
		case "networkIdle":
			select {
			case s.idle <- struct{}{}:
			default:
			}
		}
	}
}

func (s *Session) drainIdle() {
	select {
	case <-s.idle:
	default:
	}
}

// Load navigates to the target URL and waits for the page to settle.
func (s *Session) Load(ctx context.Context) error {
	return s.load(ctx, "navigate", chromedp.Navigate(s.opts.TargetURL))
}

// Reload reloads the current page and waits for it to settle.
func (s *Session) Reload(ctx context.Context) error {
	return s.load(ctx, "reload", chromedp.Reload())
}

func (s *Session) load(ctx context.Context, op string, action chromedp.Action) error {
	if s.tabCtx == nil {
		return NewError(CodeCDPUnavailable, "session not connected", nil)
	}
	s.drainIdle()

	loadCtx, cancel := context.WithTimeout(s.tabCtx, s.opts.LoadTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(loadCtx, action); err != nil {
		return s.loadError(ctx, loadCtx, op, err)
	}

	select {
	case <-s.idle:
	case <-loadCtx.Done():
		return s.loadError(ctx, loadCtx, op, loadCtx.Err())
	}

	if s.opts.SettleDelay > 0 {
		select {
		case <-time.After(s.opts.SettleDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	slog.Debug("page settled", "op", op)
	return nil
}

func (s *Session) loadError(ctx, loadCtx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(loadCtx.Err(), context.DeadlineExceeded) {
		return NewError(CodeNavigationTimeout, op+" did not settle within "+s.opts.LoadTimeout.String(), err)
	}
	return NewError(CodeNavigation, op+" failed", err)
}

// Evaluate runs a WrapScript-built expression and decodes its data into out.
func (s *Session) Evaluate(ctx context.Context, script string, out any) error {
	if s.tabCtx == nil {
		return NewError(CodeCDPUnavailable, "session not connected", nil)
	}
	var raw string
	if err := s.run(ctx, s.opts.EvalTimeout, chromedp.Evaluate(script, &raw)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return NewError(CodeEvalTimeout, "evaluation timed out", err)
		}
		return NewError(CodeEvalFailure, "evaluation failed", err)
	}
	return decodeEnvelope(raw, out)
}

// Capture screenshots the element matched by selector. With an empty
// selector, or when the element capture fails, the full page is captured.
// fullPage reports which of the two was returned.
func (s *Session) Capture(ctx context.Context, selector string) (img []byte, fullPage bool, err error) {
	if selector != "" {
		var buf []byte
		err := s.run(ctx, s.opts.CaptureTimeout, chromedp.Screenshot(selector, &buf, chromedp.ByQuery))
		if err = sectionCaptureError(err, buf); err == nil {
			return buf, false, nil
		}
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		slog.Warn("section screenshot failed, capturing full page", "selector", selector, "error", err)
	}
	img, err = s.CaptureFullPage(ctx)
	return img, true, err
}

var errEmptyScreenshot = errors.New("element screenshot returned no image data")

// sectionCaptureError returns the reason an element screenshot cannot be
// used, or nil when buf holds an image.
func sectionCaptureError(err error, buf []byte) error {
	if err != nil {
		return err
	}
	if len(buf) == 0 {
		return errEmptyScreenshot
	}
	return nil
}

// CaptureFullPage screenshots the whole scrollable page as PNG.
func (s *Session) CaptureFullPage(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, s.opts.CaptureTimeout, chromedp.FullScreenshot(&buf, 100)); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NewError(CodeCaptureFailure, "full page screenshot failed", err)
	}
	return buf, nil
}

func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if s.tabCtx == nil {
		return NewError(CodeCDPUnavailable, "session not connected", nil)
	}
	runCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// Close releases the tab and the allocator.
func (s *Session) Close() {
	if s.tabCancel != nil {
		s.tabCancel()
		s.tabCancel = nil
	}
	if s.allocCancel != nil {
		s.allocCancel()
		s.allocCancel = nil
	}
	s.tabCtx = nil
	slog.Info("browser session closed")
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
