package monitor

import (
	"context"

	"github.com/dgnsrekt/positions_watch/internal/cdp"
	"github.com/dgnsrekt/positions_watch/internal/locator"
)

// Page is the browser surface the loop drives.
type Page interface {
	Load(ctx context.Context) error
	Reload(ctx context.Context) error
	Locate(ctx context.Context) locator.Result
	Capture(ctx context.Context, selector string) (img []byte, fullPage bool, err error)
	CaptureFullPage(ctx context.Context) ([]byte, error)
}

// BrowserPage is a Page over a CDP session.
type BrowserPage struct {
	*cdp.Session
	loc *locator.Locator
}

// NewBrowserPage pairs a connected session with a locator.
func NewBrowserPage(s *cdp.Session, loc *locator.Locator) *BrowserPage {
	return &BrowserPage{Session: s, loc: loc}
}

// Locate runs the section locator against the live page.
func (p *BrowserPage) Locate(ctx context.Context) locator.Result {
	return p.loc.Locate(ctx, p.Session)
}
