package locator

import (
	"context"
	"log/slog"
)

// DefaultMarker is the heading text of the monitored section.
const DefaultMarker = "ACTIVE POSITIONS"

// Evaluator runs a wrapped script in the page and decodes its data payload.
type Evaluator interface {
	Evaluate(ctx context.Context, script string, out any) error
}

// Result is the located section text and, when an element was marked,
// the selector that addresses it.
type Result struct {
	Text   string
	Ref    string
	Source Source
}

// Degraded reports whether the section itself could not be located.
func (r Result) Degraded() bool {
	return r.Source == SourceNone || r.Source == SourcePage
}

// Locator finds the active positions section on a rendered page.
type Locator struct {
	Marker     string
	MinTextLen int
}

// New returns a Locator with the default marker and threshold.
func New() *Locator {
	return &Locator{Marker: DefaultMarker, MinTextLen: DefaultMinTextLen}
}

type textData struct {
	Text string `json:"text"`
}

// Locate never fails. Snapshot or marking errors fall back to the whole
// page text; if that fails too the result is empty.
func (l *Locator) Locate(ctx context.Context, ev Evaluator) Result {
	var root Node
	if err := ev.Evaluate(ctx, snapshotScript(l.marker()), &root); err != nil {
		slog.Warn("section snapshot failed, falling back to page text", "error", err)
		return l.pageText(ctx, ev)
	}

	node, source := Cascade(&root, l.minTextLen())
	if node == nil {
		return Result{Source: SourceNone}
	}

	var marked textData
	if err := ev.Evaluate(ctx, markScript(node.Path()), &marked); err != nil {
		slog.Warn("section mark failed, falling back to page text", "error", err, "source", source)
		return l.pageText(ctx, ev)
	}

	slog.Debug("section located", "source", source, "tag", node.Tag, "chars", len(marked.Text))
	return Result{Text: marked.Text, Ref: SectionSelector, Source: source}
}

func (l *Locator) pageText(ctx context.Context, ev Evaluator) Result {
	var page textData
	if err := ev.Evaluate(ctx, pageTextScript(), &page); err != nil {
		slog.Warn("page text fallback failed", "error", err)
		return Result{Source: SourceNone}
	}
	return Result{Text: page.Text, Source: SourcePage}
}

func (l *Locator) marker() string {
	if l.Marker == "" {
		return DefaultMarker
	}
	return l.Marker
}

func (l *Locator) minTextLen() int {
	if l.MinTextLen <= 0 {
		return DefaultMinTextLen
	}
	return l.MinTextLen
}
