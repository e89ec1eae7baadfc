package alert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/charmbracelet/lipgloss"
	"github.com/dgnsrekt/positions_watch/internal/notify"
	"github.com/gen2brain/beeep"
	"github.com/ncruces/zenity"
)

const popupTopic = "alert:popup"

// desktopProbe reports whether a graphical session can show notifications.
func desktopProbe(linuxTools ...string) func() error {
	return func() error {
		switch runtime.GOOS {
		case "darwin", "windows":
			return nil
		}
		if os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
			return errors.New("no graphical session (DISPLAY and WAYLAND_DISPLAY unset)")
		}
		for _, tool := range linuxTools {
			if _, err := exec.LookPath(tool); err == nil {
				return nil
			}
		}
		if len(linuxTools) == 0 {
			return nil
		}
		return fmt.Errorf("none of %v found in PATH", linuxTools)
	}
}

// NotifyBackend shows a desktop notification.
type NotifyBackend struct {
	probe func() error
	send  func(title, message string) error
}

// NewNotifyBackend uses the platform notification service.
func NewNotifyBackend() *NotifyBackend {
	return &NotifyBackend{
		probe: desktopProbe("notify-send", "gdbus", "dbus-send"),
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
}

func (b *NotifyBackend) Capability() Capability { return Notify }
func (b *NotifyBackend) Available() error       { return b.probe() }

func (b *NotifyBackend) Deliver(_ context.Context, p Payload) error {
	body := p.Message
	if s := p.Summary(4); s != "" {
		body += "\n" + s
	}
	return b.send(p.Title, body)
}

// SoundBackend plays a short beep.
type SoundBackend struct {
	probe func() error
	beep  func() error
}

// NewSoundBackend beeps through the platform speaker or sound service.
func NewSoundBackend() *SoundBackend {
	return &SoundBackend{
		probe: func() error {
			if runtime.GOOS != "linux" {
				return nil
			}
			for _, tool := range []string{"paplay", "aplay", "beep"} {
				if _, err := exec.LookPath(tool); err == nil {
					return nil
				}
			}
			if _, err := os.Stat("/dev/console"); err == nil {
				return nil
			}
			return errors.New("no sound player or console speaker")
		},
		beep: func() error {
			return beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration)
		},
	}
}

func (b *SoundBackend) Capability() Capability { return Sound }
func (b *SoundBackend) Available() error       { return b.probe() }

func (b *SoundBackend) Deliver(context.Context, Payload) error { return b.beep() }

// PopupBackend shows a modal dialog on an async EventBus subscriber so the
// poll loop never waits for the user to dismiss it.
type PopupBackend struct {
	probe func() error
	bus   EventBus.Bus

	mu      sync.Mutex
	lastErr error
}

// NewPopupBackend subscribes the dialog worker on bus.
func NewPopupBackend(bus EventBus.Bus) (*PopupBackend, error) {
	return newPopupBackend(bus, desktopProbe("zenity", "qarma", "matedialog", "kdialog"), func(p Payload) error {
		return zenity.Info(p.Message+"\n\n"+p.Details, zenity.Title(p.Title))
	})
}

func newPopupBackend(bus EventBus.Bus, probe func() error, show func(Payload) error) (*PopupBackend, error) {
	b := &PopupBackend{probe: probe, bus: bus}
	handler := func(p Payload) {
		err := show(p)
		b.mu.Lock()
		b.lastErr = err
		b.mu.Unlock()
	}
	if err := bus.SubscribeAsync(popupTopic, handler, false); err != nil {
		return nil, fmt.Errorf("popup subscribe: %w", err)
	}
	return b, nil
}

func (b *PopupBackend) Capability() Capability { return Popup }
func (b *PopupBackend) Available() error       { return b.probe() }

// Deliver queues the dialog. A failure of the previous dialog is returned
// here, since the worker has no caller of its own to report to.
func (b *PopupBackend) Deliver(_ context.Context, p Payload) error {
	b.mu.Lock()
	prev := b.lastErr
	b.lastErr = nil
	b.mu.Unlock()

	b.bus.Publish(popupTopic, p.clone())
	if prev != nil && !errors.Is(prev, zenity.ErrCanceled) {
		return fmt.Errorf("previous popup: %w", prev)
	}
	return nil
}

// Wait blocks until queued dialogs have been dismissed or timeout passes,
// and reports whether the queue drained. A dialog left open is abandoned.
func (b *PopupBackend) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		b.bus.WaitAsync()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

var (
	visualFrame = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	visualTitle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	visualGain = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#28a745")).
			Bold(true)

	visualLoss = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#dc3545")).
			Bold(true)
)

// VisualBackend draws a framed summary on the terminal.
type VisualBackend struct {
	w io.Writer
}

// NewVisualBackend writes to w, or stdout when nil.
func NewVisualBackend(w io.Writer) *VisualBackend {
	if w == nil {
		w = os.Stdout
	}
	return &VisualBackend{w: w}
}

func (b *VisualBackend) Capability() Capability { return Visual }
func (b *VisualBackend) Available() error       { return nil }

func (b *VisualBackend) Deliver(_ context.Context, p Payload) error {
	msg := visualGain.Render(p.Message)
	if p.Delta.Valid && p.Delta.Decimal.IsNegative() {
		msg = visualLoss.Render(p.Message)
	}
	box := visualFrame.Render(lipgloss.JoinVertical(lipgloss.Left,
		visualTitle.Render(p.Title),
		msg,
		"",
		p.Details,
	))
	_, err := fmt.Fprintln(b.w, box)
	return err
}

// PushBackend forwards alerts to ntfy and a Discord webhook.
type PushBackend struct {
	client  *http.Client
	ntfyURL string
	discord string
}

// NewPushBackend sends through whichever endpoints are non-empty.
func NewPushBackend(client *http.Client, ntfyURL, discordWebhook string) *PushBackend {
	return &PushBackend{client: client, ntfyURL: ntfyURL, discord: discordWebhook}
}

func (b *PushBackend) Capability() Capability { return Push }

func (b *PushBackend) Available() error {
	if b.ntfyURL == "" && b.discord == "" {
		return errors.New("no ntfy url or discord webhook configured")
	}
	return nil
}

func (b *PushBackend) Deliver(ctx context.Context, p Payload) error {
	var errs []error
	if b.ntfyURL != "" {
		body := p.Message + "\n\n" + p.Details
		if err := notify.Send(ctx, b.client, b.ntfyURL, p.Title, body); err != nil {
			errs = append(errs, err)
		}
	}
	if b.discord != "" {
		color := notify.ColorProfit
		if p.Delta.Valid && p.Delta.Decimal.IsNegative() {
			color = notify.ColorLoss
		}
		desc := p.Message + "\n```\n" + p.Details + "\n```"
		if err := notify.SendDiscord(ctx, b.client, b.discord, p.Title, desc, color); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
