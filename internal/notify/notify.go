package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Embed colors for Discord messages.
const (
	ColorProfit = 0x28a745
	ColorLoss   = 0xdc3545
)

// Send posts a plain-text message to an ntfy topic endpoint. A non-empty
// title is sent in the Title header.
func Send(ctx context.Context, client *http.Client, endpoint, title, message string) error {
	if endpoint == "" {
		return errors.New("ntfy notification failed: empty endpoint")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	if title != "" {
		req.Header.Set("Title", title)
	}

	if err := do(client, req); err != nil {
		return fmt.Errorf("ntfy notification failed: %w", err)
	}
	return nil
}

// SendDiscord posts a single embed to a Discord webhook.
func SendDiscord(ctx context.Context, client *http.Client, webhookURL, title, message string, color int) error {
	if webhookURL == "" {
		return errors.New("discord notification failed: empty webhook url")
	}

	payload := map[string]any{
		"embeds": []map[string]any{
			{
				"title":       title,
				"description": message,
				"color":       color,
				"footer":      map[string]string{"text": "positions_watch"},
				"timestamp":   time.Now().UTC().Format(time.RFC3339),
			},
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if err := do(client, req); err != nil {
		return fmt.Errorf("discord notification failed: %w", err)
	}
	return nil
}

func do(client *http.Client, req *http.Request) error {
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status=%d", resp.StatusCode)
	}
	return nil
}
