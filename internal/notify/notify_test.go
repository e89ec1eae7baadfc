package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func okResponse() *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("ok")),
		Header:     make(http.Header),
	}
}

func TestSendPostsMessage(t *testing.T) {
	ctx := context.Background()
	const message = "Δ Unrealized P&L: +163.70"

	var receivedMethod string
	var receivedPath string
	var receivedBody string
	var receivedContentType string
	var receivedTitle string

	client := &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			receivedMethod = r.Method
			receivedPath = r.URL.Path
			receivedContentType = r.Header.Get("Content-Type")
			receivedTitle = r.Header.Get("Title")
			rawBody, err := io.ReadAll(r.Body)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			receivedBody = string(rawBody)
			return okResponse(), nil
		}),
	}

	if err := Send(ctx, client, "http://example.com/positions", "Positions Updated", message); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if got, want := receivedMethod, http.MethodPost; got != want {
		t.Fatalf("method = %q; want %q", got, want)
	}
	if got, want := receivedPath, "/positions"; got != want {
		t.Fatalf("path = %q; want %q", got, want)
	}
	if got, want := receivedContentType, "text/plain"; got != want {
		t.Fatalf("content-type = %q; want %q", got, want)
	}
	if got, want := receivedTitle, "Positions Updated"; got != want {
		t.Fatalf("title = %q; want %q", got, want)
	}
	if got, want := receivedBody, message; got != want {
		t.Fatalf("body = %q; want %q", got, want)
	}
}

func TestSendReturnsErrorForServerError(t *testing.T) {
	ctx := context.Background()

	client := &http.Client{
		Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusInternalServerError,
				Body:       io.NopCloser(strings.NewReader("server failure")),
				Header:     make(http.Header),
			}, nil
		}),
	}

	err := Send(ctx, client, "http://example.com/positions", "", "x")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "ntfy notification failed") {
		t.Fatalf("error = %q; want to contain %q", err, "ntfy notification failed")
	}
}

func TestSendDisallowsMissingEndpoint(t *testing.T) {
	ctx := context.Background()
	err := Send(ctx, http.DefaultClient, "", "", "x")
	if err == nil {
		t.Fatal("expected error for missing endpoint")
	}
}

func TestSendDiscordPostsEmbed(t *testing.T) {
	ctx := context.Background()

	var body struct {
		Embeds []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Color       int    `json:"color"`
		} `json:"embeds"`
	}
	var contentType string

	client := &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			contentType = r.Header.Get("Content-Type")
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			return &http.Response{
				StatusCode: http.StatusNoContent,
				Body:       io.NopCloser(strings.NewReader("")),
				Header:     make(http.Header),
			}, nil
		}),
	}

	if err := SendDiscord(ctx, client, "http://example.com/api/webhooks/1/abc", "Positions Updated", "BTC Long", ColorLoss); err != nil {
		t.Fatalf("SendDiscord() error = %v", err)
	}
	if got, want := contentType, "application/json"; got != want {
		t.Fatalf("content-type = %q; want %q", got, want)
	}
	if len(body.Embeds) != 1 {
		t.Fatalf("embeds = %d; want 1", len(body.Embeds))
	}
	if got, want := body.Embeds[0].Title, "Positions Updated"; got != want {
		t.Fatalf("title = %q; want %q", got, want)
	}
	if got, want := body.Embeds[0].Description, "BTC Long"; got != want {
		t.Fatalf("description = %q; want %q", got, want)
	}
	if got, want := body.Embeds[0].Color, ColorLoss; got != want {
		t.Fatalf("color = %d; want %d", got, want)
	}
}

func TestSendDiscordReturnsErrorForRejectedWebhook(t *testing.T) {
	client := &http.Client{
		Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusBadRequest,
				Body:       io.NopCloser(strings.NewReader("bad")),
				Header:     make(http.Header),
			}, nil
		}),
	}

	err := SendDiscord(context.Background(), client, "http://example.com/hook", "t", "m", ColorProfit)
	if err == nil || !strings.Contains(err.Error(), "discord notification failed") {
		t.Fatalf("error = %v; want discord notification failure", err)
	}
}
