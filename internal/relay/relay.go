package relay

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Feed names published by the monitor.
const (
	FeedInit   = "init"
	FeedChange = "change"
	FeedStatus = "status"
)

// Relay encodes monitor events as JSON and publishes them to a Broker.
type Relay struct {
	broker *Broker
}

// NewRelay creates a relay publishing to broker.
func NewRelay(broker *Broker) *Relay {
	return &Relay{broker: broker}
}

// Broker returns the underlying broker for handlers.
func (r *Relay) Broker() *Broker { return r.broker }

// Publish marshals v and fans it out on feed. With no subscribers and
// nothing to retain the event is dropped without encoding.
func (r *Relay) Publish(feed string, v any) error {
	if r.broker.ClientCount() == 0 && !r.broker.Retains(feed) {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("relay: encode %s event: %w", feed, err)
	}
	r.broker.Publish(Event{Feed: feed, Payload: string(data)})
	slog.Debug("relay: published", "feed", feed, "bytes", len(data), "clients", r.broker.ClientCount())
	return nil
}
