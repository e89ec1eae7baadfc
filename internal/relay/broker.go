package relay

import (
	"slices"
	"sync"
	"sync/atomic"
)

const subscriberBufSize = 256

// Event is one published feed message. Seq increases by one per Publish
// across all feeds.
type Event struct {
	Seq     int64
	Feed    string
	Payload string
}

// Broker fans out events to SSE and WebSocket subscribers. The latest
// event of a retained feed is replayed to every new subscriber, so a
// client that connects between changes still sees the current positions.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	nextID      atomic.Int64
	seq         int64
	retain      []string
	latest      *Event
	dropped     atomic.Int64
}

// NewBroker creates a broker that retains the most recent event published
// on any of retainFeeds.
func NewBroker(retainFeeds ...string) *Broker {
	return &Broker{
		subscribers: make(map[int64]chan Event),
		retain:      retainFeeds,
	}
}

// Subscribe registers a new client. Returns the subscriber ID and a channel
// to receive events on. The channel is buffered; slow consumers will have
// events dropped.
func (b *Broker) Subscribe() (int64, <-chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	if b.latest != nil {
		ch <- *b.latest
	}
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish stamps evt with the next sequence number and sends it to all
// subscribers. Non-blocking: slow clients have events dropped.
func (b *Broker) Publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	evt.Seq = b.seq
	if slices.Contains(b.retain, evt.Feed) {
		retained := evt
		b.latest = &retained
	}
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// ClientCount returns the number of active subscribers.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Retains reports whether events on feed are replayed to new subscribers.
func (b *Broker) Retains(feed string) bool {
	return slices.Contains(b.retain, feed)
}

// Dropped returns how many deliveries were skipped for full subscribers.
func (b *Broker) Dropped() int64 {
	return b.dropped.Load()
}
