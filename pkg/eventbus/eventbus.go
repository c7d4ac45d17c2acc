// Package eventbus is the in-process pub/sub fabric for ledger events:
// glob-pattern subscriptions, a bounded history ring, and optional
// webhook fan-out.
package eventbus

import (
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultHistoryCap bounds the in-memory event ring.
const DefaultHistoryCap = 1000

// Event is a published message. Payload maps are shared with subscribers;
// treat them as read-only.
type Event struct {
	ID        string                 `json:"id"`
	Topic     string                 `json:"topic"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
}

// Handler consumes events. Handlers run synchronously on the publishing
// goroutine; panics are contained per handler.
type Handler func(Event)

type subscription struct {
	id      uint64
	pattern string
	handler Handler
}

// Bus is a glob-pattern publish/subscribe hub with bounded history.
type Bus struct {
	mu         sync.RWMutex
	subs       []subscription
	nextSubID  uint64
	history    []Event
	historyCap int
	logger     *slog.Logger
}

// New returns a Bus with the default history capacity.
func New() *Bus {
	return NewWithCapacity(DefaultHistoryCap)
}

// NewWithCapacity returns a Bus retaining at most cap past events.
func NewWithCapacity(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultHistoryCap
	}
	return &Bus{
		historyCap: capacity,
		logger:     slog.Default().With("component", "eventbus"),
	}
}

// Subscribe registers handler for every topic matching pattern
// ("*" and "attestation.*" style globs). The returned function cancels
// the subscription.
func (b *Bus) Subscribe(pattern string, handler Handler) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSubID++
	id := b.nextSubID
	b.subs = append(b.subs, subscription{id: id, pattern: pattern, handler: handler})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish records the event and invokes every matching handler in
// subscription order. A panicking handler is logged and skipped; it never
// prevents later handlers from running.
func (b *Bus) Publish(topic string, payload map[string]interface{}) {
	evt := Event{
		ID:        uuid.NewString(),
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	b.mu.Lock()
	b.history = append(b.history, evt)
	if len(b.history) > b.historyCap {
		b.history = b.history[len(b.history)-b.historyCap:]
	}
	matched := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if matchTopic(s.pattern, topic) {
			matched = append(matched, s.handler)
		}
	}
	b.mu.Unlock()

	for _, h := range matched {
		b.invoke(h, evt)
	}
}

func (b *Bus) invoke(h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber panicked", "topic", evt.Topic, "panic", r)
		}
	}()
	h(evt)
}

// History returns up to limit most recent events matching pattern, oldest
// first. limit <= 0 returns all retained matches.
func (b *Bus) History(pattern string, limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Event
	for _, evt := range b.history {
		if matchTopic(pattern, evt.Topic) {
			out = append(out, evt)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// matchTopic applies shell-style glob matching; a malformed pattern
// matches nothing.
func matchTopic(pattern, topic string) bool {
	if pattern == "*" || pattern == topic {
		return true
	}
	ok, err := path.Match(pattern, topic)
	return err == nil && ok
}
