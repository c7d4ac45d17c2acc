package eventbus

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// DefaultWebhookTimeout bounds each outbound delivery attempt.
const DefaultWebhookTimeout = 10 * time.Second

// WebhookDispatcher forwards matching events to external HTTP endpoints.
// Delivery is fire-and-forget: each event is posted on its own goroutine
// with a deadline, and failures are dropped after a debug log.
type WebhookDispatcher struct {
	bus     *Bus
	client  *http.Client
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	cancels []func()
	wg      sync.WaitGroup
}

// NewWebhookDispatcher returns a dispatcher over bus. client may be nil
// to use a default client with DefaultWebhookTimeout.
func NewWebhookDispatcher(bus *Bus, client *http.Client) *WebhookDispatcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultWebhookTimeout}
	}
	return &WebhookDispatcher{
		bus:     bus,
		client:  client,
		logger:  slog.Default().With("component", "webhooks"),
		timeout: DefaultWebhookTimeout,
	}
}

// Register forwards events matching pattern to url as JSON POSTs.
func (d *WebhookDispatcher) Register(pattern, url string) {
	cancel := d.bus.Subscribe(pattern, func(evt Event) {
		d.wg.Add(1)
		go d.deliver(url, evt)
	})
	d.mu.Lock()
	d.cancels = append(d.cancels, cancel)
	d.mu.Unlock()
}

func (d *WebhookDispatcher) deliver(url string, evt Event) {
	defer d.wg.Done()

	body, err := json.Marshal(evt)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Isnad-Event", evt.Topic)

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Debug("webhook delivery failed", "url", url, "topic", evt.Topic, "error", err)
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 400 {
		d.logger.Debug("webhook rejected", "url", url, "topic", evt.Topic, "status", resp.StatusCode)
	}
}

// Close cancels all registrations and waits for in-flight deliveries.
func (d *WebhookDispatcher) Close() {
	d.mu.Lock()
	cancels := d.cancels
	d.cancels = nil
	d.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	d.wg.Wait()
}
