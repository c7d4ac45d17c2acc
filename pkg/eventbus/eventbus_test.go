package eventbus

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobSubscriptions(t *testing.T) {
	bus := New()

	var attestation, all, revocation int
	bus.Subscribe("attestation.*", func(Event) { attestation++ })
	bus.Subscribe("*", func(Event) { all++ })
	bus.Subscribe("revocation.added", func(Event) { revocation++ })

	bus.Publish("attestation.added", nil)
	bus.Publish("attestation.verified", nil)
	bus.Publish("revocation.added", nil)

	assert.Equal(t, 2, attestation)
	assert.Equal(t, 3, all)
	assert.Equal(t, 1, revocation)
}

func TestUnsubscribe(t *testing.T) {
	bus := New()

	var n int
	cancel := bus.Subscribe("*", func(Event) { n++ })
	bus.Publish("x", nil)
	cancel()
	bus.Publish("x", nil)

	assert.Equal(t, 1, n)
}

func TestPanickingSubscriberDoesNotBlockOthers(t *testing.T) {
	bus := New()

	var survived bool
	bus.Subscribe("*", func(Event) { panic("bad subscriber") })
	bus.Subscribe("*", func(Event) { survived = true })

	assert.NotPanics(t, func() { bus.Publish("x", nil) })
	assert.True(t, survived)
}

func TestHistoryRing(t *testing.T) {
	bus := NewWithCapacity(3)
	for _, topic := range []string{"a", "b", "c", "d"} {
		bus.Publish(topic, nil)
	}

	events := bus.History("*", 0)
	require.Len(t, events, 3, "ring drops the oldest entry")
	assert.Equal(t, "b", events[0].Topic)
	assert.Equal(t, "d", events[2].Topic)

	assert.Len(t, bus.History("*", 2), 2)
	assert.Len(t, bus.History("c", 0), 1)
	assert.Empty(t, bus.History("a", 0), "evicted events are gone")
}

func TestEventsCarryIDsAndTimestamps(t *testing.T) {
	bus := New()
	var got Event
	bus.Subscribe("*", func(e Event) { got = e })
	bus.Publish("attestation.added", map[string]interface{}{"subject": "agent:x"})

	assert.NotEmpty(t, got.ID)
	assert.False(t, got.Timestamp.IsZero())
	assert.Equal(t, "agent:x", got.Payload["subject"])
}

func TestWebhookDelivery(t *testing.T) {
	var mu sync.Mutex
	var received []Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&evt))
		assert.Equal(t, evt.Topic, r.Header.Get("X-Isnad-Event"))
		mu.Lock()
		received = append(received, evt)
		mu.Unlock()
	}))
	defer srv.Close()

	bus := New()
	d := NewWebhookDispatcher(bus, srv.Client())
	d.Register("attestation.*", srv.URL)

	bus.Publish("attestation.added", map[string]interface{}{"subject": "agent:x"})
	bus.Publish("revocation.added", nil)
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1, "only matching topics are forwarded")
	assert.Equal(t, "attestation.added", received[0].Topic)
}

func TestWebhookFailureIsSilent(t *testing.T) {
	bus := New()
	d := NewWebhookDispatcher(bus, &http.Client{Timeout: 100 * time.Millisecond})
	d.Register("*", "http://127.0.0.1:1/unreachable")

	assert.NotPanics(t, func() {
		bus.Publish("x", nil)
		d.Close()
	})
}
