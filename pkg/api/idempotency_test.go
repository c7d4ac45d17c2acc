package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIdempotencyStoreExpiry(t *testing.T) {
	s := NewIdempotencyStore(20 * time.Millisecond)
	s.Set("k1", http.StatusCreated, http.Header{"Content-Type": []string{"application/json"}}, []byte(`{"ok":true}`))

	cached, ok := s.Check("k1")
	require.True(t, ok)
	assert.Equal(t, http.StatusCreated, cached.StatusCode)
	assert.Equal(t, []byte(`{"ok":true}`), cached.Body)

	time.Sleep(30 * time.Millisecond)
	_, ok = s.Check("k1")
	assert.False(t, ok, "entries past their TTL never replay")

	_, ok = s.Check("never-set")
	assert.False(t, ok)
}

func TestMemoryIdempotencyStoreSweep(t *testing.T) {
	s := NewIdempotencyStore(10 * time.Millisecond)
	s.Set("old", http.StatusOK, nil, nil)

	time.Sleep(20 * time.Millisecond)
	// Force the next write to sweep.
	s.mu.Lock()
	s.lastSweep = time.Now().Add(-sweepEvery)
	s.mu.Unlock()
	s.Set("fresh", http.StatusOK, nil, nil)

	s.mu.RLock()
	_, oldKept := s.entries["old"]
	_, freshKept := s.entries["fresh"]
	s.mu.RUnlock()
	assert.False(t, oldKept, "expired entries are dropped on write")
	assert.True(t, freshKept)
}
