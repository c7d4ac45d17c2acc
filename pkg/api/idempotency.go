package api

import (
	"bytes"
	"net/http"
	"sync"
	"time"
)

// cachedResponse is a completed response held for replay. Replays are
// byte-for-byte: same status, same headers, same body.
type cachedResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	CachedAt   time.Time
}

// IdempotencyStorer is the replay cache behind IdempotencyMiddleware.
// MemoryIdempotencyStore serves a single node; RedisIdempotencyStore
// shares keys across a fleet.
type IdempotencyStorer interface {
	Check(key string) (*cachedResponse, bool)
	Set(key string, statusCode int, headers http.Header, body []byte)
}

// MemoryIdempotencyStore keeps replayable responses in process memory.
// Entries expire after the TTL; expired entries are swept lazily on
// writes, so the store needs no background goroutine.
type MemoryIdempotencyStore struct {
	mu        sync.RWMutex
	entries   map[string]*cachedResponse
	ttl       time.Duration
	lastSweep time.Time
}

const sweepEvery = 5 * time.Minute

// NewIdempotencyStore returns an in-memory store whose entries live for
// ttl after caching.
func NewIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		entries:   make(map[string]*cachedResponse),
		ttl:       ttl,
		lastSweep: time.Now(),
	}
}

// Check returns the cached response for key, if one exists and has not
// expired.
func (s *MemoryIdempotencyStore) Check(key string) (*cachedResponse, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || time.Since(entry.CachedAt) >= s.ttl {
		return nil, false
	}
	return entry, true
}

// Set records a response under key, sweeping expired entries at most
// once per sweep interval.
func (s *MemoryIdempotencyStore) Set(key string, statusCode int, headers http.Header, body []byte) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) >= sweepEvery {
		for k, entry := range s.entries {
			if now.Sub(entry.CachedAt) >= s.ttl {
				delete(s.entries, k)
			}
		}
		s.lastSweep = now
	}
	s.entries[key] = &cachedResponse{
		StatusCode: statusCode,
		Headers:    headers,
		Body:       body,
		CachedAt:   now,
	}
}

// replayRecorder tees the handler's response so it can be cached after
// the fact. Writes still reach the client immediately.
type replayRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *replayRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *replayRecorder) Write(p []byte) (int, error) {
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// IdempotencyMiddleware gives mutating requests at-most-once semantics.
// A request carrying an Idempotency-Key header whose key was seen before
// gets the first attempt's response replayed verbatim; otherwise the
// request runs and a 2xx outcome is cached under the key. Requests
// without the header pass through untouched.
func IdempotencyMiddleware(store IdempotencyStorer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			if key == "" || !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			if cached, ok := store.Check(key); ok {
				for name, vals := range cached.Headers {
					for _, v := range vals {
						w.Header().Set(name, v)
					}
				}
				w.WriteHeader(cached.StatusCode)
				_, _ = w.Write(cached.Body)
				return
			}

			rec := &replayRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// Failures stay retryable; only settled outcomes replay.
			if rec.status >= 200 && rec.status < 300 {
				store.Set(key, rec.status, w.Header().Clone(), rec.body.Bytes())
			}
		})
	}
}
