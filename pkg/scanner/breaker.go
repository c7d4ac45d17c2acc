package scanner

import (
	"sync"
	"time"
)

// Circuit breaker defaults: open after 5 straight failures, probe again
// after 60s.
const (
	breakerThreshold = 5
	breakerCooldown  = 60 * time.Second
)

type breakerState struct {
	failures int
	openedAt time.Time
	open     bool
}

// CircuitBreaker tracks consecutive failures per host and short-circuits
// calls to hosts that keep failing until a cooldown elapses.
type CircuitBreaker struct {
	mu        sync.Mutex
	hosts     map[string]*breakerState
	threshold int
	cooldown  time.Duration
	clock     func() time.Time
}

// NewCircuitBreaker returns a breaker with default thresholds.
func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{
		hosts:     make(map[string]*breakerState),
		threshold: breakerThreshold,
		cooldown:  breakerCooldown,
		clock:     time.Now,
	}
}

// Allow reports whether a call to host may proceed. An open breaker
// permits a single probe once the cooldown has elapsed.
func (b *CircuitBreaker) Allow(host string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.hosts[host]
	if !ok || !s.open {
		return true
	}
	if b.clock().Sub(s.openedAt) >= b.cooldown {
		// Half-open: let one probe through; Success/Failure decides.
		s.openedAt = b.clock()
		return true
	}
	return false
}

// Success resets the host's failure streak.
func (b *CircuitBreaker) Success(host string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.hosts, host)
}

// Failure records a failed call, opening the breaker at the threshold.
func (b *CircuitBreaker) Failure(host string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.hosts[host]
	if !ok {
		s = &breakerState{}
		b.hosts[host] = s
	}
	s.failures++
	if s.failures >= b.threshold {
		s.open = true
		s.openedAt = b.clock()
	}
}
