package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/isnad-labs/isnad/pkg/record"
	"github.com/isnad-labs/isnad/pkg/store"
)

// DefaultInterval is the gap between scan cycles.
const DefaultInterval = time.Hour

// Profile names an agent and the platform URLs it declared.
type Profile struct {
	AgentID string
	URLs    []string
}

// ProfileSource supplies the agents to scan each cycle. The discovery
// registry satisfies it.
type ProfileSource interface {
	Profiles(ctx context.Context) ([]Profile, error)
}

// Publisher mirrors the event bus surface the supervisor emits to.
type Publisher interface {
	Publish(topic string, payload map[string]interface{})
}

// Config tunes a Supervisor.
type Config struct {
	Interval          time.Duration
	RequestsPerSecond float64
	FetchTimeout      time.Duration
}

// Supervisor runs the scan loop: one cycle per interval, agents visited
// sequentially, outbound requests rate-limited per process and guarded by
// a per-host circuit breaker. One agent's failure never aborts a cycle.
type Supervisor struct {
	registry *Registry
	source   ProfileSource
	backend  store.Backend
	breaker  *CircuitBreaker
	limiter  *rate.Limiter
	pub      Publisher
	logger   *slog.Logger

	interval     time.Duration
	fetchTimeout time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewSupervisor wires a supervisor. pub may be nil.
func NewSupervisor(registry *Registry, source ProfileSource, backend store.Backend, cfg Config, pub Publisher) *Supervisor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	return &Supervisor{
		registry:     registry,
		source:       source,
		backend:      backend,
		breaker:      NewCircuitBreaker(),
		limiter:      rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		pub:          pub,
		logger:       slog.Default().With("component", "scanner"),
		interval:     cfg.Interval,
		fetchTimeout: cfg.FetchTimeout,
	}
}

// Start launches the scan loop. It is a no-op when already running.
func (s *Supervisor) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	go s.loop(ctx)
}

// Stop cancels the in-flight cycle at its next yield point and waits for
// the loop to exit.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
}

func (s *Supervisor) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// First cycle runs immediately; later ones on the ticker.
	s.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Supervisor) runCycle(ctx context.Context) {
	profiles, err := s.source.Profiles(ctx)
	if err != nil {
		s.logger.Warn("profile listing failed, skipping cycle", "error", err)
		return
	}
	s.logger.Info("scan cycle starting", "agents", len(profiles))

	for _, p := range profiles {
		if ctx.Err() != nil {
			return
		}
		if err := s.ScanAgent(ctx, p); err != nil {
			// Storage trouble for one agent must not starve the rest.
			s.logger.Warn("agent scan failed", "agent_id", p.AgentID, "error", err)
		}
	}
}

// ScanAgent visits every declared URL of one agent and persists the
// results. It is the manual-scan entry point as well as the cycle body.
func (s *Supervisor) ScanAgent(ctx context.Context, p Profile) error {
	var firstErr error
	for _, rawURL := range p.URLs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res := s.scanURL(ctx, rawURL)
		if err := s.persist(ctx, p.AgentID, res); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if s.pub != nil {
			s.pub.Publish("scan.completed", map[string]interface{}{
				"agent_id": p.AgentID,
				"url":      res.URL,
				"platform": res.Platform,
				"alive":    res.Alive,
			})
		}
	}
	return firstErr
}

func (s *Supervisor) scanURL(ctx context.Context, rawURL string) Result {
	host := hostOf(rawURL)
	if host == "" {
		return Result{URL: rawURL, Error: "invalid url"}
	}
	if !s.breaker.Allow(host) {
		return Result{URL: rawURL, Error: "circuit open for " + host}
	}

	// Outbound throttling delays, it never drops.
	if err := s.limiter.Wait(ctx); err != nil {
		return Result{URL: rawURL, Error: err.Error()}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	res := s.registry.Resolve(rawURL).Fetch(fetchCtx, rawURL)
	if res.Alive {
		s.breaker.Success(host)
	} else {
		s.breaker.Failure(host)
	}
	return res
}

func (s *Supervisor) persist(ctx context.Context, agentID string, res Result) error {
	// Connectors that never weigh in on verification persist as "none".
	if res.Metrics.VerificationLevel == "" {
		res.Metrics.VerificationLevel = VerificationNone
	}
	datum := PlatformDatum{
		AgentID:   agentID,
		Result:    res,
		CheckedAt: record.FormatTimestamp(time.Now()),
	}
	raw, err := json.Marshal(datum)
	if err != nil {
		return err
	}
	// Records are immutable once put, so each scan writes a fresh row;
	// reads keep the newest row per URL.
	key := fmt.Sprintf("%s|%s|%d", agentID, res.URL, time.Now().UnixNano())
	if err := s.backend.Put(ctx, store.KindPlatform, key, raw); err != nil {
		return err
	}
	return s.backend.IndexAdd(ctx, store.KindPlatform, "by_agent", agentID, key)
}

// PlatformData returns the persisted data for an agent, one datum per
// URL, newest scan winning.
func PlatformData(ctx context.Context, backend store.Backend, agentID string) ([]PlatformDatum, error) {
	keys, err := backend.IndexLookup(ctx, store.KindPlatform, "by_agent", agentID)
	if err != nil {
		return nil, err
	}
	latest := make(map[string]PlatformDatum)
	var urlOrder []string
	for _, key := range keys {
		raw, err := backend.Get(ctx, store.KindPlatform, key)
		if err != nil {
			continue
		}
		var datum PlatformDatum
		if err := json.Unmarshal(raw, &datum); err != nil {
			continue
		}
		if _, ok := latest[datum.Result.URL]; !ok {
			urlOrder = append(urlOrder, datum.Result.URL)
		}
		latest[datum.Result.URL] = datum
	}
	out := make([]PlatformDatum, 0, len(urlOrder))
	for _, u := range urlOrder {
		out = append(out, latest[u])
	}
	return out, nil
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Host
}
