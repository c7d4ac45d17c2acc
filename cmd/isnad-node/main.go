// Command isnad-node runs the trust ledger service: REST API, platform
// scanner, anomaly monitor, and periodic bundle archival.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/isnad-labs/isnad/pkg/api"
	"github.com/isnad-labs/isnad/pkg/bundle"
	"github.com/isnad-labs/isnad/pkg/config"
	"github.com/isnad-labs/isnad/pkg/discovery"
	"github.com/isnad-labs/isnad/pkg/eventbus"
	"github.com/isnad-labs/isnad/pkg/identity"
	"github.com/isnad-labs/isnad/pkg/ledger"
	"github.com/isnad-labs/isnad/pkg/monitor"
	"github.com/isnad-labs/isnad/pkg/observability"
	"github.com/isnad-labs/isnad/pkg/policy"
	"github.com/isnad-labs/isnad/pkg/scanner"
	"github.com/isnad-labs/isnad/pkg/scoring"
	"github.com/isnad-labs/isnad/pkg/store"
)

func main() {
	profilePath := flag.String("profile", "", "node profile YAML")
	flag.Parse()

	if err := run(*profilePath); err != nil {
		slog.Error("node failed", "error", err)
		os.Exit(1)
	}
}

func run(profilePath string) error {
	cfg := config.Load()
	setupLogging(cfg)

	var profile *config.NodeProfile
	if profilePath != "" {
		p, err := config.LoadNodeProfile(profilePath)
		if err != nil {
			return err
		}
		profile = p
	} else {
		profile = &config.NodeProfile{}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := openBackend(cfg, profile)
	if err != nil {
		return fmt.Errorf("open backend: %w", err)
	}

	bus := eventbus.New()
	dispatcher := eventbus.NewWebhookDispatcher(bus, &http.Client{Timeout: 10 * time.Second})
	defer dispatcher.Close()
	for _, rule := range profile.Webhook {
		dispatcher.Register(rule.Pattern, rule.URL)
	}

	l, err := ledger.Open(ctx, backend, ledger.WithPublisher(bus))
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	policies, err := policy.OpenRegistry(ctx, backend)
	if err != nil {
		return fmt.Errorf("open policy registry: %w", err)
	}
	if profile.PolicyDir != "" {
		if err := loadPolicyDir(ctx, policies, profile.PolicyDir); err != nil {
			return err
		}
	}

	directory, err := discovery.Open(ctx, backend)
	if err != nil {
		return fmt.Errorf("open discovery registry: %w", err)
	}

	// Platform scanner: discovery registry as profile source, generic
	// connector as the fallback for every unrouted URL.
	connectors := scanner.NewRegistry(nil)
	for _, route := range profile.Scanner.Connectors {
		if err := connectors.Register(route.Pattern, scanner.NewGeneric(nil)); err != nil {
			return fmt.Errorf("connector route %q: %w", route.Pattern, err)
		}
	}
	sup := scanner.NewSupervisor(connectors, directory, backend, scanner.Config{
		Interval:          time.Duration(profile.Scanner.IntervalSeconds) * time.Second,
		RequestsPerSecond: profile.Scanner.RequestsPerSecond,
	}, bus)
	sup.Start()
	defer sup.Stop()

	// Monitoring: ledger events feed the sliding window; a worker loop
	// turns detector alerts into anomaly.<severity> events.
	engine := scoring.NewEngine(l)
	window := monitor.NewSlidingWindow(time.Hour)
	detector := monitor.NewAnomalyDetector(monitor.DefaultDetectorConfig())
	exporter := monitor.NewExporter(window, detector, ledgerStats{l})
	feedWindow(bus, window, engine)
	go anomalyLoop(ctx, bus, window, detector, cfg.WorkerInterval)

	signer, err := nodeSigner()
	if err != nil {
		return err
	}

	archive, err := openArchive(ctx, profile.Archive)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	if archive != nil {
		go archiveLoop(ctx, archive, l, signer, cfg.WorkerInterval)
	}

	var obs *observability.Provider
	if cfg.OTLPEndpoint != "" {
		obsCfg := observability.DefaultConfig()
		obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
		obsCfg.Insecure = !cfg.Production
		if cfg.Production {
			obsCfg.Environment = "production"
		}
		obs, err = observability.New(ctx, obsCfg)
		if err != nil {
			return fmt.Errorf("observability: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = obs.Shutdown(shutdownCtx)
		}()
	}

	server := api.NewServer(api.Deps{
		Ledger:    l,
		Scoring:   engine,
		Policies:  policies,
		Directory: directory,
		Backend:   backend,
		Scanner:   sup,
		Exporter:  exporter,
		Bus:       bus,
		Signer:    signer,
	}, api.Config{
		RateLimitRPS:   cfg.RateLimitRPS,
		AllowedOrigins: cfg.AllowedOrigins,
		AuthSecret:     cfg.AuthSecret,
		Production:     cfg.Production,
		Idempotency:    redisIdempotency(),
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("isnad node listening", "addr", httpServer.Addr, "backend", backendName(cfg, profile))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Production {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// openBackend picks the store from the node profile, falling back to
// environment-driven selection: DATABASE_URL means Postgres, otherwise
// the JSONL chain at LEDGER_PATH.
func openBackend(cfg *config.Config, profile *config.NodeProfile) (store.Backend, error) {
	switch profile.Storage.Backend {
	case "memory":
		return store.NewMemoryBackend(), nil
	case "jsonl":
		return store.NewJSONLBackend(profile.Storage.Path)
	case "sqlite":
		return store.NewSQLiteBackend(profile.Storage.Path)
	case "postgres":
		url := profile.Storage.DatabaseURL
		if url == "" {
			url = cfg.DatabaseURL
		}
		return store.NewPostgresBackend(url)
	}
	if cfg.DatabaseURL != "" {
		return store.NewPostgresBackend(cfg.DatabaseURL)
	}
	return store.NewJSONLBackend(cfg.LedgerPath)
}

func backendName(cfg *config.Config, profile *config.NodeProfile) string {
	if profile.Storage.Backend != "" {
		return profile.Storage.Backend
	}
	if cfg.DatabaseURL != "" {
		return "postgres"
	}
	return "jsonl"
}

// loadPolicyDir loads every *.yaml policy document into the registry.
// A malformed document fails startup rather than silently vanishing.
func loadPolicyDir(ctx context.Context, registry *policy.Registry, dir string) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return err
	}
	for _, path := range matches {
		p, err := policy.Load(path)
		if err != nil {
			return fmt.Errorf("policy %s: %w", path, err)
		}
		if err := registry.Save(ctx, p); err != nil {
			return fmt.Errorf("policy %s: %w", path, err)
		}
		slog.Info("loaded policy", "name", p.Name, "path", path)
	}
	return nil
}

// nodeSigner loads the node's identity keyfile from ISNAD_NODE_KEY, used
// to sign chain exports. Unset means exports go out unsigned.
func nodeSigner() (*identity.Identity, error) {
	path := os.Getenv("ISNAD_NODE_KEY")
	if path == "" {
		return nil, nil
	}
	var passphrase []byte
	if p := os.Getenv("ISNAD_PASSPHRASE"); p != "" {
		passphrase = []byte(p)
	}
	id, err := identity.Load(path, passphrase)
	if err != nil {
		return nil, fmt.Errorf("node key: %w", err)
	}
	return id, nil
}

func openArchive(ctx context.Context, cfg config.ArchiveConfig) (bundle.Archive, error) {
	switch cfg.Kind {
	case "":
		return nil, nil
	case "fs":
		return bundle.NewFSArchive(cfg.Root)
	case "s3":
		return bundle.NewS3Archive(ctx, cfg.Bucket)
	case "gcs":
		return bundle.NewGCSArchive(ctx, cfg.Bucket)
	default:
		return nil, fmt.Errorf("unknown archive kind %q", cfg.Kind)
	}
}

// ledgerStats adapts the ledger to the exporter's totals interface.
type ledgerStats struct{ l *ledger.Ledger }

func (s ledgerStats) AttestationCount() int { return s.l.Size() }
func (s ledgerStats) RevocationCount() int  { return s.l.Revocations().Size() }

// feedWindow turns ledger events into monitor samples. The attestation
// sample carries the subject's trust score as of admission.
func feedWindow(bus *eventbus.Bus, window *monitor.SlidingWindow, engine *scoring.Engine) {
	bus.Subscribe("attestation.*", func(evt eventbus.Event) {
		s := monitor.Sample{Kind: monitor.SampleAttestation, Success: true}
		if agent, ok := evt.Payload["subject"].(string); ok {
			s.Agent = agent
			s.Score = engine.TrustScore(agent, "")
		}
		window.Append(s)
	})
	bus.Subscribe("revocation.*", func(evt eventbus.Event) {
		s := monitor.Sample{Kind: monitor.SampleRevocation, Success: true}
		if agent, ok := evt.Payload["target_id"].(string); ok {
			s.Agent = agent
		}
		window.Append(s)
	})
	bus.Subscribe("scan.*", func(evt eventbus.Event) {
		alive, _ := evt.Payload["alive"].(bool)
		window.Append(monitor.Sample{Kind: monitor.SampleScan, Success: alive})
	})
}

// anomalyLoop analyzes the window every interval and publishes each
// alert as an anomaly.<severity> event.
func anomalyLoop(ctx context.Context, bus *eventbus.Bus, window *monitor.SlidingWindow, detector *monitor.AnomalyDetector, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, alert := range detector.Analyze(window) {
				bus.Publish("anomaly."+alert.Severity, map[string]interface{}{
					"rule":    alert.Rule,
					"message": alert.Message,
				})
			}
		}
	}
}

// archiveLoop snapshots the chain into the archive every interval.
func archiveLoop(ctx context.Context, archive bundle.Archive, l *ledger.Ledger, signer *identity.Identity, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b, err := bundle.Export(l, signer, map[string]interface{}{"source": "isnad-node"})
			if err != nil {
				slog.Error("bundle export failed", "error", err)
				continue
			}
			key := "snapshots/" + time.Now().UTC().Format("2006-01-02T15-04-05") + ".json"
			if err := bundle.Publish(ctx, archive, key, b); err != nil {
				slog.Error("bundle archive failed", "error", err, "key", key)
				continue
			}
			slog.Info("archived chain snapshot", "key", key, "attestations", len(b.Attestations))
		}
	}
}

// redisIdempotency returns a Redis-backed idempotency store when
// REDIS_ADDR is set, otherwise nil for the in-memory default.
func redisIdempotency() api.IdempotencyStorer {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	ttl := 24 * time.Hour
	if v := os.Getenv("REDIS_IDEMPOTENCY_TTL"); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil && d > 0 {
			ttl = d
		}
	}
	return api.NewRedisIdempotencyStore(client, ttl)
}
