package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/isnad-labs/isnad/pkg/discovery"
	"github.com/isnad-labs/isnad/pkg/eventbus"
	"github.com/isnad-labs/isnad/pkg/identity"
	"github.com/isnad-labs/isnad/pkg/ledger"
	"github.com/isnad-labs/isnad/pkg/monitor"
	"github.com/isnad-labs/isnad/pkg/policy"
	"github.com/isnad-labs/isnad/pkg/scanner"
	"github.com/isnad-labs/isnad/pkg/scoring"
	"github.com/isnad-labs/isnad/pkg/store"
)

// Config holds the HTTP-level knobs of the server. Zero values disable
// the corresponding middleware.
type Config struct {
	RateLimitRPS   float64
	RateLimitBurst int
	AllowedOrigins []string
	AuthSecret     string
	Production     bool
	// Idempotency overrides the default in-memory store (e.g. Redis).
	Idempotency IdempotencyStorer
}

// Deps wires the server to the rest of the node. Ledger, Scoring,
// Policies, and Directory are required; the rest may be nil, disabling
// their endpoints.
type Deps struct {
	Ledger    *ledger.Ledger
	Scoring   *scoring.Engine
	Policies  *policy.Registry
	Directory *discovery.Registry
	Backend   store.Backend
	Scanner   *scanner.Supervisor
	Exporter  *monitor.Exporter
	Bus       *eventbus.Bus
	// Signer is the node's own identity, used to sign chain exports.
	Signer *identity.Identity
}

// Server is the isnad REST API.
type Server struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
}

// NewServer creates a Server. It does not start listening; mount
// Handler() on an http.Server.
func NewServer(deps Deps, cfg Config) *Server {
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 10
	}
	if cfg.Idempotency == nil {
		cfg.Idempotency = NewIdempotencyStore(24 * time.Hour)
	}
	return &Server{
		cfg:    cfg,
		deps:   deps,
		logger: slog.Default().With("component", "api"),
	}
}

// Handler returns the full middleware-wrapped route tree.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.deps.Exporter != nil {
		mux.Handle("GET /metrics", s.deps.Exporter.Handler())
	}
	if !s.cfg.Production {
		mux.HandleFunc("GET /api/v1/docs", s.handleDocs)
	}

	mux.HandleFunc("POST /api/v1/identities", s.handleCreateIdentity)
	mux.HandleFunc("GET /api/v1/identities/{id}", s.handleGetIdentity)

	mux.HandleFunc("POST /api/v1/attestations", s.handleCreateAttestation)
	mux.HandleFunc("POST /api/v1/attestations/batch", s.handleBatchAttestations)
	mux.HandleFunc("POST /api/v1/attestations/verify", s.handleVerifyAttestation)
	mux.HandleFunc("GET /api/v1/attestations/{id}", s.handleGetAttestation)
	mux.HandleFunc("GET /api/v1/agents/{id}/attestations", s.handleAgentAttestations)

	mux.HandleFunc("GET /api/v1/agents/{id}/trust", s.handleTrustScore)
	mux.HandleFunc("GET /api/v1/agents/{id}/trust/history", s.handleTrustHistory)
	mux.HandleFunc("GET /api/v1/trust/transitive", s.handleTransitiveTrust)

	mux.HandleFunc("GET /api/v1/chain/export", s.handleChainExport)
	mux.HandleFunc("POST /api/v1/chain/import", s.handleChainImport)
	mux.HandleFunc("POST /api/v1/chain/verify", s.handleChainVerify)

	mux.HandleFunc("POST /api/v1/revocations", s.handleCreateRevocation)
	mux.HandleFunc("GET /api/v1/revocations/{target}", s.handleListRevocations)

	mux.HandleFunc("POST /api/v1/delegations", s.handleCreateDelegation)
	mux.HandleFunc("GET /api/v1/delegations/{id}/chain", s.handleDelegationChain)
	mux.HandleFunc("GET /api/v1/agents/{id}/delegations", s.handleAgentDelegations)
	mux.HandleFunc("GET /api/v1/agents/{id}/authorized", s.handleAuthorized)

	mux.HandleFunc("GET /api/v1/policies", s.handleListPolicies)
	mux.HandleFunc("POST /api/v1/policies", s.handleCreatePolicy)
	mux.HandleFunc("GET /api/v1/policies/{name}", s.handleGetPolicy)
	mux.HandleFunc("PUT /api/v1/policies/{name}", s.handleUpdatePolicy)
	mux.HandleFunc("DELETE /api/v1/policies/{name}", s.handleDeletePolicy)
	mux.HandleFunc("POST /api/v1/policies/{name}/evaluate", s.handleEvaluatePolicy)
	mux.HandleFunc("POST /api/v1/policies/{name}/evaluate/batch", s.handleEvaluatePolicyBatch)

	mux.HandleFunc("POST /api/v1/discovery", s.handleRegisterProfile)
	mux.HandleFunc("GET /api/v1/discovery", s.handleSearchProfiles)
	mux.HandleFunc("GET /api/v1/discovery/{id}", s.handleGetProfile)
	mux.HandleFunc("DELETE /api/v1/discovery/{id}", s.handleRemoveProfile)

	mux.HandleFunc("GET /api/v1/agents/{id}/platforms", s.handlePlatformData)
	mux.HandleFunc("POST /api/v1/agents/{id}/scan", s.handleManualScan)
	mux.HandleFunc("DELETE /api/v1/agents/{id}", s.handleEraseAgent)

	mux.HandleFunc("GET /api/v1/graph/analysis", s.handleGraphAnalysis)
	mux.HandleFunc("GET /api/v1/events", s.handleEventHistory)

	var h http.Handler = mux
	h = IdempotencyMiddleware(s.cfg.Idempotency)(h)
	h = AuthMiddleware(s.cfg.AuthSecret)(h)
	if s.cfg.RateLimitRPS > 0 {
		h = NewGlobalRateLimiter(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst).Middleware(h)
	}
	h = CORS(s.cfg.AllowedOrigins)(h)
	h = RequestID(h)
	return h
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]interface{}{
		"status":       "ok",
		"attestations": s.deps.Ledger.Size(),
	}
	if s.deps.Exporter != nil {
		resp["health_score"] = s.deps.Exporter.HealthScore()
	}
	WriteJSON(w, http.StatusOK, resp)
}

// handleDocs lists the routes. Disabled entirely in production.
func (s *Server) handleDocs(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"service": "isnad",
		"resources": map[string]string{
			"identities":   "POST /api/v1/identities, GET /api/v1/identities/{id}",
			"attestations": "POST /api/v1/attestations[/batch|/verify], GET /api/v1/attestations/{id}, GET /api/v1/agents/{id}/attestations",
			"trust":        "GET /api/v1/agents/{id}/trust[/history], GET /api/v1/trust/transitive",
			"chain":        "GET /api/v1/chain/export, POST /api/v1/chain/import, POST /api/v1/chain/verify",
			"revocations":  "POST /api/v1/revocations, GET /api/v1/revocations/{target}",
			"delegations":  "POST /api/v1/delegations, GET /api/v1/delegations/{id}/chain, GET /api/v1/agents/{id}/delegations, GET /api/v1/agents/{id}/authorized",
			"policies":     "GET|POST /api/v1/policies, GET|PUT|DELETE /api/v1/policies/{name}, POST /api/v1/policies/{name}/evaluate[/batch]",
			"discovery":    "POST|GET /api/v1/discovery, GET|DELETE /api/v1/discovery/{id}",
			"platforms":    "GET /api/v1/agents/{id}/platforms, POST /api/v1/agents/{id}/scan",
			"graph":        "GET /api/v1/graph/analysis",
			"monitoring":   "GET /metrics, GET /healthz, GET /api/v1/events",
		},
	})
}
