// Package scanner polls external reputation sources for registered
// agents, normalizes the findings into platform data records, and
// persists them alongside the ledger.
package scanner

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/isnad-labs/isnad/pkg/record"
)

// DefaultFetchTimeout bounds a single connector call.
const DefaultFetchTimeout = 15 * time.Second

// Result is a connector's normalized verdict about one URL. Connectors
// never fail: errors come back as alive=false with Error populated.
type Result struct {
	Platform string                 `json:"platform"`
	URL      string                 `json:"url"`
	Alive    bool                   `json:"alive"`
	Error    string                 `json:"error,omitempty"`
	RawData  map[string]interface{} `json:"raw_data,omitempty"`
	Metrics  Metrics                `json:"metrics"`
}

// Verification levels a connector may assign to a platform presence.
const (
	VerificationNone     = "none"
	VerificationBasic    = "basic"
	VerificationVerified = "verified"
)

// Metrics are the normalized signals every connector computes. Scores
// are on a 0..100 scale.
type Metrics struct {
	ActivityScore     float64 `json:"activity_score"`
	ReputationScore   float64 `json:"reputation_score"`
	LongevityDays     float64 `json:"longevity_days"`
	VerificationLevel string  `json:"verification_level"`
	EvidenceCount     int     `json:"evidence_count"`
}

// PlatformDatum is the persisted scan outcome for one agent/URL pair.
type PlatformDatum struct {
	AgentID   string `json:"agent_id"`
	Result    Result `json:"result"`
	CheckedAt string `json:"checked_at"`
}

// Connector fetches and normalizes one platform URL. Implementations
// must honor ctx deadlines and must not panic or return errors through
// side channels: every failure is an alive=false Result.
type Connector interface {
	Name() string
	Fetch(ctx context.Context, rawURL string) Result
}

// Registry routes URLs to connectors by pattern, with a fallback for
// everything unmatched.
type Registry struct {
	entries  []registryEntry
	fallback Connector
}

type registryEntry struct {
	pattern *regexp.Regexp
	conn    Connector
}

// NewRegistry returns a registry with the Generic connector as fallback.
// client may be nil for a default HTTP client.
func NewRegistry(client *http.Client) *Registry {
	return &Registry{fallback: NewGeneric(client)}
}

// Register routes URLs matching the regexp pattern to conn. Patterns are
// tried in registration order.
func (r *Registry) Register(pattern string, conn Connector) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.entries = append(r.entries, registryEntry{pattern: re, conn: conn})
	return nil
}

// Resolve returns the connector responsible for rawURL.
func (r *Registry) Resolve(rawURL string) Connector {
	for _, e := range r.entries {
		if e.pattern.MatchString(rawURL) {
			return e.conn
		}
	}
	return r.fallback
}

// Generic is the fallback connector: an HTTP liveness probe plus TLS
// certificate inspection. It knows nothing about any specific platform.
type Generic struct {
	client *http.Client
}

// NewGeneric returns a Generic connector. client may be nil.
func NewGeneric(client *http.Client) *Generic {
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	return &Generic{client: client}
}

func (g *Generic) Name() string { return "generic" }

func (g *Generic) Fetch(ctx context.Context, rawURL string) Result {
	res := Result{Platform: g.Name(), URL: rawURL}
	res.Metrics.VerificationLevel = VerificationNone

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		res.Error = "invalid url"
		return res
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	resp, err := g.client.Do(req)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer func() { _ = resp.Body.Close() }()

	res.Alive = resp.StatusCode < 500
	res.RawData = map[string]interface{}{
		"status_code": resp.StatusCode,
	}
	if !res.Alive {
		res.Error = resp.Status
	}
	if tlsInfo := inspectTLS(resp.TLS); tlsInfo != nil {
		for k, v := range tlsInfo {
			res.RawData[k] = v
		}
		// A served certificate is the strongest signal the generic probe
		// can observe; platform connectors may upgrade to "verified".
		res.Metrics.VerificationLevel = VerificationBasic
	}

	// Liveness alone is not a positive reputation signal: the probe
	// only establishes recency, never trust.
	if res.Alive {
		res.Metrics.ActivityScore = ActivityScore(time.Now(), time.Now())
	}
	res.Metrics.ReputationScore = 0
	res.Metrics.EvidenceCount = 0
	return res
}

func inspectTLS(state *tls.ConnectionState) map[string]interface{} {
	if state == nil || len(state.PeerCertificates) == 0 {
		return nil
	}
	leaf := state.PeerCertificates[0]
	return map[string]interface{}{
		"tls_version":        tls.VersionName(state.Version),
		"tls_issuer":         leaf.Issuer.CommonName,
		"tls_subject":        leaf.Subject.CommonName,
		"tls_not_after":      record.FormatTimestamp(leaf.NotAfter),
		"tls_days_to_expiry": int(time.Until(leaf.NotAfter).Hours() / 24),
	}
}
