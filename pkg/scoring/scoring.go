// Package scoring computes reputation from the attestation ledger: a
// scoped per-agent score and transitive trust over witness paths.
package scoring

import (
	"strings"

	"github.com/isnad-labs/isnad/pkg/record"
)

const (
	// BaseWeight is credited per admitted attestation before decay.
	BaseWeight = 0.2
	// WitnessDecay halves the credit of each repeat attestation from the
	// same witness.
	WitnessDecay = 0.5
	// HopDecay is the per-hop attenuation of transitive trust.
	HopDecay = 0.7
	// DefaultMaxHops bounds the transitive trust search.
	DefaultMaxHops = 5
)

// LedgerView is the read surface scoring needs. *ledger.Ledger satisfies it.
type LedgerView interface {
	BySubject(agentID string) []*record.Attestation
	ByWitness(agentID string) []*record.Attestation
	IsRevoked(targetID, scope string) bool
}

// Engine scores agents against a ledger. It holds no state of its own;
// every call reads the live ledger.
type Engine struct {
	ledger LedgerView
}

// NewEngine returns an Engine over the given ledger view.
func NewEngine(l LedgerView) *Engine {
	return &Engine{ledger: l}
}

// TrustScore returns the reputation of agentID in [0,1], optionally
// restricted to attestations whose task contains scope as a substring.
// A revoked agent scores zero. Repeat attestations from the same witness
// decay geometrically; witnesses are recounted within the filtered set.
func (e *Engine) TrustScore(agentID, scope string) float64 {
	scope = record.NormalizeLabel(scope)
	if e.ledger.IsRevoked(agentID, scope) {
		return 0
	}

	score := 0.0
	witnessCounts := make(map[string]int)
	for _, att := range e.ledger.BySubject(agentID) {
		if scope != "" && !strings.Contains(att.Task, scope) {
			continue
		}
		if e.ledger.IsRevoked(att.ID, "") {
			continue
		}
		witnessCounts[att.Witness]++
		penalty := pow(WitnessDecay, witnessCounts[att.Witness]-1)
		score += BaseWeight * penalty
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}

// ChainTrust returns the transitive trust from source to target in [0,1]:
// the maximum product of per-hop decays over any attestation path within
// maxHops. Identity trust is 1.0; unreachable targets score zero.
// maxHops <= 0 selects DefaultMaxHops.
func (e *Engine) ChainTrust(source, target string, maxHops int) float64 {
	if source == target {
		return 1.0
	}
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}

	type node struct {
		agent string
		trust float64
		hops  int
	}

	best := 0.0
	visited := map[string]bool{source: true}
	queue := []node{{agent: source, trust: 1.0}}

	// Decay is uniform per hop, so the first (shortest) arrival at a node
	// carries the maximum trust any path can deliver to it.
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.hops == maxHops {
			continue
		}
		for _, att := range e.ledger.ByWitness(cur.agent) {
			next := att.Subject
			if visited[next] {
				continue
			}
			visited[next] = true
			trust := cur.trust * HopDecay
			if next == target && trust > best {
				best = trust
			}
			queue = append(queue, node{agent: next, trust: trust, hops: cur.hops + 1})
		}
	}
	return best
}

func pow(base float64, exp int) float64 {
	out := 1.0
	for i := 0; i < exp; i++ {
		out *= base
	}
	return out
}
