// Package policy evaluates declarative trust requirements into
// allow/deny/review decisions. Evaluation is pure: rules never touch the
// ledger, they judge a pre-assembled context.
package policy

import (
	"fmt"
	"sort"
	"strings"
)

// Action is a policy outcome.
type Action string

const (
	ActionAllow         Action = "ALLOW"
	ActionDeny          Action = "DENY"
	ActionRequireReview Action = "REQUIRE_REVIEW"
	ActionRateLimit     Action = "RATE_LIMIT"
)

var validActions = map[Action]bool{
	ActionAllow:         true,
	ActionDeny:          true,
	ActionRequireReview: true,
	ActionRateLimit:     true,
}

// Context carries the facts a policy judges.
type Context struct {
	AgentID      string   `json:"agent_id"`
	TrustScore   float64  `json:"trust_score"`
	Endorsements int      `json:"endorsements"`
	ChainLength  int      `json:"chain_length"`
	Scopes       []string `json:"scopes"`
	IssuerIDs    []string `json:"issuer_ids"`
	AgeSeconds   float64  `json:"age_seconds"`
}

// Requirement is the predicate side of a rule. Nil/empty fields are
// unconstrained. Expression, when set, is a CEL predicate compiled at
// policy load.
type Requirement struct {
	MinTrustScore     *float64 `json:"min_trust_score,omitempty" yaml:"min_trust_score,omitempty"`
	MinEndorsements   *int     `json:"min_endorsements,omitempty" yaml:"min_endorsements,omitempty"`
	MaxChainLength    *int     `json:"max_chain_length,omitempty" yaml:"max_chain_length,omitempty"`
	RequiredScopes    []string `json:"required_scopes,omitempty" yaml:"required_scopes,omitempty"`
	RequiredIssuerIDs []string `json:"required_issuer_ids,omitempty" yaml:"required_issuer_ids,omitempty"`
	MaxAgeSeconds     *float64 `json:"max_age_seconds,omitempty" yaml:"max_age_seconds,omitempty"`
	Expression        string   `json:"expression,omitempty" yaml:"expression,omitempty"`

	program celProgram
}

// Rule pairs a requirement with the action taken when it fails.
type Rule struct {
	Name        string      `json:"name" yaml:"name"`
	Priority    int         `json:"priority" yaml:"priority"`
	Requirement Requirement `json:"requirement" yaml:"requirement"`
	OnFail      Action      `json:"on_fail" yaml:"on_fail"`
}

// Policy is an ordered rule list with a default action for the empty case.
type Policy struct {
	Name    string `json:"name" yaml:"name"`
	Default Action `json:"default" yaml:"default"`
	Rules   []Rule `json:"rules" yaml:"rules"`
}

// Decision is the result of one evaluation.
type Decision struct {
	Action     Action `json:"action"`
	FailedRule string `json:"failed_rule,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Compile validates the policy, compiles CEL expressions, and sorts
// rules by descending priority (stable for equal priorities).
func (p *Policy) Compile() error {
	if p.Default == "" {
		p.Default = ActionAllow
	}
	if !validActions[p.Default] {
		return fmt.Errorf("policy %q: invalid default action %q", p.Name, p.Default)
	}
	for i := range p.Rules {
		r := &p.Rules[i]
		if !validActions[r.OnFail] {
			return fmt.Errorf("policy %q rule %q: invalid on_fail %q", p.Name, r.Name, r.OnFail)
		}
		if r.Requirement.Expression != "" {
			prg, err := compileExpression(r.Requirement.Expression)
			if err != nil {
				return fmt.Errorf("policy %q rule %q: %w", p.Name, r.Name, err)
			}
			r.Requirement.program = prg
		}
	}
	sort.SliceStable(p.Rules, func(a, b int) bool {
		return p.Rules[a].Priority > p.Rules[b].Priority
	})
	return nil
}

// Evaluate runs the rules in priority order. The first failing rule wins
// and its on_fail action is returned; if every rule passes the result is
// ALLOW; an empty rule list yields the default.
func (p *Policy) Evaluate(ctx Context) Decision {
	if len(p.Rules) == 0 {
		return Decision{Action: p.Default}
	}
	for _, r := range p.Rules {
		if reason := r.Requirement.check(ctx); reason != "" {
			return Decision{Action: r.OnFail, FailedRule: r.Name, Reason: reason}
		}
	}
	return Decision{Action: ActionAllow}
}

// EvaluateBatch evaluates many contexts against the same policy.
func (p *Policy) EvaluateBatch(ctxs []Context) []Decision {
	out := make([]Decision, len(ctxs))
	for i, c := range ctxs {
		out[i] = p.Evaluate(c)
	}
	return out
}

// check returns an empty string when the requirement holds, otherwise a
// human-readable reason for the failure.
func (r *Requirement) check(ctx Context) string {
	if r.MinTrustScore != nil && ctx.TrustScore < *r.MinTrustScore {
		return fmt.Sprintf("trust score %.3f below %.3f", ctx.TrustScore, *r.MinTrustScore)
	}
	if r.MinEndorsements != nil && ctx.Endorsements < *r.MinEndorsements {
		return fmt.Sprintf("%d endorsements below %d", ctx.Endorsements, *r.MinEndorsements)
	}
	if r.MaxChainLength != nil && ctx.ChainLength > *r.MaxChainLength {
		return fmt.Sprintf("chain length %d exceeds %d", ctx.ChainLength, *r.MaxChainLength)
	}
	if len(r.RequiredScopes) > 0 {
		have := make(map[string]bool, len(ctx.Scopes))
		for _, s := range ctx.Scopes {
			have[s] = true
		}
		for _, want := range r.RequiredScopes {
			if !have[want] {
				return fmt.Sprintf("missing required scope %q", want)
			}
		}
	}
	if len(r.RequiredIssuerIDs) > 0 {
		have := make(map[string]bool, len(ctx.IssuerIDs))
		for _, id := range ctx.IssuerIDs {
			have[id] = true
		}
		found := false
		for _, want := range r.RequiredIssuerIDs {
			if have[want] {
				found = true
				break
			}
		}
		if !found {
			return fmt.Sprintf("no issuer among [%s]", strings.Join(r.RequiredIssuerIDs, ", "))
		}
	}
	if r.MaxAgeSeconds != nil && ctx.AgeSeconds > *r.MaxAgeSeconds {
		return fmt.Sprintf("age %.0fs exceeds %.0fs", ctx.AgeSeconds, *r.MaxAgeSeconds)
	}
	if r.program != nil {
		ok, err := r.program.eval(ctx)
		if err != nil {
			return fmt.Sprintf("expression error: %v", err)
		}
		if !ok {
			return fmt.Sprintf("expression %q is false", r.Expression)
		}
	}
	return ""
}
