package record

import (
	"fmt"
	"sort"
	"time"

	"github.com/isnad-labs/isnad/pkg/canonicalize"
	"github.com/isnad-labs/isnad/pkg/crypto"
	"github.com/isnad-labs/isnad/pkg/identity"
)

// Delegation is a signed capability grant from Principal to Delegate for a
// set of scopes. A delegation may be narrowed and re-granted by its
// delegate up to MaxDepth levels.
type Delegation struct {
	Principal string   `json:"principal"`
	Delegate  string   `json:"delegate"`
	Scopes    []string `json:"scopes"`
	ExpiresAt *string  `json:"expires_at"`
	MaxDepth  int      `json:"max_depth"`
	ParentID  *string  `json:"parent_id"`
	Depth     int      `json:"depth"`
	Timestamp string   `json:"timestamp"`

	ID              string `json:"delegation_id"`
	Signature       string `json:"signature"`
	PrincipalPubkey string `json:"principal_pubkey"`
}

type delegationPayload struct {
	Principal string   `json:"principal"`
	Delegate  string   `json:"delegate"`
	Scopes    []string `json:"scopes"`
	ExpiresAt *string  `json:"expires_at"`
	MaxDepth  int      `json:"max_depth"`
	ParentID  *string  `json:"parent_id"`
	Depth     int      `json:"depth"`
	Timestamp string   `json:"timestamp"`
}

// NewDelegation creates and signs a root delegation (depth 0, no parent).
// expiresAt may be nil for a non-expiring grant.
func NewDelegation(principal *identity.Identity, delegate string, scopes []string, expiresAt *time.Time, maxDepth int) (*Delegation, error) {
	return newDelegation(principal, delegate, scopes, expiresAt, maxDepth, nil, 0, time.Now())
}

func newDelegation(principal *identity.Identity, delegate string, scopes []string, expiresAt *time.Time, maxDepth int, parentID *string, depth int, at time.Time) (*Delegation, error) {
	if !identity.IsAgentID(delegate) {
		return nil, fmt.Errorf("%w: bad delegate %q", ErrSchema, delegate)
	}
	if len(scopes) == 0 {
		return nil, fmt.Errorf("%w: scopes must be non-empty", ErrSchema)
	}
	if maxDepth < 0 {
		return nil, fmt.Errorf("%w: max_depth must be non-negative", ErrSchema)
	}

	normalized := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if s = NormalizeLabel(s); s != "" {
			normalized = append(normalized, s)
		}
	}
	sort.Strings(normalized)
	if len(normalized) == 0 {
		return nil, fmt.Errorf("%w: scopes must be non-empty", ErrSchema)
	}

	del := &Delegation{
		Principal:       principal.AgentID(),
		Delegate:        delegate,
		Scopes:          normalized,
		MaxDepth:        maxDepth,
		ParentID:        parentID,
		Depth:           depth,
		Timestamp:       FormatTimestamp(at),
		PrincipalPubkey: principal.PublicKey(),
	}
	if expiresAt != nil {
		exp := FormatTimestamp(*expiresAt)
		del.ExpiresAt = &exp
	}

	payload, err := del.CanonicalPayload()
	if err != nil {
		return nil, err
	}
	del.ID = canonicalize.ShortHash(payload)
	del.Signature = principal.Sign(payload)
	return del, nil
}

// SubDelegate creates a child delegation from parent, signed by signer.
// The narrowing rules are enforced here:
//   - signer must be the parent's delegate
//   - child depth is parent depth + 1 and must stay below parent max_depth
//   - child scopes must be a subset of the parent's
//   - expiry is clamped to the parent's
//   - child max_depth is clamped to the remaining budget
func SubDelegate(parent *Delegation, signer *identity.Identity, delegate string, scopes []string, expiresAt *time.Time, proposedMaxDepth int) (*Delegation, error) {
	if signer.AgentID() != parent.Delegate {
		return nil, fmt.Errorf("%w: signer %s is not the parent delegate %s", ErrDelegationConstraint, signer.AgentID(), parent.Delegate)
	}

	depth := parent.Depth + 1
	if depth >= parent.MaxDepth {
		return nil, fmt.Errorf("%w: depth %d exceeds parent max_depth %d", ErrDelegationConstraint, depth, parent.MaxDepth)
	}

	parentScopes := make(map[string]bool, len(parent.Scopes))
	for _, s := range parent.Scopes {
		parentScopes[s] = true
	}
	for _, s := range scopes {
		if !parentScopes[NormalizeLabel(s)] {
			return nil, fmt.Errorf("%w: scope %q not granted by parent", ErrDelegationConstraint, s)
		}
	}

	// Clamp expiry to the parent's.
	effectiveExpiry := expiresAt
	if parent.ExpiresAt != nil {
		parentExp, err := ParseTimestamp(*parent.ExpiresAt)
		if err != nil {
			return nil, err
		}
		if effectiveExpiry == nil || effectiveExpiry.After(parentExp) {
			effectiveExpiry = &parentExp
		}
	}

	maxDepth := parent.MaxDepth - parent.Depth - 1
	if proposedMaxDepth < maxDepth {
		maxDepth = proposedMaxDepth
	}
	if maxDepth < 0 {
		maxDepth = 0
	}

	return newDelegation(signer, delegate, scopes, effectiveExpiry, maxDepth, &parent.ID, depth, time.Now())
}

// CanonicalPayload returns the signed canonical JSON bytes.
func (d *Delegation) CanonicalPayload() ([]byte, error) {
	ts, err := NormalizeTimestamp(d.Timestamp)
	if err != nil {
		return nil, err
	}
	return canonicalize.JCS(delegationPayload{
		Principal: d.Principal,
		Delegate:  d.Delegate,
		Scopes:    d.Scopes,
		ExpiresAt: d.ExpiresAt,
		MaxDepth:  d.MaxDepth,
		ParentID:  d.ParentID,
		Depth:     d.Depth,
		Timestamp: ts,
	})
}

// HasScope reports whether the delegation grants the given scope label.
func (d *Delegation) HasScope(scope string) bool {
	scope = NormalizeLabel(scope)
	for _, s := range d.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// ExpiredAt reports whether the delegation has expired as of now.
func (d *Delegation) ExpiredAt(now time.Time) bool {
	if d.ExpiresAt == nil {
		return false
	}
	exp, err := ParseTimestamp(*d.ExpiresAt)
	if err != nil {
		return true
	}
	return !now.Before(exp)
}

// Verify checks schema, signature, and principal key derivation.
func (d *Delegation) Verify() error {
	switch {
	case !identity.IsAgentID(d.Principal):
		return fmt.Errorf("%w: bad principal %q", ErrSchema, d.Principal)
	case !identity.IsAgentID(d.Delegate):
		return fmt.Errorf("%w: bad delegate %q", ErrSchema, d.Delegate)
	case len(d.Scopes) == 0:
		return fmt.Errorf("%w: scopes must be non-empty", ErrSchema)
	case d.Signature == "" || d.PrincipalPubkey == "":
		return fmt.Errorf("%w: signature and principal_pubkey are required", ErrSchema)
	}

	payload, err := d.CanonicalPayload()
	if err != nil {
		return err
	}
	ok, err := crypto.Verify(d.PrincipalPubkey, d.Signature, payload)
	if err != nil || !ok {
		return ErrInvalidSignature
	}
	if identity.DeriveAgentID(d.PrincipalPubkey) != d.Principal {
		return ErrPayloadMismatch
	}
	if d.ID != "" && d.ID != canonicalize.ShortHash(payload) {
		return fmt.Errorf("%w: delegation_id does not match payload", ErrSchema)
	}
	return nil
}
