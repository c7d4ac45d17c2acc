package record

import (
	"fmt"
	"time"

	"github.com/isnad-labs/isnad/pkg/canonicalize"
	"github.com/isnad-labs/isnad/pkg/crypto"
	"github.com/isnad-labs/isnad/pkg/identity"
)

// Revocation revokes an agent or a single attestation. A nil Scope is a
// global revocation; otherwise the revocation applies only to the given
// task label. Verification never checks revoker authority — that is a
// policy decision layered above.
type Revocation struct {
	TargetID  string  `json:"target_id"`
	Reason    string  `json:"reason"`
	RevokedBy string  `json:"revoked_by"`
	Scope     *string `json:"scope"`
	Timestamp string  `json:"timestamp"`

	Signature     string `json:"signature"`
	RevokerPubkey string `json:"revoker_pubkey"`
}

type revocationPayload struct {
	Action    string  `json:"action"`
	TargetID  string  `json:"target_id"`
	Reason    string  `json:"reason"`
	RevokedBy string  `json:"revoked_by"`
	Scope     *string `json:"scope"`
	Timestamp string  `json:"timestamp"`
}

// NewRevocation creates and signs a revocation of targetID by id.
// scope == "" revokes globally.
func NewRevocation(id *identity.Identity, targetID, reason, scope string) (*Revocation, error) {
	return NewRevocationAt(id, targetID, reason, scope, time.Now())
}

// NewRevocationAt is NewRevocation with an explicit creation time.
func NewRevocationAt(id *identity.Identity, targetID, reason, scope string, at time.Time) (*Revocation, error) {
	if targetID == "" {
		return nil, fmt.Errorf("%w: target_id is required", ErrSchema)
	}

	rev := &Revocation{
		TargetID:      targetID,
		Reason:        reason,
		RevokedBy:     id.AgentID(),
		Timestamp:     FormatTimestamp(at),
		RevokerPubkey: id.PublicKey(),
	}
	if scope = NormalizeLabel(scope); scope != "" {
		rev.Scope = &scope
	}

	payload, err := rev.CanonicalPayload()
	if err != nil {
		return nil, err
	}
	rev.Signature = id.Sign(payload)
	return rev, nil
}

// CanonicalPayload returns the signed canonical JSON bytes, including the
// fixed "action":"revoke" discriminator.
func (r *Revocation) CanonicalPayload() ([]byte, error) {
	ts, err := NormalizeTimestamp(r.Timestamp)
	if err != nil {
		return nil, err
	}
	return canonicalize.JCS(revocationPayload{
		Action:    "revoke",
		TargetID:  r.TargetID,
		Reason:    r.Reason,
		RevokedBy: r.RevokedBy,
		Scope:     r.Scope,
		Timestamp: ts,
	})
}

// IsGlobal reports whether the revocation applies to every scope.
func (r *Revocation) IsGlobal() bool {
	return r.Scope == nil || *r.Scope == ""
}

// Verify checks schema, signature, and revoker key derivation.
func (r *Revocation) Verify() error {
	switch {
	case r.TargetID == "":
		return fmt.Errorf("%w: target_id is required", ErrSchema)
	case !identity.IsAgentID(r.RevokedBy):
		return fmt.Errorf("%w: bad revoked_by %q", ErrSchema, r.RevokedBy)
	case r.Signature == "" || r.RevokerPubkey == "":
		return fmt.Errorf("%w: signature and revoker_pubkey are required", ErrSchema)
	}

	payload, err := r.CanonicalPayload()
	if err != nil {
		return err
	}
	ok, err := crypto.Verify(r.RevokerPubkey, r.Signature, payload)
	if err != nil || !ok {
		return ErrInvalidSignature
	}
	if identity.DeriveAgentID(r.RevokerPubkey) != r.RevokedBy {
		return ErrPayloadMismatch
	}
	return nil
}
