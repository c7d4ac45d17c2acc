// Package record defines the signed record kinds admitted by the ledger:
// attestations, revocations, delegations, and key rotations. Each kind has
// a fixed canonical payload; the record ID is a deterministic function of
// that payload.
package record

import (
	"fmt"
	"time"

	"github.com/isnad-labs/isnad/pkg/canonicalize"
	"github.com/isnad-labs/isnad/pkg/crypto"
	"github.com/isnad-labs/isnad/pkg/identity"
)

// Attestation is a signed statement that Subject performed Task, witnessed
// by Witness. The signed payload is the canonical JSON of exactly
// {evidence, subject, task, timestamp, witness}.
type Attestation struct {
	Subject   string `json:"subject"`
	Witness   string `json:"witness"`
	Task      string `json:"task"`
	Evidence  string `json:"evidence"`
	Timestamp string `json:"timestamp"`

	// Transport envelope fields, never part of the signed payload.
	ID            string `json:"attestation_id"`
	Signature     string `json:"signature"`
	WitnessPubkey string `json:"witness_pubkey"`
}

// attestationPayload is the exact signed shape. Field order is irrelevant;
// canonicalization sorts keys.
type attestationPayload struct {
	Evidence  string `json:"evidence"`
	Subject   string `json:"subject"`
	Task      string `json:"task"`
	Timestamp string `json:"timestamp"`
	Witness   string `json:"witness"`
}

// NewAttestation creates and signs an attestation witnessed by id.
func NewAttestation(id *identity.Identity, subject, task, evidence string) (*Attestation, error) {
	return NewAttestationAt(id, subject, task, evidence, time.Now())
}

// NewAttestationAt is NewAttestation with an explicit creation time.
func NewAttestationAt(id *identity.Identity, subject, task, evidence string, at time.Time) (*Attestation, error) {
	if !identity.IsAgentID(subject) {
		return nil, fmt.Errorf("%w: subject %q is not an agent id", ErrSchema, subject)
	}
	task = NormalizeLabel(task)
	if task == "" {
		return nil, fmt.Errorf("%w: task is required", ErrSchema)
	}

	att := &Attestation{
		Subject:       subject,
		Witness:       id.AgentID(),
		Task:          task,
		Evidence:      evidence,
		Timestamp:     FormatTimestamp(at),
		WitnessPubkey: id.PublicKey(),
	}

	payload, err := att.CanonicalPayload()
	if err != nil {
		return nil, err
	}
	att.ID = canonicalize.ShortHash(payload)
	att.Signature = id.Sign(payload)
	return att, nil
}

// CanonicalPayload returns the canonical JSON bytes that are signed and
// hashed. The timestamp is normalized first so that tolerated legacy forms
// hash identically to their canonical rendering.
func (a *Attestation) CanonicalPayload() ([]byte, error) {
	ts, err := NormalizeTimestamp(a.Timestamp)
	if err != nil {
		return nil, err
	}
	return canonicalize.JCS(attestationPayload{
		Evidence:  a.Evidence,
		Subject:   a.Subject,
		Task:      a.Task,
		Timestamp: ts,
		Witness:   a.Witness,
	})
}

// ComputeID returns the deterministic attestation ID for the payload.
func (a *Attestation) ComputeID() (string, error) {
	payload, err := a.CanonicalPayload()
	if err != nil {
		return "", err
	}
	return canonicalize.ShortHash(payload), nil
}

// Validate checks structural requirements without touching signatures.
func (a *Attestation) Validate() error {
	switch {
	case !identity.IsAgentID(a.Subject):
		return fmt.Errorf("%w: bad subject %q", ErrSchema, a.Subject)
	case !identity.IsAgentID(a.Witness):
		return fmt.Errorf("%w: bad witness %q", ErrSchema, a.Witness)
	case a.Task == "":
		return fmt.Errorf("%w: task is required", ErrSchema)
	case a.Signature == "":
		return fmt.Errorf("%w: signature is required", ErrSchema)
	case a.WitnessPubkey == "":
		return fmt.Errorf("%w: witness_pubkey is required", ErrSchema)
	}
	if _, err := ParseTimestamp(a.Timestamp); err != nil {
		return err
	}
	return nil
}

// Verify checks the full attestation integrity chain: schema, signature
// against the embedded witness key, key-to-witness derivation, and ID
// consistency.
func (a *Attestation) Verify() error {
	if err := a.Validate(); err != nil {
		return err
	}

	payload, err := a.CanonicalPayload()
	if err != nil {
		return err
	}

	ok, err := crypto.Verify(a.WitnessPubkey, a.Signature, payload)
	if err != nil || !ok {
		return ErrInvalidSignature
	}
	if identity.DeriveAgentID(a.WitnessPubkey) != a.Witness {
		return ErrPayloadMismatch
	}
	if a.ID != "" && a.ID != canonicalize.ShortHash(payload) {
		return fmt.Errorf("%w: attestation_id does not match payload", ErrSchema)
	}
	return nil
}
