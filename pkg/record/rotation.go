package record

import (
	"fmt"
	"time"

	"github.com/isnad-labs/isnad/pkg/canonicalize"
	"github.com/isnad-labs/isnad/pkg/crypto"
	"github.com/isnad-labs/isnad/pkg/identity"
)

// KeyRotation binds an old public key to a new one, signed by the OLD key.
// Verification confirms continuity only; historical records keep their
// original subject/witness fields.
type KeyRotation struct {
	OldPubkey string `json:"old_pubkey"`
	NewPubkey string `json:"new_pubkey"`
	Timestamp string `json:"timestamp"`
	Signature string `json:"signature"`
}

type rotationPayload struct {
	NewPubkey string `json:"new_pubkey"`
	OldPubkey string `json:"old_pubkey"`
	Timestamp string `json:"timestamp"`
}

// NewKeyRotation signs a binding from old's key to newPubkeyHex.
func NewKeyRotation(old *identity.Identity, newPubkeyHex string) (*KeyRotation, error) {
	return NewKeyRotationAt(old, newPubkeyHex, time.Now())
}

// NewKeyRotationAt is NewKeyRotation with an explicit time.
func NewKeyRotationAt(old *identity.Identity, newPubkeyHex string, at time.Time) (*KeyRotation, error) {
	if newPubkeyHex == "" {
		return nil, fmt.Errorf("%w: new_pubkey is required", ErrSchema)
	}

	rot := &KeyRotation{
		OldPubkey: old.PublicKey(),
		NewPubkey: newPubkeyHex,
		Timestamp: FormatTimestamp(at),
	}
	payload, err := rot.CanonicalPayload()
	if err != nil {
		return nil, err
	}
	rot.Signature = old.Sign(payload)
	return rot, nil
}

// CanonicalPayload returns the signed canonical JSON bytes.
func (k *KeyRotation) CanonicalPayload() ([]byte, error) {
	ts, err := NormalizeTimestamp(k.Timestamp)
	if err != nil {
		return nil, err
	}
	return canonicalize.JCS(rotationPayload{
		NewPubkey: k.NewPubkey,
		OldPubkey: k.OldPubkey,
		Timestamp: ts,
	})
}

// OldAgentID derives the agent ID the rotation transfers away from.
func (k *KeyRotation) OldAgentID() string {
	return identity.DeriveAgentID(k.OldPubkey)
}

// NewAgentID derives the agent ID the rotation transfers to.
func (k *KeyRotation) NewAgentID() string {
	return identity.DeriveAgentID(k.NewPubkey)
}

// Verify checks the rotation is signed by the old key.
func (k *KeyRotation) Verify() error {
	if k.OldPubkey == "" || k.NewPubkey == "" || k.Signature == "" {
		return fmt.Errorf("%w: old_pubkey, new_pubkey, and signature are required", ErrSchema)
	}
	payload, err := k.CanonicalPayload()
	if err != nil {
		return err
	}
	ok, err := crypto.Verify(k.OldPubkey, k.Signature, payload)
	if err != nil || !ok {
		return ErrInvalidSignature
	}
	return nil
}
