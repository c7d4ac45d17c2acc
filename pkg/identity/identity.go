// Package identity models agent identities. An agent is identified by a
// hash of its Ed25519 verify key; the identifier is derived, never assigned.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/isnad-labs/isnad/pkg/crypto"
)

// AgentIDPrefix prefixes every derived agent identifier.
const AgentIDPrefix = "agent:"

// DeriveAgentID computes "agent:" + first_16_hex(sha256(public_key_hex)).
func DeriveAgentID(pubKeyHex string) string {
	sum := sha256.Sum256([]byte(pubKeyHex))
	return AgentIDPrefix + hex.EncodeToString(sum[:])[:16]
}

// IsAgentID reports whether s has the shape of a derived agent identifier.
func IsAgentID(s string) bool {
	if !strings.HasPrefix(s, AgentIDPrefix) {
		return false
	}
	suffix := strings.TrimPrefix(s, AgentIDPrefix)
	if len(suffix) != 16 {
		return false
	}
	_, err := hex.DecodeString(suffix)
	return err == nil
}

// Identity holds a keypair and its derived agent ID. The private seed is
// owned exclusively by the Identity and only leaves through Export or the
// keyfile writers.
type Identity struct {
	signer    *crypto.Ed25519Signer
	agentID   string
	createdAt time.Time
}

// New generates a fresh identity.
func New() (*Identity, error) {
	signer, err := crypto.NewEd25519Signer()
	if err != nil {
		return nil, err
	}
	return fromSigner(signer, time.Now().UTC()), nil
}

// FromSeedHex reconstructs an identity from a hex-encoded 32-byte seed.
func FromSeedHex(seedHex string) (*Identity, error) {
	signer, err := crypto.NewEd25519SignerFromSeedHex(seedHex)
	if err != nil {
		return nil, fmt.Errorf("identity from seed: %w", err)
	}
	return fromSigner(signer, time.Now().UTC()), nil
}

func fromSigner(signer *crypto.Ed25519Signer, createdAt time.Time) *Identity {
	return &Identity{
		signer:    signer,
		agentID:   DeriveAgentID(signer.PublicKey()),
		createdAt: createdAt,
	}
}

// AgentID returns the derived agent identifier.
func (i *Identity) AgentID() string { return i.agentID }

// PublicKey returns the hex-encoded verify key.
func (i *Identity) PublicKey() string { return i.signer.PublicKey() }

// CreatedAt returns the identity creation time.
func (i *Identity) CreatedAt() time.Time { return i.createdAt }

// Sign signs payload bytes with the identity's key.
func (i *Identity) Sign(data []byte) string { return i.signer.Sign(data) }

// Signer exposes the underlying signer for record constructors.
func (i *Identity) Signer() crypto.Signer { return i.signer }

// Export returns the serializable form including the private seed. This is
// the only path through which the seed leaves the Identity.
func (i *Identity) Export() KeyFile {
	return KeyFile{
		AgentID:    i.agentID,
		PublicKey:  i.signer.PublicKey(),
		PrivateKey: i.signer.SeedHex(),
		CreatedAt:  i.createdAt.Format(time.RFC3339),
	}
}
