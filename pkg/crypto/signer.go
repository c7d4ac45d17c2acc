// Package crypto provides the Ed25519 signing primitives used by every
// signed record in the ledger (RFC 8032).
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// SeedSize is the private seed length in bytes.
const SeedSize = ed25519.SeedSize

// PublicKeySize is the verify key length in bytes.
const PublicKeySize = ed25519.PublicKeySize

// SignatureSize is the signature length in bytes.
const SignatureSize = ed25519.SignatureSize

// Signer signs payload bytes and exposes its verify key.
type Signer interface {
	Sign(data []byte) string
	PublicKey() string
	PublicKeyBytes() []byte
}

// Ed25519Signer implements Signer around a 32-byte seed.
type Ed25519Signer struct {
	privKey ed25519.PrivateKey
	pubKey  ed25519.PublicKey
}

// NewEd25519Signer generates a fresh keypair.
func NewEd25519Signer() (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	return &Ed25519Signer{privKey: priv, pubKey: pub}, nil
}

// NewEd25519SignerFromSeed reconstructs a signer from a 32-byte seed.
func NewEd25519SignerFromSeed(seed []byte) (*Ed25519Signer, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("invalid seed size: got %d, want %d", len(seed), SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Ed25519Signer{
		privKey: priv,
		pubKey:  priv.Public().(ed25519.PublicKey),
	}, nil
}

// NewEd25519SignerFromSeedHex reconstructs a signer from a hex-encoded seed.
func NewEd25519SignerFromSeedHex(seedHex string) (*Ed25519Signer, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("invalid seed hex: %w", err)
	}
	return NewEd25519SignerFromSeed(seed)
}

// Sign returns the hex-encoded 64-byte signature over data.
func (s *Ed25519Signer) Sign(data []byte) string {
	return hex.EncodeToString(ed25519.Sign(s.privKey, data))
}

// PublicKey returns the hex-encoded verify key.
func (s *Ed25519Signer) PublicKey() string {
	return hex.EncodeToString(s.pubKey)
}

// PublicKeyBytes returns the raw 32-byte verify key.
func (s *Ed25519Signer) PublicKeyBytes() []byte {
	return s.pubKey
}

// Seed returns the raw private seed. Callers own the secrecy of the result;
// nothing else in the module ever emits it.
func (s *Ed25519Signer) Seed() []byte {
	return s.privKey.Seed()
}

// SeedHex returns the hex-encoded private seed.
func (s *Ed25519Signer) SeedHex() string {
	return hex.EncodeToString(s.privKey.Seed())
}
