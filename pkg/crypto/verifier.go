package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
)

// Verify checks a hex-encoded signature against a hex-encoded public key.
// A malformed key or signature is an error; a well-formed signature that
// does not match returns (false, nil).
func Verify(pubKeyHex, sigHex string, data []byte) (bool, error) {
	pubKey, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return false, fmt.Errorf("invalid public key hex: %w", err)
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(pubKey) != PublicKeySize {
		return false, fmt.Errorf("invalid public key size: %d", len(pubKey))
	}
	if len(sig) != SignatureSize {
		return false, fmt.Errorf("invalid signature size: %d", len(sig))
	}
	return ed25519.Verify(ed25519.PublicKey(pubKey), data, sig), nil
}

// VerifyBytes checks a raw signature against a raw public key.
func VerifyBytes(pubKey, data, sig []byte) bool {
	if len(pubKey) != PublicKeySize || len(sig) != SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pubKey), data, sig)
}
