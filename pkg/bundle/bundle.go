// Package bundle implements the portable ledger snapshot format
// "isnad-bundle/v1": an optionally signed slice of attestations that can
// be exchanged between nodes and re-verified on import.
package bundle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/isnad-labs/isnad/pkg/canonicalize"
	"github.com/isnad-labs/isnad/pkg/crypto"
	"github.com/isnad-labs/isnad/pkg/identity"
	"github.com/isnad-labs/isnad/pkg/ledger"
	"github.com/isnad-labs/isnad/pkg/merkle"
	"github.com/isnad-labs/isnad/pkg/record"
)

// Version is the only bundle format this package reads or writes.
const Version = "isnad-bundle/v1"

// ErrIncompatible marks bundles that cannot be imported: unknown version,
// undecodable body, or a failing envelope signature.
var ErrIncompatible = fmt.Errorf("bundle: incompatible")

// Bundle is a portable snapshot of a ledger slice.
type Bundle struct {
	Version      string                 `json:"version"`
	CreatedAt    string                 `json:"created_at"`
	Metadata     map[string]interface{} `json:"metadata"`
	Attestations []*record.Attestation  `json:"attestations"`
	Stats        ledger.Stats           `json:"stats"`
	SignerPubkey string                 `json:"signer_pubkey,omitempty"`
	Signature    string                 `json:"signature,omitempty"`
}

// signedEnvelope is the portion of a bundle covered by the signature.
// Everything else (stats, created_at) is advisory.
type signedEnvelope struct {
	Attestations []*record.Attestation  `json:"attestations"`
	Metadata     map[string]interface{} `json:"metadata"`
}

// Export snapshots the ledger into a bundle. signer may be nil for an
// unsigned bundle; metadata may be nil. The Merkle root over the
// attestation IDs in chain order goes into metadata, so a signed bundle
// commits to it.
func Export(l *ledger.Ledger, signer *identity.Identity, metadata map[string]interface{}) (*Bundle, error) {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	atts := l.All()
	ids := make([]string, len(atts))
	for i, att := range atts {
		ids[i] = att.ID
	}
	metadata["merkle_root"] = merkle.RootOf(ids)

	b := &Bundle{
		Version:      Version,
		CreatedAt:    record.FormatTimestamp(time.Now()),
		Metadata:     metadata,
		Attestations: atts,
		Stats:        l.Stats(),
	}
	if signer != nil {
		payload, err := b.signedPayload()
		if err != nil {
			return nil, err
		}
		b.SignerPubkey = signer.PublicKey()
		b.Signature = signer.Sign(payload)
	}
	return b, nil
}

func (b *Bundle) signedPayload() ([]byte, error) {
	atts := b.Attestations
	if atts == nil {
		atts = []*record.Attestation{}
	}
	return canonicalize.JCS(signedEnvelope{Attestations: atts, Metadata: b.Metadata})
}

// VerifySignature checks the envelope signature. Unsigned bundles fail.
func (b *Bundle) VerifySignature() error {
	if b.Signature == "" || b.SignerPubkey == "" {
		return fmt.Errorf("%w: bundle is not signed", ErrIncompatible)
	}
	payload, err := b.signedPayload()
	if err != nil {
		return err
	}
	ok, err := crypto.Verify(b.SignerPubkey, b.Signature, payload)
	if err != nil || !ok {
		return fmt.Errorf("%w: envelope signature does not verify", ErrIncompatible)
	}
	return nil
}

// VerifyMerkleRoot recomputes the content fingerprint and compares it to
// metadata["merkle_root"]. Bundles without one pass vacuously; external
// producers are not required to compute it.
func (b *Bundle) VerifyMerkleRoot() error {
	claimed, ok := b.Metadata["merkle_root"].(string)
	if !ok || claimed == "" {
		return nil
	}
	ids := make([]string, len(b.Attestations))
	for i, att := range b.Attestations {
		ids[i] = att.ID
	}
	if got := merkle.RootOf(ids); got != claimed {
		return fmt.Errorf("%w: merkle root mismatch", ErrIncompatible)
	}
	return nil
}

// Encode serializes the bundle as JSON.
func (b *Bundle) Encode() ([]byte, error) {
	return json.Marshal(b)
}

// Decode parses a bundle, rejecting unknown versions.
func Decode(data []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncompatible, err)
	}
	if b.Version != Version {
		return nil, fmt.Errorf("%w: unknown version %q", ErrIncompatible, b.Version)
	}
	return &b, nil
}

// ImportResult reports what an import admitted.
type ImportResult struct {
	Added   int
	Skipped int
}

// Import admits a bundle's attestations into the ledger. When
// verifySignature is set the envelope signature is checked before any
// record is touched. Individual attestations that fail verification (or
// are duplicates or revoked) are skipped, never fatal.
func Import(ctx context.Context, l *ledger.Ledger, b *Bundle, verifySignature bool) (ImportResult, error) {
	var res ImportResult
	if b.Version != Version {
		return res, fmt.Errorf("%w: unknown version %q", ErrIncompatible, b.Version)
	}
	if verifySignature {
		if err := b.VerifySignature(); err != nil {
			return res, err
		}
	}
	if err := b.VerifyMerkleRoot(); err != nil {
		return res, err
	}
	for _, att := range b.Attestations {
		added, err := l.Add(ctx, att)
		if err != nil {
			return res, err
		}
		if added {
			res.Added++
		} else {
			res.Skipped++
		}
	}
	return res, nil
}
