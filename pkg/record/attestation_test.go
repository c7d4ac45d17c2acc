package record

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isnad-labs/isnad/pkg/canonicalize"
	"github.com/isnad-labs/isnad/pkg/identity"
)

func newIdentity(t *testing.T) *identity.Identity {
	t.Helper()
	id, err := identity.New()
	require.NoError(t, err)
	return id
}

func TestAttestationSignAndVerify(t *testing.T) {
	witness := newIdentity(t)
	subject := newIdentity(t)

	att, err := NewAttestation(witness, subject.AgentID(), "code-review", "https://example.com/pr/1")
	require.NoError(t, err)

	assert.NoError(t, att.Verify())
	assert.Equal(t, witness.AgentID(), att.Witness)
	assert.Len(t, att.ID, 16)
}

func TestAttestationIDIsDeterministic(t *testing.T) {
	witness := newIdentity(t)
	subject := newIdentity(t)

	a1, err := NewAttestation(witness, subject.AgentID(), "deploy", "")
	require.NoError(t, err)

	// Same payload fields always hash to the same ID.
	a2 := *a1
	id, err := a2.ComputeID()
	require.NoError(t, err)
	assert.Equal(t, a1.ID, id)

	payload, err := a1.CanonicalPayload()
	require.NoError(t, err)
	assert.Equal(t, canonicalize.ShortHash(payload), a1.ID)
}

func TestAttestationPayloadShape(t *testing.T) {
	witness := newIdentity(t)
	subject := newIdentity(t)

	att, err := NewAttestation(witness, subject.AgentID(), "integration-testing", "")
	require.NoError(t, err)

	payload, err := att.CanonicalPayload()
	require.NoError(t, err)

	s := string(payload)
	assert.True(t, strings.HasPrefix(s, `{"evidence":`), "keys must be ASCII-sorted: %s", s)
	assert.NotContains(t, s, "signature")
	assert.NotContains(t, s, "witness_pubkey")
	assert.NotContains(t, s, "attestation_id")
	assert.Contains(t, s, "+00:00")
}

func TestAttestationTamperInvalidatesVerify(t *testing.T) {
	witness := newIdentity(t)
	subject := newIdentity(t)
	other := newIdentity(t)

	base, err := NewAttestation(witness, subject.AgentID(), "code-review", "uri")
	require.NoError(t, err)

	mutations := map[string]func(*Attestation){
		"subject":   func(a *Attestation) { a.Subject = other.AgentID() },
		"witness":   func(a *Attestation) { a.Witness = other.AgentID() },
		"task":      func(a *Attestation) { a.Task = "admin" },
		"evidence":  func(a *Attestation) { a.Evidence = "other" },
		"timestamp": func(a *Attestation) { a.Timestamp = "2020-01-01T00:00:00+00:00" },
	}

	for field, mutate := range mutations {
		tampered := *base
		mutate(&tampered)
		assert.Error(t, tampered.Verify(), "mutating %s must invalidate", field)
	}
}

func TestAttestationWrongKeyRejected(t *testing.T) {
	witness := newIdentity(t)
	subject := newIdentity(t)
	imposter := newIdentity(t)

	att, err := NewAttestation(witness, subject.AgentID(), "code-review", "")
	require.NoError(t, err)

	// Swap in a key that verifies nothing.
	att.WitnessPubkey = imposter.PublicKey()
	assert.ErrorIs(t, att.Verify(), ErrInvalidSignature)
}

func TestAttestationRejectsBadSubject(t *testing.T) {
	witness := newIdentity(t)
	_, err := NewAttestation(witness, "not-an-agent", "task", "")
	assert.ErrorIs(t, err, ErrSchema)
}

func TestTimestampNormalization(t *testing.T) {
	got, err := NormalizeTimestamp("2026-01-01T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01T00:00:00+00:00", got)

	got, err = NormalizeTimestamp("2026-01-01T05:30:00+05:30")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01T00:00:00+00:00", got)

	_, err = NormalizeTimestamp("yesterday")
	assert.ErrorIs(t, err, ErrSchema)
}
