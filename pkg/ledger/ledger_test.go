package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isnad-labs/isnad/pkg/identity"
	"github.com/isnad-labs/isnad/pkg/record"
	"github.com/isnad-labs/isnad/pkg/store"
)

func newIdentity(t *testing.T) *identity.Identity {
	t.Helper()
	id, err := identity.New()
	require.NoError(t, err)
	return id
}

func openLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(context.Background(), store.NewMemoryBackend())
	require.NoError(t, err)
	return l
}

func TestAddIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)
	witness := newIdentity(t)
	subject := newIdentity(t)

	att, err := record.NewAttestation(witness, subject.AgentID(), "translation", "job-1 ok")
	require.NoError(t, err)

	added, err := l.Add(ctx, att)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = l.Add(ctx, att)
	require.NoError(t, err)
	assert.False(t, added, "duplicate admission must be a silent no-op")
	assert.Equal(t, 1, l.Size())
}

func TestAddRejectsTamperedAttestation(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)
	witness := newIdentity(t)

	att, err := record.NewAttestation(witness, newIdentity(t).AgentID(), "translation", "ok")
	require.NoError(t, err)
	att.Evidence = "five stars, would attest again"

	added, err := l.Add(ctx, att)
	require.NoError(t, err, "bad records reject, they do not error")
	assert.False(t, added)
	assert.Equal(t, 0, l.Size())
}

func TestAddRejectsForgedWitness(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)
	witness := newIdentity(t)
	impostor := newIdentity(t)

	att, err := record.NewAttestation(witness, newIdentity(t).AgentID(), "translation", "ok")
	require.NoError(t, err)
	att.WitnessPubkey = impostor.PublicKey()

	added, err := l.Add(ctx, att)
	require.NoError(t, err)
	assert.False(t, added)
}

func TestQueryIndexes(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)
	w1, w2 := newIdentity(t), newIdentity(t)
	subject := newIdentity(t)

	for _, w := range []*identity.Identity{w1, w2} {
		att, err := record.NewAttestation(w, subject.AgentID(), "translation", "ok")
		require.NoError(t, err)
		added, err := l.Add(ctx, att)
		require.NoError(t, err)
		require.True(t, added)
	}

	assert.Len(t, l.BySubject(subject.AgentID()), 2)
	assert.Len(t, l.ByWitness(w1.AgentID()), 1)
	assert.Len(t, l.ByWitness(w2.AgentID()), 1)
	assert.Empty(t, l.BySubject(w1.AgentID()))

	stats := l.Stats()
	assert.Equal(t, 2, stats.Count)
	assert.Equal(t, 1, stats.Subjects)
	assert.Equal(t, 2, stats.Witnesses)
}

func TestRevocationBlocksNewAdmissions(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)
	witness := newIdentity(t)
	subject := newIdentity(t)
	authority := newIdentity(t)

	before, err := record.NewAttestationAt(witness, subject.AgentID(), "translation", "before", time.Now())
	require.NoError(t, err)
	added, err := l.Add(ctx, before)
	require.NoError(t, err)
	require.True(t, added)

	rev, err := record.NewRevocation(authority, subject.AgentID(), "compromised", "")
	require.NoError(t, err)
	require.NoError(t, l.Revoke(ctx, rev))

	after, err := record.NewAttestation(witness, subject.AgentID(), "translation", "after")
	require.NoError(t, err)
	added, err = l.Add(ctx, after)
	require.NoError(t, err)
	assert.False(t, added, "globally revoked subjects admit nothing")

	// The earlier record stays on the ledger; scoring masks it instead.
	assert.Equal(t, 1, l.Size())
	assert.True(t, l.IsRevoked(subject.AgentID(), "translation"))
	assert.True(t, l.IsRevoked(subject.AgentID(), ""))
}

func TestScopedRevocation(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)
	witness := newIdentity(t)
	subject := newIdentity(t)
	authority := newIdentity(t)

	rev, err := record.NewRevocation(authority, subject.AgentID(), "bad at math", "arithmetic")
	require.NoError(t, err)
	require.NoError(t, l.Revoke(ctx, rev))

	assert.True(t, l.IsRevoked(subject.AgentID(), "arithmetic"))
	assert.False(t, l.IsRevoked(subject.AgentID(), "translation"))
	assert.False(t, l.IsRevoked(subject.AgentID(), ""), "scoped revocation is not global")

	// Only a global revocation blocks admission; a scope-revoked subject
	// stays attestable even within the revoked scope. The revocation
	// suppresses that scope's score instead.
	inScope, err := record.NewAttestation(witness, subject.AgentID(), "arithmetic", "2+2=4")
	require.NoError(t, err)
	added, err := l.Add(ctx, inScope)
	require.NoError(t, err)
	assert.True(t, added, "scoped revocation never blocks admission")

	elsewhere, err := record.NewAttestation(witness, subject.AgentID(), "translation", "bonjour")
	require.NoError(t, err)
	added, err = l.Add(ctx, elsewhere)
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, 2, l.Size())
}

func TestRevokeRejectsBadSignature(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)
	authority := newIdentity(t)

	rev, err := record.NewRevocation(authority, "agent:0000000000000000", "x", "")
	require.NoError(t, err)
	rev.Reason = "tampered"

	assert.ErrorIs(t, l.Revoke(ctx, rev), record.ErrInvalidSignature)
	assert.False(t, l.IsRevoked("agent:0000000000000000", ""))
}

func TestLedgerReloadFromBackend(t *testing.T) {
	ctx := context.Background()
	backend, err := store.NewJSONLBackend(filepath.Join(t.TempDir(), "ledger.jsonl"))
	require.NoError(t, err)

	l, err := Open(ctx, backend)
	require.NoError(t, err)

	witness := newIdentity(t)
	subject := newIdentity(t)
	att, err := record.NewAttestation(witness, subject.AgentID(), "translation", "ok")
	require.NoError(t, err)
	added, err := l.Add(ctx, att)
	require.NoError(t, err)
	require.True(t, added)

	rev, err := record.NewRevocation(witness, "agent:aaaaaaaaaaaaaaaa", "gone", "")
	require.NoError(t, err)
	require.NoError(t, l.Revoke(ctx, rev))

	// Fresh ledger over the same log sees the same state.
	l2, err := Open(ctx, backend)
	require.NoError(t, err)
	assert.Equal(t, 1, l2.Size())
	assert.NotNil(t, l2.Get(att.ID))
	assert.True(t, l2.IsRevoked("agent:aaaaaaaaaaaaaaaa", ""))

	// And re-adding the persisted attestation stays idempotent.
	added, err = l2.Add(ctx, att)
	require.NoError(t, err)
	assert.False(t, added)
}

func TestErase(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)
	witness := newIdentity(t)
	target := newIdentity(t)
	other := newIdentity(t)

	attTarget, err := record.NewAttestation(witness, target.AgentID(), "translation", "ok")
	require.NoError(t, err)
	attOther, err := record.NewAttestation(witness, other.AgentID(), "translation", "ok")
	require.NoError(t, err)
	for _, att := range []*record.Attestation{attTarget, attOther} {
		added, err := l.Add(ctx, att)
		require.NoError(t, err)
		require.True(t, added)
	}

	require.NoError(t, l.Erase(ctx, target.AgentID()))

	assert.Equal(t, 1, l.Size())
	assert.Nil(t, l.Get(attTarget.ID))
	assert.NotNil(t, l.Get(attOther.ID))
	assert.Empty(t, l.BySubject(target.AgentID()))
	assert.Len(t, l.BySubject(other.AgentID()), 1)
}

func TestPublisherReceivesEvents(t *testing.T) {
	ctx := context.Background()

	var topics []string
	pub := publisherFunc(func(topic string, _ map[string]interface{}) {
		topics = append(topics, topic)
	})

	l, err := Open(ctx, store.NewMemoryBackend(), WithPublisher(pub))
	require.NoError(t, err)

	witness := newIdentity(t)
	att, err := record.NewAttestation(witness, newIdentity(t).AgentID(), "translation", "ok")
	require.NoError(t, err)
	_, err = l.Add(ctx, att)
	require.NoError(t, err)

	rev, err := record.NewRevocation(witness, "agent:bbbbbbbbbbbbbbbb", "x", "")
	require.NoError(t, err)
	require.NoError(t, l.Revoke(ctx, rev))

	assert.Equal(t, []string{"attestation.added", "revocation.added"}, topics)
}

type publisherFunc func(string, map[string]interface{})

func (f publisherFunc) Publish(topic string, payload map[string]interface{}) { f(topic, payload) }
