package scoring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isnad-labs/isnad/pkg/identity"
	"github.com/isnad-labs/isnad/pkg/ledger"
	"github.com/isnad-labs/isnad/pkg/record"
	"github.com/isnad-labs/isnad/pkg/store"
)

type fixture struct {
	ledger *ledger.Ledger
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	l, err := ledger.Open(context.Background(), store.NewMemoryBackend())
	require.NoError(t, err)
	return &fixture{ledger: l, engine: NewEngine(l)}
}

func (f *fixture) attest(t *testing.T, witness *identity.Identity, subject, task string) {
	t.Helper()
	att, err := record.NewAttestation(witness, subject, task, "ok")
	require.NoError(t, err)
	added, err := f.ledger.Add(context.Background(), att)
	require.NoError(t, err)
	require.True(t, added)
}

func newIdentity(t *testing.T) *identity.Identity {
	t.Helper()
	id, err := identity.New()
	require.NoError(t, err)
	return id
}

func TestTriangleScoring(t *testing.T) {
	f := newFixture(t)
	alice := newIdentity(t)
	bob := newIdentity(t)
	carol := newIdentity(t)

	f.attest(t, alice, bob.AgentID(), "code-review")
	f.attest(t, bob, carol.AgentID(), "service-deployment")
	f.attest(t, alice, carol.AgentID(), "integration-testing")

	assert.InDelta(t, 0.2, f.engine.TrustScore(bob.AgentID(), ""), 1e-9)
	assert.InDelta(t, 0.4, f.engine.TrustScore(carol.AgentID(), ""), 1e-9)
	assert.InDelta(t, 0.7, f.engine.ChainTrust(alice.AgentID(), carol.AgentID(), 0), 1e-9)
}

func TestSameWitnessDecay(t *testing.T) {
	f := newFixture(t)
	w := newIdentity(t)
	s := newIdentity(t)

	f.attest(t, w, s.AgentID(), "translation")
	f.attest(t, w, s.AgentID(), "summarize")
	f.attest(t, w, s.AgentID(), "code-review")

	// 0.2 + 0.2*0.5 + 0.2*0.25
	assert.InDelta(t, 0.35, f.engine.TrustScore(s.AgentID(), ""), 1e-9)
}

func TestScopeFilter(t *testing.T) {
	f := newFixture(t)
	alice := newIdentity(t)
	bob := newIdentity(t)
	carol := newIdentity(t)

	f.attest(t, alice, bob.AgentID(), "code-review")
	f.attest(t, bob, carol.AgentID(), "service-deployment")
	f.attest(t, alice, carol.AgentID(), "integration-testing")

	assert.Zero(t, f.engine.TrustScore(carol.AgentID(), "code"))
	assert.InDelta(t, 0.2, f.engine.TrustScore(carol.AgentID(), "deploy"), 1e-9)
}

func TestScopeFilterRecountsWitnesses(t *testing.T) {
	f := newFixture(t)
	w := newIdentity(t)
	s := newIdentity(t)

	// Two attestations outside the scope precede one inside it. The
	// in-scope attestation is the witness's first within the filtered
	// set, so it earns full weight.
	f.attest(t, w, s.AgentID(), "translation")
	f.attest(t, w, s.AgentID(), "summarize")
	f.attest(t, w, s.AgentID(), "code-review")

	assert.InDelta(t, 0.2, f.engine.TrustScore(s.AgentID(), "code"), 1e-9)
}

func TestRevocationWipe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := newIdentity(t)
	bob := newIdentity(t)
	carol := newIdentity(t)

	f.attest(t, alice, bob.AgentID(), "code-review")
	f.attest(t, bob, carol.AgentID(), "service-deployment")
	f.attest(t, alice, carol.AgentID(), "integration-testing")

	rev, err := record.NewRevocation(alice, carol.AgentID(), "compromised", "")
	require.NoError(t, err)
	require.NoError(t, f.ledger.Revoke(ctx, rev))

	assert.Zero(t, f.engine.TrustScore(carol.AgentID(), ""))
	assert.InDelta(t, 0.2, f.engine.TrustScore(bob.AgentID(), ""), 1e-9, "unrelated agents keep their score")

	att, err := record.NewAttestation(alice, carol.AgentID(), "translation", "too late")
	require.NoError(t, err)
	added, err := f.ledger.Add(ctx, att)
	require.NoError(t, err)
	assert.False(t, added)
}

func TestScopedRevocationMasksOnlyThatScope(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	w := newIdentity(t)
	s := newIdentity(t)

	f.attest(t, w, s.AgentID(), "translation")
	f.attest(t, newIdentity(t), s.AgentID(), "code-review")

	rev, err := record.NewRevocation(w, s.AgentID(), "mistranslation", "translation")
	require.NoError(t, err)
	require.NoError(t, f.ledger.Revoke(ctx, rev))

	assert.Zero(t, f.engine.TrustScore(s.AgentID(), "translation"))
	assert.InDelta(t, 0.2, f.engine.TrustScore(s.AgentID(), "code-review"), 1e-9)
}

func TestTrustScoreSkipsRevokedAttestations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	w1 := newIdentity(t)
	w2 := newIdentity(t)
	s := newIdentity(t)

	first, err := record.NewAttestation(w1, s.AgentID(), "translation", "ok")
	require.NoError(t, err)
	added, err := f.ledger.Add(ctx, first)
	require.NoError(t, err)
	require.True(t, added)
	f.attest(t, w2, s.AgentID(), "code-review")

	// Revoking one attestation by ID subtracts its contribution without
	// touching the subject's other attestations.
	rev, err := record.NewRevocation(w1, first.ID, "retracted", "")
	require.NoError(t, err)
	require.NoError(t, f.ledger.Revoke(ctx, rev))

	assert.InDelta(t, 0.2, f.engine.TrustScore(s.AgentID(), ""), 1e-9)
	assert.InDelta(t, 0.2, f.engine.TrustScore(s.AgentID(), "code-review"), 1e-9)
}

func TestScoreIsCapped(t *testing.T) {
	f := newFixture(t)
	s := newIdentity(t)

	for i := 0; i < 10; i++ {
		f.attest(t, newIdentity(t), s.AgentID(), "translation")
	}
	assert.Equal(t, 1.0, f.engine.TrustScore(s.AgentID(), ""))
}

func TestChainTrustEdgeCases(t *testing.T) {
	f := newFixture(t)
	a := newIdentity(t)
	b := newIdentity(t)

	assert.Equal(t, 1.0, f.engine.ChainTrust(a.AgentID(), a.AgentID(), 0))
	assert.Zero(t, f.engine.ChainTrust(a.AgentID(), b.AgentID(), 0), "disconnected pairs score zero")
	assert.Zero(t, f.engine.ChainTrust("agent:ffffffffffffffff", b.AgentID(), 0), "unknown source scores zero")
}

func TestChainTrustHopBudget(t *testing.T) {
	f := newFixture(t)

	// A chain a0 -> a1 -> ... -> a6.
	ids := make([]*identity.Identity, 7)
	for i := range ids {
		ids[i] = newIdentity(t)
	}
	for i := 0; i < len(ids)-1; i++ {
		f.attest(t, ids[i], ids[i+1].AgentID(), "handoff")
	}

	src, far := ids[0].AgentID(), ids[6].AgentID()
	assert.Zero(t, f.engine.ChainTrust(src, far, 5), "6 hops exceed the budget")
	assert.InDelta(t, 0.7*0.7*0.7*0.7*0.7*0.7, f.engine.ChainTrust(src, far, 6), 1e-9)

	// Monotone in max_hops.
	near := ids[3].AgentID()
	for hops := 3; hops <= 6; hops++ {
		assert.InDelta(t, 0.7*0.7*0.7, f.engine.ChainTrust(src, near, hops), 1e-9)
	}
}

func TestChainTrustCycleTerminates(t *testing.T) {
	f := newFixture(t)
	a := newIdentity(t)
	b := newIdentity(t)

	f.attest(t, a, b.AgentID(), "ping")
	f.attest(t, b, a.AgentID(), "pong")

	assert.InDelta(t, 0.7, f.engine.ChainTrust(a.AgentID(), b.AgentID(), 0), 1e-9)
}
