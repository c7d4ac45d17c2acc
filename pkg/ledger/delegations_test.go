package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isnad-labs/isnad/pkg/record"
)

func TestDelegationChainVerification(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)
	now := time.Now()

	root := newIdentity(t)
	mid := newIdentity(t)
	leaf := newIdentity(t)

	rootDel, err := record.NewDelegation(root, mid.AgentID(), []string{"translation", "summarize"}, nil, 3)
	require.NoError(t, err)
	require.NoError(t, l.Delegations().Add(ctx, rootDel))

	childDel, err := record.SubDelegate(rootDel, mid, leaf.AgentID(), []string{"translation"}, nil, 5)
	require.NoError(t, err)
	require.NoError(t, l.Delegations().Add(ctx, childDel))

	chain, err := l.Delegations().VerifyChain(childDel.ID, now)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, rootDel.ID, chain[0].ID, "chains are returned root-first")
	assert.Equal(t, childDel.ID, chain[1].ID)

	assert.True(t, l.Delegations().IsAuthorized(leaf.AgentID(), "translation", now))
	assert.False(t, l.Delegations().IsAuthorized(leaf.AgentID(), "summarize", now),
		"sub-delegation narrowed away summarize")
	assert.True(t, l.Delegations().IsAuthorized(mid.AgentID(), "summarize", now))
}

func TestDelegationUnknownParent(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)

	root := newIdentity(t)
	mid := newIdentity(t)

	rootDel, err := record.NewDelegation(root, mid.AgentID(), []string{"translation"}, nil, 3)
	require.NoError(t, err)
	child, err := record.SubDelegate(rootDel, mid, newIdentity(t).AgentID(), []string{"translation"}, nil, 1)
	require.NoError(t, err)

	// Child arrives before its parent was admitted.
	assert.ErrorIs(t, l.Delegations().Add(ctx, child), ErrUnknownDelegation)
}

func TestDelegationRevocationSeversChain(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)
	now := time.Now()

	root := newIdentity(t)
	mid := newIdentity(t)
	leaf := newIdentity(t)
	authority := newIdentity(t)

	rootDel, err := record.NewDelegation(root, mid.AgentID(), []string{"translation"}, nil, 3)
	require.NoError(t, err)
	require.NoError(t, l.Delegations().Add(ctx, rootDel))
	childDel, err := record.SubDelegate(rootDel, mid, leaf.AgentID(), []string{"translation"}, nil, 1)
	require.NoError(t, err)
	require.NoError(t, l.Delegations().Add(ctx, childDel))

	require.True(t, l.Delegations().IsAuthorized(leaf.AgentID(), "translation", now))

	rev, err := record.NewRevocation(authority, rootDel.ID, "grant withdrawn", "")
	require.NoError(t, err)
	require.NoError(t, l.Revoke(ctx, rev))

	// Revoking the root grant severs every delegation below it.
	_, err = l.Delegations().VerifyChain(childDel.ID, now)
	assert.ErrorIs(t, err, record.ErrDelegationConstraint)
	assert.False(t, l.Delegations().IsAuthorized(leaf.AgentID(), "translation", now))
	assert.False(t, l.Delegations().IsAuthorized(mid.AgentID(), "translation", now))
}

func TestDelegationExpiryClampsChain(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)

	root := newIdentity(t)
	mid := newIdentity(t)
	leaf := newIdentity(t)

	exp := time.Now().Add(time.Hour)
	rootDel, err := record.NewDelegation(root, mid.AgentID(), []string{"translation"}, &exp, 3)
	require.NoError(t, err)
	require.NoError(t, l.Delegations().Add(ctx, rootDel))

	// Child asks for a later expiry; it is clamped to the parent's.
	later := exp.Add(24 * time.Hour)
	childDel, err := record.SubDelegate(rootDel, mid, leaf.AgentID(), []string{"translation"}, &later, 1)
	require.NoError(t, err)
	require.NoError(t, l.Delegations().Add(ctx, childDel))

	assert.True(t, l.Delegations().IsAuthorized(leaf.AgentID(), "translation", time.Now()))
	assert.False(t, l.Delegations().IsAuthorized(leaf.AgentID(), "translation", exp.Add(time.Minute)))
}

func TestDelegationRegistryRejectsEscalation(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)

	root := newIdentity(t)
	mid := newIdentity(t)
	leaf := newIdentity(t)

	rootDel, err := record.NewDelegation(root, mid.AgentID(), []string{"translation"}, nil, 3)
	require.NoError(t, err)
	require.NoError(t, l.Delegations().Add(ctx, rootDel))

	// Hand-build a child that claims a scope the parent never granted.
	forged, err := record.NewDelegation(mid, leaf.AgentID(), []string{"admin"}, nil, 1)
	require.NoError(t, err)
	forged.ParentID = &rootDel.ID
	forged.Depth = 1
	payload, err := forged.CanonicalPayload()
	require.NoError(t, err)
	forged.Signature = mid.Sign(payload)
	forged.ID = ""

	err = l.Delegations().Add(ctx, forged)
	assert.ErrorIs(t, err, record.ErrDelegationConstraint)
}

func TestKeyRotationLineage(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)

	gen1 := newIdentity(t)
	gen2 := newIdentity(t)
	gen3 := newIdentity(t)

	rot1, err := record.NewKeyRotation(gen1, gen2.PublicKey())
	require.NoError(t, err)
	require.NoError(t, l.Rotations().Add(ctx, rot1))

	rot2, err := record.NewKeyRotation(gen2, gen3.PublicKey())
	require.NoError(t, err)
	require.NoError(t, l.Rotations().Add(ctx, rot2))

	assert.Equal(t, gen3.AgentID(), l.Rotations().Current(gen1.AgentID()))
	assert.Equal(t, gen3.AgentID(), l.Rotations().Current(gen2.AgentID()))
	assert.Equal(t, gen3.AgentID(), l.Rotations().Current(gen3.AgentID()))
	assert.True(t, l.Rotations().SameLineage(gen1.AgentID(), gen3.AgentID()))

	history := l.Rotations().History(gen3.AgentID())
	assert.Equal(t, []string{gen1.AgentID(), gen2.AgentID(), gen3.AgentID()}, history)
}

func TestKeyRotationSingleUse(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)

	gen1 := newIdentity(t)
	gen2 := newIdentity(t)
	rival := newIdentity(t)

	rot, err := record.NewKeyRotation(gen1, gen2.PublicKey())
	require.NoError(t, err)
	require.NoError(t, l.Rotations().Add(ctx, rot))
	require.NoError(t, l.Rotations().Add(ctx, rot), "same rotation twice is a no-op")

	conflicting, err := record.NewKeyRotation(gen1, rival.PublicKey())
	require.NoError(t, err)
	assert.Error(t, l.Rotations().Add(ctx, conflicting), "a key rotates away at most once")
}
