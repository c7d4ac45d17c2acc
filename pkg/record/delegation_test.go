package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelegationSignAndVerify(t *testing.T) {
	principal := newIdentity(t)
	delegate := newIdentity(t)

	del, err := NewDelegation(principal, delegate.AgentID(), []string{"trade", "review"}, nil, 2)
	require.NoError(t, err)

	assert.NoError(t, del.Verify())
	assert.Equal(t, []string{"review", "trade"}, del.Scopes, "scopes are stored sorted")
	assert.Equal(t, 0, del.Depth)
	assert.Nil(t, del.ParentID)
}

func TestDelegationEmptyScopesInvalid(t *testing.T) {
	principal := newIdentity(t)
	delegate := newIdentity(t)

	_, err := NewDelegation(principal, delegate.AgentID(), nil, nil, 1)
	assert.ErrorIs(t, err, ErrSchema)

	_, err = NewDelegation(principal, delegate.AgentID(), []string{"  "}, nil, 1)
	assert.ErrorIs(t, err, ErrSchema)
}

func TestSubDelegateNarrowing(t *testing.T) {
	principal := newIdentity(t)
	delegate := newIdentity(t)
	grandchild := newIdentity(t)

	parent, err := NewDelegation(principal, delegate.AgentID(), []string{"trade", "review"}, nil, 2)
	require.NoError(t, err)

	child, err := SubDelegate(parent, delegate, grandchild.AgentID(), []string{"review"}, nil, 5)
	require.NoError(t, err)

	assert.NoError(t, child.Verify())
	assert.Equal(t, 1, child.Depth)
	assert.Equal(t, parent.ID, *child.ParentID)
	assert.Less(t, child.Depth, parent.MaxDepth)
	// Proposed max_depth 5 is clamped to the remaining budget.
	assert.Equal(t, 1, child.MaxDepth)
}

func TestSubDelegateScopeEscalationRejected(t *testing.T) {
	principal := newIdentity(t)
	delegate := newIdentity(t)
	target := newIdentity(t)

	parent, err := NewDelegation(principal, delegate.AgentID(), []string{"trade", "review"}, nil, 2)
	require.NoError(t, err)

	_, err = SubDelegate(parent, delegate, target.AgentID(), []string{"admin"}, nil, 1)
	assert.ErrorIs(t, err, ErrDelegationConstraint)
}

func TestSubDelegateWrongSignerRejected(t *testing.T) {
	principal := newIdentity(t)
	delegate := newIdentity(t)
	stranger := newIdentity(t)
	target := newIdentity(t)

	parent, err := NewDelegation(principal, delegate.AgentID(), []string{"review"}, nil, 3)
	require.NoError(t, err)

	_, err = SubDelegate(parent, stranger, target.AgentID(), []string{"review"}, nil, 1)
	assert.ErrorIs(t, err, ErrDelegationConstraint)
}

func TestSubDelegateDepthExhausted(t *testing.T) {
	principal := newIdentity(t)
	delegate := newIdentity(t)
	target := newIdentity(t)

	parent, err := NewDelegation(principal, delegate.AgentID(), []string{"review"}, nil, 1)
	require.NoError(t, err)

	// depth 1 is not < max_depth 1
	_, err = SubDelegate(parent, delegate, target.AgentID(), []string{"review"}, nil, 1)
	assert.ErrorIs(t, err, ErrDelegationConstraint)
}

func TestSubDelegateExpiryClamped(t *testing.T) {
	principal := newIdentity(t)
	delegate := newIdentity(t)
	target := newIdentity(t)

	parentExp := time.Now().Add(1 * time.Hour)
	parent, err := NewDelegation(principal, delegate.AgentID(), []string{"review"}, &parentExp, 2)
	require.NoError(t, err)

	childExp := time.Now().Add(24 * time.Hour)
	child, err := SubDelegate(parent, delegate, target.AgentID(), []string{"review"}, &childExp, 1)
	require.NoError(t, err)

	require.NotNil(t, child.ExpiresAt)
	assert.Equal(t, *parent.ExpiresAt, *child.ExpiresAt, "child expiry clamps to parent")
}

func TestDelegationExpiry(t *testing.T) {
	principal := newIdentity(t)
	delegate := newIdentity(t)

	exp := time.Now().Add(-time.Minute)
	del, err := NewDelegation(principal, delegate.AgentID(), []string{"review"}, &exp, 1)
	require.NoError(t, err)

	assert.True(t, del.ExpiredAt(time.Now()))
	assert.False(t, del.ExpiredAt(time.Now().Add(-2*time.Minute)))
}

func TestKeyRotationVerify(t *testing.T) {
	oldID := newIdentity(t)
	newID := newIdentity(t)

	rot, err := NewKeyRotation(oldID, newID.PublicKey())
	require.NoError(t, err)

	assert.NoError(t, rot.Verify())
	assert.Equal(t, oldID.AgentID(), rot.OldAgentID())
	assert.Equal(t, newID.AgentID(), rot.NewAgentID())

	rot.NewPubkey = oldID.PublicKey()
	assert.ErrorIs(t, rot.Verify(), ErrInvalidSignature)
}

func TestRevocationVerify(t *testing.T) {
	revoker := newIdentity(t)
	target := newIdentity(t)

	rev, err := NewRevocation(revoker, target.AgentID(), "key compromise", "")
	require.NoError(t, err)
	assert.NoError(t, rev.Verify())
	assert.True(t, rev.IsGlobal())

	scoped, err := NewRevocation(revoker, target.AgentID(), "bad deploys", "deployment")
	require.NoError(t, err)
	assert.NoError(t, scoped.Verify())
	assert.False(t, scoped.IsGlobal())

	scoped.Reason = "edited"
	assert.ErrorIs(t, scoped.Verify(), ErrInvalidSignature)
}
