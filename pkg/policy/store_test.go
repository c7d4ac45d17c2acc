package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isnad-labs/isnad/pkg/store"
)

func TestRegistrySaveGetDelete(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryBackend()

	r, err := OpenRegistry(ctx, backend)
	require.NoError(t, err)

	min := 0.5
	p := &Policy{
		Name:    "production-gate",
		Default: ActionDeny,
		Rules: []Rule{
			{Name: "trust-floor", Requirement: Requirement{MinTrustScore: &min}, OnFail: ActionDeny},
		},
	}
	require.NoError(t, r.Save(ctx, p))

	got, err := r.Get("production-gate")
	require.NoError(t, err)
	assert.Equal(t, ActionDeny, got.Default)
	assert.Len(t, r.List(), 1)

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, ErrUnknownPolicy)

	require.NoError(t, r.Delete(ctx, "production-gate"))
	_, err = r.Get("production-gate")
	assert.ErrorIs(t, err, ErrUnknownPolicy)
	assert.ErrorIs(t, r.Delete(ctx, "production-gate"), ErrUnknownPolicy)
}

func TestRegistryUpdateAndReload(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryBackend()

	r, err := OpenRegistry(ctx, backend)
	require.NoError(t, err)

	require.NoError(t, r.Save(ctx, &Policy{Name: "gate", Default: ActionAllow}))
	require.NoError(t, r.Save(ctx, &Policy{Name: "gate", Default: ActionRequireReview}))

	got, err := r.Get("gate")
	require.NoError(t, err)
	assert.Equal(t, ActionRequireReview, got.Default)
	assert.Len(t, r.List(), 1, "update replaces, not appends")

	r2, err := OpenRegistry(ctx, backend)
	require.NoError(t, err)
	got, err = r2.Get("gate")
	require.NoError(t, err)
	assert.Equal(t, ActionRequireReview, got.Default, "newest version wins on reload")
}

func TestRegistryRejectsInvalidPolicy(t *testing.T) {
	ctx := context.Background()
	r, err := OpenRegistry(ctx, store.NewMemoryBackend())
	require.NoError(t, err)

	assert.Error(t, r.Save(ctx, &Policy{Default: ActionAllow}), "name required")
	assert.Error(t, r.Save(ctx, &Policy{
		Name:  "bad",
		Rules: []Rule{{Name: "r", OnFail: "EXPLODE"}},
	}))
}
