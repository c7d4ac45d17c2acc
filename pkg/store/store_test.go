package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backendUnderTest runs the shared contract suite against every
// implementation that can be constructed hermetically.
func backendsUnderTest(t *testing.T) map[string]Backend {
	t.Helper()

	jsonl, err := NewJSONLBackend(filepath.Join(t.TempDir(), "ledger.jsonl"))
	require.NoError(t, err)

	sqlite, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)

	return map[string]Backend{
		"memory": NewMemoryBackend(),
		"jsonl":  jsonl,
		"sqlite": sqlite,
	}
}

func TestBackendContract(t *testing.T) {
	ctx := context.Background()

	for name, b := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			defer func() { _ = b.Close() }()

			// Put / Get
			require.NoError(t, b.Put(ctx, KindAttestation, "a1", []byte(`{"subject":"agent:x","n":1}`)))
			got, err := b.Get(ctx, KindAttestation, "a1")
			require.NoError(t, err)
			assert.JSONEq(t, `{"subject":"agent:x","n":1}`, string(got))

			// Idempotent re-put: original record wins.
			require.NoError(t, b.Put(ctx, KindAttestation, "a1", []byte(`{"subject":"agent:x","n":2}`)))
			got, err = b.Get(ctx, KindAttestation, "a1")
			require.NoError(t, err)
			assert.JSONEq(t, `{"subject":"agent:x","n":1}`, string(got))

			// Missing record
			_, err = b.Get(ctx, KindAttestation, "nope")
			assert.ErrorIs(t, err, ErrNotFound)

			// Iter preserves insertion order.
			require.NoError(t, b.Put(ctx, KindAttestation, "a2", []byte(`{"subject":"agent:y"}`)))
			all, err := b.Iter(ctx, KindAttestation)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Contains(t, string(all[0]), "agent:x")
			assert.Contains(t, string(all[1]), "agent:y")

			// Secondary index.
			require.NoError(t, b.IndexAdd(ctx, KindAttestation, "by_subject", "agent:x", "a1"))
			require.NoError(t, b.IndexAdd(ctx, KindAttestation, "by_subject", "agent:y", "a2"))
			ids, err := b.IndexLookup(ctx, KindAttestation, "by_subject", "agent:x")
			require.NoError(t, err)
			assert.Equal(t, []string{"a1"}, ids)

			ids, err = b.IndexLookup(ctx, KindAttestation, "by_subject", "agent:unknown")
			require.NoError(t, err)
			assert.Empty(t, ids)

			// Erasure removes every record mentioning the agent.
			require.NoError(t, b.DeleteByAgent(ctx, "agent:x"))
			_, err = b.Get(ctx, KindAttestation, "a1")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = b.Get(ctx, KindAttestation, "a2")
			assert.NoError(t, err, "unrelated records survive erasure")
		})
	}
}

func TestJSONLDurability(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.jsonl")

	b, err := NewJSONLBackend(path)
	require.NoError(t, err)
	require.NoError(t, b.Put(ctx, KindAttestation, "a1", []byte(`{"subject":"agent:x"}`)))
	require.NoError(t, b.IndexAdd(ctx, KindAttestation, "by_subject", "agent:x", "a1"))
	require.NoError(t, b.Close())

	// Reopen: state is rebuilt from the log.
	b2, err := NewJSONLBackend(path)
	require.NoError(t, err)
	defer func() { _ = b2.Close() }()

	got, err := b2.Get(ctx, KindAttestation, "a1")
	require.NoError(t, err)
	assert.Contains(t, string(got), "agent:x")

	ids, err := b2.IndexLookup(ctx, KindAttestation, "by_subject", "agent:x")
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, ids)
}

func TestJSONLTombstonesSurviveRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.jsonl")

	b, err := NewJSONLBackend(path)
	require.NoError(t, err)
	require.NoError(t, b.Put(ctx, KindAttestation, "a1", []byte(`{"subject":"agent:x"}`)))
	require.NoError(t, b.DeleteByAgent(ctx, "agent:x"))
	require.NoError(t, b.Close())

	b2, err := NewJSONLBackend(path)
	require.NoError(t, err)
	defer func() { _ = b2.Close() }()

	_, err = b2.Get(ctx, KindAttestation, "a1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteDurability(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	b, err := NewSQLiteBackend(path)
	require.NoError(t, err)
	require.NoError(t, b.Put(ctx, KindRevocation, "r1", []byte(`{"target_id":"agent:z"}`)))
	require.NoError(t, b.Close())

	b2, err := NewSQLiteBackend(path)
	require.NoError(t, err)
	defer func() { _ = b2.Close() }()

	got, err := b2.Get(ctx, KindRevocation, "r1")
	require.NoError(t, err)
	assert.Contains(t, string(got), "agent:z")
}
