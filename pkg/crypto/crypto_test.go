package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	s, err := NewEd25519Signer()
	require.NoError(t, err)

	msg := []byte(`{"subject":"agent:a","witness":"agent:b"}`)
	sig := s.Sign(msg)

	ok, err := Verify(s.PublicKey(), sig, msg)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Verify(s.PublicKey(), sig, []byte("tampered"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSignerFromSeedIsDeterministic(t *testing.T) {
	s1, err := NewEd25519Signer()
	require.NoError(t, err)

	s2, err := NewEd25519SignerFromSeed(s1.Seed())
	require.NoError(t, err)

	assert.Equal(t, s1.PublicKey(), s2.PublicKey())
	msg := []byte("same seed, same signature")
	assert.Equal(t, s1.Sign(msg), s2.Sign(msg))
}

func TestSignerFromSeedHex(t *testing.T) {
	s1, err := NewEd25519Signer()
	require.NoError(t, err)

	s2, err := NewEd25519SignerFromSeedHex(s1.SeedHex())
	require.NoError(t, err)
	assert.Equal(t, s1.PublicKey(), s2.PublicKey())

	_, err = NewEd25519SignerFromSeedHex("zz")
	assert.Error(t, err)

	_, err = NewEd25519SignerFromSeed([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestVerifyMalformedInputs(t *testing.T) {
	s, err := NewEd25519Signer()
	require.NoError(t, err)
	sig := s.Sign([]byte("x"))

	_, err = Verify("not-hex", sig, []byte("x"))
	assert.Error(t, err)

	_, err = Verify(s.PublicKey(), "not-hex", []byte("x"))
	assert.Error(t, err)

	_, err = Verify("abcd", sig, []byte("x"))
	assert.Error(t, err, "short key must be rejected")
}
