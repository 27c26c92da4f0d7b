package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDHSymmetry(t *testing.T) {
	aPriv, aPub, err := GenerateX25519()
	require.NoError(t, err)
	bPriv, bPub, err := GenerateX25519()
	require.NoError(t, err)

	ab, err := DH(aPriv, bPub)
	require.NoError(t, err)
	ba, err := DH(bPriv, aPub)
	require.NoError(t, err)

	require.Equal(t, ab, ba, "both sides must agree on the shared secret")
}

func TestSessionKeyAndSASAgree(t *testing.T) {
	aPriv, aPub, err := GenerateX25519()
	require.NoError(t, err)
	bPriv, bPub, err := GenerateX25519()
	require.NoError(t, err)

	sharedA, err := DH(aPriv, bPub)
	require.NoError(t, err)
	sharedB, err := DH(bPriv, aPub)
	require.NoError(t, err)

	keyA, err := DeriveSessionKey(sharedA)
	require.NoError(t, err)
	keyB, err := DeriveSessionKey(sharedB)
	require.NoError(t, err)
	require.Equal(t, keyA, keyB)
	require.Len(t, keyA, KeyBytes)

	sasA, err := VerificationCode(keyA)
	require.NoError(t, err)
	sasB, err := VerificationCode(keyB)
	require.NoError(t, err)
	require.Equal(t, sasA, sasB)
	require.Len(t, sasA, 6)
	for _, c := range sasA {
		require.True(t, c >= '0' && c <= '9', "SAS must be digits, got %q", sasA)
	}
}

func TestSessionKeyDiffersAcrossPairings(t *testing.T) {
	var s1, s2 [32]byte
	s1[0] = 1
	s2[0] = 2
	k1, err := DeriveSessionKey(s1)
	require.NoError(t, err)
	k2, err := DeriveSessionKey(s2)
	require.NoError(t, err)
	require.NotEqual(t, k1, k2)
}

func TestSealOpenRoundTrip(t *testing.T) {
	key, err := GenerateRootKey()
	require.NoError(t, err)

	plaintext := []byte("the root key payload")
	ct, err := Seal(key, plaintext)
	require.NoError(t, err)
	require.NotContains(t, string(ct), string(plaintext))

	pt, err := Open(key, ct)
	require.NoError(t, err)
	require.Equal(t, plaintext, pt)
}

func TestOpenFailsClosed(t *testing.T) {
	key, err := GenerateRootKey()
	require.NoError(t, err)
	ct, err := Seal(key, []byte("payload"))
	require.NoError(t, err)

	t.Run("tampered ciphertext", func(t *testing.T) {
		bad := append([]byte(nil), ct...)
		bad[len(bad)-1] ^= 0xff
		pt, err := Open(key, bad)
		require.ErrorIs(t, err, ErrDecryptFailed)
		require.Nil(t, pt)
	})

	t.Run("wrong key", func(t *testing.T) {
		other, err := GenerateRootKey()
		require.NoError(t, err)
		pt, err := Open(other, ct)
		require.ErrorIs(t, err, ErrDecryptFailed)
		require.Nil(t, pt)
	})

	t.Run("truncated", func(t *testing.T) {
		pt, err := Open(key, ct[:4])
		require.ErrorIs(t, err, ErrDecryptFailed)
		require.Nil(t, pt)
	})
}

func TestSealUniqueNonces(t *testing.T) {
	key, err := GenerateRootKey()
	require.NoError(t, err)
	a, err := Seal(key, []byte("x"))
	require.NoError(t, err)
	b, err := Seal(key, []byte("x"))
	require.NoError(t, err)
	require.False(t, bytes.Equal(a, b), "same plaintext must not produce the same ciphertext twice")
}

func TestSignVerify(t *testing.T) {
	pub, priv, err := GenerateSigning()
	require.NoError(t, err)

	msg := []byte("completion proof bytes")
	sig := Sign(priv, msg)
	require.True(t, Verify(pub, msg, sig))
	require.False(t, Verify(pub, []byte("other"), sig))

	otherPub, _, err := GenerateSigning()
	require.NoError(t, err)
	require.False(t, Verify(otherPub, msg, sig))
}
