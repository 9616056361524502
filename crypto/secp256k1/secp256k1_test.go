package secp256k1

import (
	"crypto/rand"
	"testing"

	secp256k1 "github.com/btcsuite/btcd/btcec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func genPrivKey(t *testing.T) PrivKey {
	t.Helper()
	priv, err := secp256k1.NewPrivateKey(secp256k1.S256())
	require.NoError(t, err)
	bz := make([]byte, PrivKeySize)
	d := priv.D.Bytes()
	copy(bz[PrivKeySize-len(d):], d)
	pk, err := NewPrivKey(bz)
	require.NoError(t, err)
	return pk
}

// Ensure that signature verification works, and that
// non-canonical signatures fail.
func TestSignatureVerificationAndRejectUpperS(t *testing.T) {
	msg := []byte("We have lingered long enough on the shores of the cosmic ocean.")
	for i := 0; i < 100; i++ {
		priv := genPrivKey(t)
		sigStr, err := priv.Sign(msg)
		require.NoError(t, err)
		sig := signatureFromBytes(sigStr)
		require.False(t, sig.S.Cmp(secp256k1halfN) > 0)

		pub := priv.PubKey()
		require.True(t, pub.VerifySignature(msg, sigStr))

		// malleate:
		sig.S.Sub(secp256k1.S256().CurveParams.N, sig.S)
		require.True(t, sig.S.Cmp(secp256k1halfN) > 0)
		malSigStr := serializeSig(sig)

		require.False(t, pub.VerifySignature(msg, malSigStr),
			"VerifySignature incorrect with malleated & invalid S. sig=%v, key=%v",
			sig,
			priv,
		)
	}
}

func TestPubKeyParsing(t *testing.T) {
	priv := genPrivKey(t)
	pub := priv.PubKey()
	require.Len(t, pub.Bytes(), PubKeySize)
	assert.Len(t, pub.Address(), 20)

	parsed, err := NewPubKey(pub.Bytes())
	require.NoError(t, err)
	assert.True(t, parsed.Equals(pub))

	_, err = NewPubKey(pub.Bytes()[1:])
	require.Error(t, err)

	garbage := make([]byte, PubKeySize)
	_, _ = rand.Read(garbage)
	garbage[0] = 0x07
	_, err = NewPubKey(garbage)
	require.Error(t, err)
}

func TestNewPrivKeyRange(t *testing.T) {
	_, err := NewPrivKey(make([]byte, PrivKeySize))
	require.Error(t, err)
	_, err = NewPrivKey(secp256k1N.Bytes())
	require.Error(t, err)
	_, err = NewPrivKey([]byte{1})
	require.Error(t, err)
}
