package keyring_test

import (
	"context"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/tendermint/kms/crypto"
	"github.com/tendermint/kms/crypto/ed25519"
	"github.com/tendermint/kms/keyring"
	"github.com/tendermint/kms/keyring/mocks"
	"github.com/tendermint/kms/keyring/softsign"
)

func newSoftKey(t *testing.T) (crypto.PubKey, *softsign.Provider) {
	t.Helper()
	priv, err := ed25519.GenPrivKeyFromReader(rand.Reader)
	require.NoError(t, err)
	return priv.PubKey(), softsign.NewProvider(priv)
}

func TestKeyRingAdd(t *testing.T) {
	kr := keyring.New()
	pk1, p1 := newSoftKey(t)
	pk2, p2 := newSoftKey(t)

	require.NoError(t, kr.Add(pk1, keyring.SoftSignLabel, "a", p1))

	err := kr.Add(pk2, keyring.SoftSignLabel, "a", p2)
	require.ErrorIs(t, err, keyring.ErrDuplicateKey)

	err = kr.Add(pk1, keyring.SoftSignLabel, "b", p1)
	require.ErrorIs(t, err, keyring.ErrDuplicateKey)

	require.Error(t, kr.Add(pk2, keyring.SoftSignLabel, "", p2))

	require.NoError(t, kr.Add(pk2, keyring.SoftSignLabel, "b", p2))
	require.Equal(t, 2, kr.Len())

	keys := kr.Keys()
	require.Len(t, keys, 2)
	assert.Equal(t, "a", keys[0].KeyID)
	assert.Equal(t, pk1.Address(), keys[0].Address)
	assert.Equal(t, "b", keys[1].KeyID)
}

func TestKeyRingSignResolution(t *testing.T) {
	ctx := context.Background()
	msg := []byte("sign me")

	kr := keyring.New()
	_, err := kr.Sign(ctx, "", msg)
	require.ErrorIs(t, err, keyring.ErrKeyNotFound)

	pk1, p1 := newSoftKey(t)
	require.NoError(t, kr.Add(pk1, keyring.SoftSignLabel, "a", p1))

	// a single key is the default
	sig, err := kr.Sign(ctx, "", msg)
	require.NoError(t, err)
	assert.True(t, pk1.VerifySignature(msg, sig))

	pk, err := kr.PubKey("")
	require.NoError(t, err)
	assert.True(t, pk.Equals(pk1))

	pk2, p2 := newSoftKey(t)
	require.NoError(t, kr.Add(pk2, keyring.SoftSignLabel, "b", p2))

	_, err = kr.Sign(ctx, "", msg)
	require.ErrorIs(t, err, keyring.ErrAmbiguousKey)

	_, err = kr.Sign(ctx, "c", msg)
	require.ErrorIs(t, err, keyring.ErrKeyNotFound)

	sig, err = kr.Sign(ctx, "b", msg)
	require.NoError(t, err)
	assert.True(t, pk2.VerifySignature(msg, sig))
	assert.False(t, pk1.VerifySignature(msg, sig))
}

func TestKeyRingProviderErrors(t *testing.T) {
	ctx := context.Background()
	msg := []byte("sign me")
	pk, _ := newSoftKey(t)

	testCases := map[string]struct {
		sig       []byte
		err       error
		expectErr error
	}{
		"unavailable":     {nil, keyring.ErrProviderUnavailable, keyring.ErrProviderUnavailable},
		"rejected":        {nil, keyring.ErrSigningRejected, keyring.ErrSigningRejected},
		"unclassified":    {nil, errors.New("usb reset"), keyring.ErrProviderUnavailable},
		"wrong signature": {make([]byte, ed25519.SignatureSize), nil, keyring.ErrSigningRejected},
	}

	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			p := mocks.NewProvider(t)
			p.On("Sign", mock.Anything, msg).Return(tc.sig, tc.err).Once()

			kr := keyring.New()
			require.NoError(t, kr.Add(pk, "mock", "k", p))

			_, err := kr.Sign(ctx, "k", msg)
			require.ErrorIs(t, err, tc.expectErr)
		})
	}
}

func TestKeyRingSerializesProviderCalls(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	pk, soft := newSoftKey(t)

	var (
		inFlight int32
		maxSeen  int32
		ch       = make(chan int32, 64)
	)
	p := mocks.NewProvider(t)
	p.On("Sign", mock.Anything, mock.Anything).Return(
		func(ctx context.Context, msg []byte) []byte {
			inFlight++
			ch <- inFlight
			time.Sleep(time.Millisecond)
			inFlight--
			sig, _ := soft.Sign(ctx, msg)
			return sig
		},
		nil,
	)

	kr := keyring.New()
	require.NoError(t, kr.Add(pk, "mock", "k", p))

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 16; i++ {
		msg := []byte{byte(i)}
		g.Go(func() error {
			_, err := kr.Sign(ctx, "k", msg)
			return err
		})
	}
	require.NoError(t, g.Wait())
	close(ch)
	for n := range ch {
		if n > maxSeen {
			maxSeen = n
		}
	}
	assert.EqualValues(t, 1, maxSeen)
}

func TestKeyRingSignContextCanceled(t *testing.T) {
	pk, p := newSoftKey(t)
	kr := keyring.New()
	require.NoError(t, kr.Add(pk, keyring.SoftSignLabel, "k", p))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := kr.Sign(ctx, "k", []byte("msg"))
	require.ErrorIs(t, err, keyring.ErrProviderUnavailable)
}

type closingProvider struct {
	*softsign.Provider
	closed bool
}

func (c *closingProvider) Close() error {
	c.closed = true
	return nil
}

func TestKeyRingClose(t *testing.T) {
	pk, p := newSoftKey(t)
	cp := &closingProvider{Provider: p}

	kr := keyring.New()
	require.NoError(t, kr.Add(pk, keyring.SoftSignLabel, "k", cp))
	require.NoError(t, kr.Close())
	assert.True(t, cp.closed)
	assert.Equal(t, 0, kr.Len())
}
