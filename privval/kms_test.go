package privval

import (
	"context"
	"crypto/rand"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"
	"golang.org/x/sync/errgroup"

	"github.com/tendermint/kms/config"
	"github.com/tendermint/kms/crypto"
	"github.com/tendermint/kms/crypto/ed25519"
	"github.com/tendermint/kms/keyring"
	"github.com/tendermint/kms/keyring/mocks"
	"github.com/tendermint/kms/keyring/softsign"
	"github.com/tendermint/kms/libs/log"
	"github.com/tendermint/kms/types"
)

const testKeyID = "validator"

type testKMS struct {
	*KMS
	pubKey crypto.PubKey
	store  *faultyStore
}

func newTestKMS(t *testing.T, provider keyring.Provider, pubKey crypto.PubKey) *testKMS {
	t.Helper()

	if provider == nil {
		priv, err := ed25519.GenPrivKeyFromReader(rand.Reader)
		require.NoError(t, err)
		provider, pubKey = softsign.NewProvider(priv), priv.PubKey()
	}
	kr := keyring.New()
	require.NoError(t, kr.Add(pubKey, keyring.SoftSignLabel, testKeyID, provider))

	store := &faultyStore{Store: NewDBStore(dbm.NewMemDB())}
	guard := NewGuard(store, TieBreakStep, log.TestingLogger())
	cfg := config.TestDoubleSignConfig()

	return &testKMS{
		KMS:    NewKMS(log.TestingLogger(), cfg, guard, kr, NopMetrics()),
		pubKey: pubKey,
		store:  store,
	}
}

func testProposal(height, round int64) *types.Proposal {
	ts := time.Date(2018, 2, 11, 7, 9, 22, 765000000, time.UTC)
	return types.NewProposal(height, round, -1, types.BlockID{
		Hash:          []byte("hash"),
		PartSetHeader: types.PartSetHeader{Total: 1, Hash: []byte("parts_hash")},
	}, ts)
}

func testVote(typ types.SignedMsgType, height, round int64) *types.Vote {
	return &types.Vote{
		Type:      typ,
		Height:    height,
		Round:     round,
		Timestamp: time.Date(2018, 2, 11, 7, 9, 22, 765000000, time.UTC),
	}
}

func TestKMSSignsAndRefusesReplay(t *testing.T) {
	ctx := context.Background()
	k := newTestKMS(t, nil, nil)

	p := testProposal(12345, 0)
	state, err := k.SignProposal(ctx, testChainID, testKeyID, p)
	require.NoError(t, err)
	assert.Equal(t, StateReturned, state)

	signBytes, err := p.SignBytes(testChainID)
	require.NoError(t, err)
	assert.True(t, k.pubKey.VerifySignature(signBytes, p.Signature))

	// the same slot again, even with different content
	again := testProposal(12345, 0)
	again.BlockID.Hash = []byte("other")
	state, err = k.SignProposal(ctx, testChainID, testKeyID, again)
	require.ErrorIs(t, err, ErrDoubleSign)
	assert.Equal(t, StateRejectedDoubleSign, state)
	assert.Empty(t, again.Signature)

	// votes of the same round follow the proposal
	v := testVote(types.PrevoteType, 12345, 0)
	state, err = k.SignVote(ctx, testChainID, "", v)
	require.NoError(t, err)
	assert.Equal(t, StateReturned, state)
	assert.NotEmpty(t, v.Signature)
}

func TestKMSRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	k := newTestKMS(t, nil, nil)

	testCases := map[string]struct {
		chainID string
		msg     types.SignableMsg
		err     error
	}{
		"nil message":    {testChainID, nil, types.ErrMissingConsensusMessage},
		"empty envelope": {testChainID, &types.SignVoteRequest{}, types.ErrMissingConsensusMessage},
		"negative round": {testChainID, &types.SignVoteRequest{Vote: testVote(types.PrevoteType, 1, -1)}, types.ErrNegativeRound},
		"wrong type":     {testChainID, &types.SignProposalRequest{Proposal: &types.Proposal{Type: types.PrevoteType}}, types.ErrInvalidMessageType},
		"bad chain id":   {"../x", &types.SignVoteRequest{Vote: testVote(types.PrevoteType, 1, 0)}, nil},
	}

	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			state, err := k.Sign(ctx, tc.chainID, testKeyID, tc.msg)
			require.Error(t, err)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
			}
			assert.Equal(t, StateRejectedInvalid, state)
		})
	}

	// nothing reached the guard
	_, found, err := k.Guard().HWM(ctx, testChainID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestKMSRejectsAlreadySigned(t *testing.T) {
	k := newTestKMS(t, nil, nil)
	v := testVote(types.PrecommitType, 2, 0)
	v.Signature = []byte("sig")

	state, err := k.SignVote(context.Background(), testChainID, testKeyID, v)
	require.ErrorIs(t, err, types.ErrAlreadySigned)
	assert.Equal(t, StateRejectedInvalid, state)
	assert.Equal(t, []byte("sig"), []byte(v.Signature))
}

func TestKMSProviderFailureLeavesSlotAvailable(t *testing.T) {
	ctx := context.Background()
	priv, err := ed25519.GenPrivKeyFromReader(rand.Reader)
	require.NoError(t, err)
	soft := softsign.NewProvider(priv)

	p := mocks.NewProvider(t)
	p.On("Sign", mock.Anything, mock.Anything).Return(nil, keyring.ErrProviderUnavailable).Once()
	p.On("Sign", mock.Anything, mock.Anything).Return(
		func(ctx context.Context, msg []byte) []byte {
			sig, _ := soft.Sign(ctx, msg)
			return sig
		}, nil).Once()

	k := newTestKMS(t, p, priv.PubKey())

	v := testVote(types.PrecommitType, 7, 1)
	state, err := k.SignVote(ctx, testChainID, testKeyID, v)
	require.ErrorIs(t, err, keyring.ErrProviderUnavailable)
	assert.Equal(t, StateRejectedProviderError, state)

	_, found, err := k.Guard().HWM(ctx, testChainID)
	require.NoError(t, err)
	assert.False(t, found)

	state, err = k.SignVote(ctx, testChainID, testKeyID, v)
	require.NoError(t, err)
	assert.Equal(t, StateReturned, state)
}

func TestKMSSignTimeout(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	priv, err := ed25519.GenPrivKeyFromReader(rand.Reader)
	require.NoError(t, err)

	release := make(chan struct{})
	p := mocks.NewProvider(t)
	p.On("Sign", mock.Anything, mock.Anything).Return(
		func(context.Context, []byte) []byte {
			<-release // ignores its context
			return nil
		},
		errors.New("too late"),
	)

	k := newTestKMS(t, p, priv.PubKey())
	k.signTimeout = 10 * time.Millisecond

	state, err := k.SignVote(context.Background(), testChainID, testKeyID, testVote(types.PrevoteType, 1, 0))
	require.ErrorIs(t, err, keyring.ErrProviderUnavailable)
	assert.Contains(t, err.Error(), context.DeadlineExceeded.Error())
	assert.Equal(t, StateRejectedProviderError, state)
	close(release)

	// the slot was released
	_, found, err := k.Guard().HWM(context.Background(), testChainID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestKMSCommitFailureDiscardsSignature(t *testing.T) {
	ctx := context.Background()
	k := newTestKMS(t, nil, nil)
	k.store.set(errors.New("read-only file system"), nil)

	v := testVote(types.PrecommitType, 3, 0)
	state, err := k.SignVote(ctx, testChainID, testKeyID, v)
	var perr *PersistenceError
	require.True(t, errors.As(err, &perr), "got %v", err)
	assert.Equal(t, StateCommitFailed, state)
	assert.Empty(t, v.Signature)

	// the slot is burnt even though it never reached the store
	k.store.set(nil, nil)
	state, err = k.SignVote(ctx, testChainID, testKeyID, testVote(types.PrecommitType, 3, 0))
	require.ErrorIs(t, err, ErrDoubleSign)
	assert.Equal(t, StateRejectedDoubleSign, state)
}

func TestKMSCommitIgnoresCancellation(t *testing.T) {
	k := newTestKMS(t, nil, nil)

	// the caller gives up while the high-water mark is being written
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	k.store.onWrite(cancel)

	v := testVote(types.PrevoteType, 4, 0)
	state, err := k.SignVote(ctx, testChainID, testKeyID, v)
	require.NoError(t, err)
	assert.Equal(t, StateReturned, state)
	require.Error(t, ctx.Err())

	signBytes, err := v.SignBytes(testChainID)
	require.NoError(t, err)
	assert.True(t, k.pubKey.VerifySignature(signBytes, v.Signature))

	hwm, found, err := k.store.Get(testChainID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, v.Slot(), hwm)
	assert.EqualValues(t, 1, atomic.LoadInt32(&k.store.writes))
}

func TestKMSHandleRequest(t *testing.T) {
	k := newTestKMS(t, nil, nil)

	req := &types.SignProposalRequest{Proposal: testProposal(100, 2)}
	bz, err := req.MarshalBinaryLengthPrefixed()
	require.NoError(t, err)

	out, state, err := k.HandleRequest(context.Background(), testChainID, testKeyID, bz)
	require.NoError(t, err)
	assert.Equal(t, StateReturned, state)

	var signed types.SignProposalRequest
	require.NoError(t, signed.UnmarshalBinaryLengthPrefixed(out))
	require.NotNil(t, signed.Proposal)
	signBytes, err := signed.Proposal.SignBytes(testChainID)
	require.NoError(t, err)
	assert.True(t, k.pubKey.VerifySignature(signBytes, signed.Proposal.Signature))

	_, state, err = k.HandleRequest(context.Background(), testChainID, testKeyID, bz)
	require.ErrorIs(t, err, ErrDoubleSign)
	assert.Equal(t, StateRejectedDoubleSign, state)

	_, state, err = k.HandleRequest(context.Background(), testChainID, testKeyID, []byte{5, 1, 2, 3, 4, 5})
	require.ErrorIs(t, err, types.ErrUnknownPrefix)
	assert.Equal(t, StateRejectedInvalid, state)
}

func TestKMSConcurrentRequests(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	k := newTestKMS(t, nil, nil)
	chains := []string{"chain-a", "chain-b", "chain-c"}

	var signed, refused int32
	g, ctx := errgroup.WithContext(context.Background())
	for _, chainID := range chains {
		for h := int64(1); h <= 5; h++ {
			for i := 0; i < 4; i++ {
				chainID, h := chainID, h
				g.Go(func() error {
					v := testVote(types.PrecommitType, h, 0)
					state, err := k.SignVote(ctx, chainID, testKeyID, v)
					switch state {
					case StateReturned:
						atomic.AddInt32(&signed, 1)
					case StateRejectedDoubleSign:
						atomic.AddInt32(&refused, 1)
					default:
						return err
					}
					return nil
				})
			}
		}
	}
	require.NoError(t, g.Wait())

	// every slot is signed at most once per chain
	assert.LessOrEqual(t, signed, int32(len(chains)*5))
	assert.GreaterOrEqual(t, signed, int32(len(chains)))
	assert.EqualValues(t, len(chains)*5*4, signed+refused)

	for _, chainID := range chains {
		hwm, found, err := k.Guard().HWM(context.Background(), chainID)
		require.NoError(t, err)
		require.True(t, found)
		assert.LessOrEqual(t, hwm.Height, int64(5))
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "returned", StateReturned.String())
	assert.Equal(t, "rejected_double_sign", StateRejectedDoubleSign.String())
	assert.Equal(t, "State(99)", State(99).String())
}
