package types

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/kms/internal/libs/protoio"
)

var (
	testProposal *Proposal
	testStamp    = time.Date(2018, 2, 11, 7, 9, 22, 765000000, time.UTC)
	testBlockID  = BlockID{
		Hash:          []byte("hash"),
		PartSetHeader: PartSetHeader{Total: 1000000, Hash: []byte("parts_hash")},
	}
)

func init() {
	stamp, err := time.Parse(TimeFormat, "2018-02-11T07:09:22.765Z")
	if err != nil {
		panic(err)
	}
	testProposal = NewProposal(12345, 23456, -1, testBlockID, stamp)
}

func TestSignProposalRequestGolden(t *testing.T) {
	req := &SignProposalRequest{Proposal: testProposal}

	bz, err := req.MarshalBinaryLengthPrefixed()
	require.NoError(t, err)

	want := []byte{
		66, // length
		189, 228, 152, 226, // prefix
		10, 60,
		8, 32,
		16, 185, 96,
		24, 160, 183, 1,
		32, 255, 255, 255, 255, 255, 255, 255, 255, 255, 1,
		42, 24, 10, 4, 104, 97, 115, 104, 18, 16, 8, 192, 132, 61, 18, 10, 112, 97, 114, 116, 115, 95, 104, 97, 115, 104,
		50, 12, 8, 162, 216, 255, 211, 5, 16, 192, 242, 227, 236, 2,
	}
	assert.Equal(t, want, bz)
}

func TestSignProposalRequestDecode(t *testing.T) {
	encoded := []byte{
		66, 189, 228, 152, 226, 10, 60, 8, 32, 16, 185, 96, 24, 160, 183, 1, 32, 255, 255, 255, 255, 255, 255, 255, 255,
		255, 1, 42, 24, 10, 4, 104, 97, 115, 104, 18, 16, 8, 192, 132, 61, 18, 10, 112, 97, 114, 116, 115, 95, 104, 97,
		115, 104, 50, 12, 8, 162, 216, 255, 211, 5, 16, 192, 242, 227, 236, 2,
	}

	var req SignProposalRequest
	require.NoError(t, req.UnmarshalBinaryLengthPrefixed(encoded))
	require.NotNil(t, req.Proposal)
	if diff := cmp.Diff(testProposal, req.Proposal); diff != "" {
		t.Fatalf("decoded proposal mismatch (-want +got):\n%s", diff)
	}
}

func TestSignProposalRequestWrongPrefix(t *testing.T) {
	bz, err := (&SignVoteRequest{Vote: &Vote{Type: PrevoteType, Height: 1}}).MarshalBinaryLengthPrefixed()
	require.NoError(t, err)

	var req SignProposalRequest
	err = req.UnmarshalBinaryLengthPrefixed(bz)
	require.ErrorIs(t, err, ErrUnknownPrefix)
}

func TestSignProposalRequestEmptyEnvelope(t *testing.T) {
	bz, err := (&SignProposalRequest{}).MarshalBinaryLengthPrefixed()
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 189, 228, 152, 226}, bz)

	var req SignProposalRequest
	require.NoError(t, req.UnmarshalBinaryLengthPrefixed(bz))
	assert.Nil(t, req.Proposal)
	assert.ErrorIs(t, req.ValidateBasic(), ErrMissingConsensusMessage)
}

func TestProposalSignBytesGolden(t *testing.T) {
	bz, err := testProposal.SignBytes("test_chain_id")
	require.NoError(t, err)

	want := []byte{
		84,
		8, 32,
		17, 57, 48, 0, 0, 0, 0, 0, 0,
		25, 160, 91, 0, 0, 0, 0, 0, 0,
		33, 255, 255, 255, 255, 255, 255, 255, 255,
		42, 24, 10, 4, 104, 97, 115, 104, 18, 16, 10, 10, 112, 97, 114, 116, 115, 95, 104, 97, 115, 104, 16, 192, 132, 61,
		50, 12, 8, 162, 216, 255, 211, 5, 16, 192, 242, 227, 236, 2,
		58, 13, 116, 101, 115, 116, 95, 99, 104, 97, 105, 110, 95, 105, 100,
	}
	assert.Equal(t, want, bz)
}

func TestProposalSignBytesIgnoresSignature(t *testing.T) {
	signed := *testProposal
	signed.Signature = []byte("signature")

	a, err := testProposal.SignBytes("test_chain_id")
	require.NoError(t, err)
	b, err := signed.SignBytes("test_chain_id")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := testProposal.SignBytes("other_chain_id")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestCanonicalProposalRoundTrip(t *testing.T) {
	testCases := []struct {
		name     string
		proposal *Proposal
	}{
		{"golden", testProposal},
		{"zero block id", NewProposal(1, 0, -1, BlockID{}, testStamp)},
		{"zero timestamp", NewProposal(7, 3, 2, testBlockID, time.Time{})},
		{"epoch timestamp", NewProposal(7, 3, 2, testBlockID, time.Unix(0, 0).UTC())},
		{"pre-epoch timestamp", NewProposal(7, 3, 2, testBlockID, time.Date(1960, 1, 1, 0, 0, 0, 5, time.UTC))},
		{"all zero", &Proposal{Type: ProposalType}},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			bz, err := tc.proposal.SignBytes("test_chain_id")
			require.NoError(t, err)

			var decoded CanonicalProposal
			require.NoError(t, protoio.UnmarshalDelimited(bz, &decoded))

			want := CanonicalizeProposal("test_chain_id", tc.proposal)
			if diff := cmp.Diff(want, &decoded); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tc.proposal.Slot(), decoded.Slot())
		})
	}
}

func TestProposalString(t *testing.T) {
	str := testProposal.String()
	expected := `Proposal{12345/23456 (68617368:1000000:70617274735F, -1) 000000000000 @ 2018-02-11T07:09:22.765Z}`
	assert.Equal(t, expected, str)
}

func TestProposalSetSignatureOnce(t *testing.T) {
	req := &SignProposalRequest{Proposal: NewProposal(1, 0, -1, testBlockID, testStamp)}
	assert.False(t, req.HasSignature())

	require.NoError(t, req.SetSignature([]byte("first")))
	assert.True(t, req.HasSignature())

	err := req.SetSignature([]byte("second"))
	require.ErrorIs(t, err, ErrAlreadySigned)
	assert.Equal(t, []byte("first"), req.Proposal.Signature)

	require.ErrorIs(t, (&SignProposalRequest{}).SetSignature([]byte("x")), ErrMissingConsensusMessage)
	require.Error(t, (&SignProposalRequest{Proposal: &Proposal{}}).SetSignature(nil))
}

func TestProposalValidateBasic(t *testing.T) {
	testCases := []struct {
		testName string
		malleate func(*Proposal)
		expErr   error
	}{
		{"Good Proposal", func(p *Proposal) {}, nil},
		{"Invalid Type", func(p *Proposal) { p.Type = PrecommitType }, ErrInvalidMessageType},
		{"Invalid Height", func(p *Proposal) { p.Height = -1 }, ErrNegativeHeight},
		{"Invalid Round", func(p *Proposal) { p.Round = -1 }, ErrNegativeRound},
		{"Invalid POLRound", func(p *Proposal) { p.POLRound = -2 }, ErrNegativePOLRound},
		{"Type checked first", func(p *Proposal) { p.Type = UnknownType; p.Height = -1 }, ErrInvalidMessageType},
		{"Height before round", func(p *Proposal) { p.Height = -1; p.Round = -1 }, ErrNegativeHeight},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.testName, func(t *testing.T) {
			p := NewProposal(4, 2, 2, testBlockID, testStamp)
			tc.malleate(p)
			err := (&SignProposalRequest{Proposal: p}).ValidateBasic()
			if tc.expErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.expErr)
		})
	}
}
