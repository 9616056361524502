package privval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/tendermint/kms/types"
)

func proposalSlot(h, r, pol int64) types.Slot {
	return types.Slot{Height: h, Round: r, POLRound: pol, Type: types.ProposalType}
}

func voteSlot(h, r int64, typ types.SignedMsgType) types.Slot {
	return types.Slot{Height: h, Round: r, POLRound: types.NoPOLRound, Type: typ}
}

func TestParseTieBreak(t *testing.T) {
	for _, s := range []string{"", "step", "type-code", "none"} {
		tb, err := ParseTieBreak(s)
		require.NoError(t, err)
		if s != "" {
			assert.Equal(t, s, tb.String())
		}
	}
	_, err := ParseTieBreak("random")
	require.Error(t, err)
}

func TestTieBreakCompare(t *testing.T) {
	prop := proposalSlot(5, 0, -1)
	prevote := voteSlot(5, 0, types.PrevoteType)
	precommit := voteSlot(5, 0, types.PrecommitType)

	testCases := []struct {
		name   string
		policy TieBreak
		a, b   types.Slot
		want   int
	}{
		{"height wins", TieBreakStep, voteSlot(4, 9, types.PrecommitType), prop, -1},
		{"round wins", TieBreakNone, voteSlot(5, 1, types.PrevoteType), precommit, 1},
		{"pol round between proposals", TieBreakNone, proposalSlot(5, 0, 2), proposalSlot(5, 0, 1), 1},
		{"pol round ignored against a vote", TieBreakNone, proposalSlot(5, 0, 3), prevote, 0},
		{"step: proposal before prevote", TieBreakStep, prop, prevote, -1},
		{"step: prevote before precommit", TieBreakStep, prevote, precommit, -1},
		{"type-code: prevote before precommit", TieBreakTypeCode, prevote, precommit, -1},
		{"type-code: proposal after precommit", TieBreakTypeCode, prop, precommit, 1},
		{"none: types tie", TieBreakNone, prevote, precommit, 0},
		{"equal", TieBreakStep, precommit, precommit, 0},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.policy.Compare(tc.a, tc.b))
			assert.Equal(t, -tc.want, tc.policy.Compare(tc.b, tc.a))
		})
	}
}

func slotGen() *rapid.Generator {
	return rapid.Custom(func(t *rapid.T) types.Slot {
		typ := rapid.SampledFrom([]types.SignedMsgType{
			types.ProposalType, types.PrevoteType, types.PrecommitType,
		}).Draw(t, "type").(types.SignedMsgType)
		pol := types.NoPOLRound
		if typ == types.ProposalType {
			pol = rapid.Int64Range(-1, 2).Draw(t, "pol_round").(int64)
		}
		return types.Slot{
			Height:   rapid.Int64Range(0, 3).Draw(t, "height").(int64),
			Round:    rapid.Int64Range(0, 2).Draw(t, "round").(int64),
			POLRound: pol,
			Type:     typ,
		}
	})
}

func policyGen() *rapid.Generator {
	return rapid.SampledFrom([]TieBreak{TieBreakStep, TieBreakTypeCode, TieBreakNone})
}

func TestTieBreakProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tb := policyGen().Draw(t, "policy").(TieBreak)
		a := slotGen().Draw(t, "a").(types.Slot)
		b := slotGen().Draw(t, "b").(types.Slot)

		if tb.Compare(a, b) != -tb.Compare(b, a) {
			t.Fatalf("%v: compare is not antisymmetric for %v, %v", tb, a, b)
		}
		if tb.Compare(a, a) != 0 {
			t.Fatalf("%v: %v is not equal to itself", tb, a)
		}
		// the same slot is never allowed twice
		if tb.Allows(a, a) {
			t.Fatalf("%v: %v allowed after itself", tb, a)
		}
		if a.Height != b.Height && tb.Allows(a, b) != (b.Height > a.Height) {
			t.Fatalf("%v: height does not dominate for %v, %v", tb, a, b)
		}
	})
}
