package privval

import (
	"fmt"

	"github.com/tendermint/kms/config"
	"github.com/tendermint/kms/types"
)

// TieBreak decides how message types order within one
// height/round/pol_round.
type TieBreak int

const (
	// TieBreakStep orders by consensus step: proposal, prevote, precommit.
	TieBreakStep TieBreak = iota
	// TieBreakTypeCode orders by the numeric message type, which puts
	// proposals after both vote types.
	TieBreakTypeCode
	// TieBreakNone never breaks a tie, so only one message may be signed
	// per height/round/pol_round.
	TieBreakNone
)

// ParseTieBreak maps a config value to a TieBreak. The empty string selects
// the default.
func ParseTieBreak(s string) (TieBreak, error) {
	switch s {
	case config.TieBreakStep, "":
		return TieBreakStep, nil
	case config.TieBreakTypeCode:
		return TieBreakTypeCode, nil
	case config.TieBreakNone:
		return TieBreakNone, nil
	default:
		return 0, fmt.Errorf("unknown tie-break %q", s)
	}
}

func (tb TieBreak) String() string {
	switch tb {
	case TieBreakStep:
		return config.TieBreakStep
	case TieBreakTypeCode:
		return config.TieBreakTypeCode
	case TieBreakNone:
		return config.TieBreakNone
	default:
		return fmt.Sprintf("TieBreak(%d)", int(tb))
	}
}

// Compare orders two slots lexicographically by height, round, pol_round
// and message type. pol_round only takes part when both slots are
// proposals; a vote has no pol_round of its own.
func (tb TieBreak) Compare(a, b types.Slot) int {
	if c := cmpInt64(a.Height, b.Height); c != 0 {
		return c
	}
	if c := cmpInt64(a.Round, b.Round); c != 0 {
		return c
	}
	if a.IsProposal() && b.IsProposal() {
		if c := cmpInt64(a.POLRound, b.POLRound); c != 0 {
			return c
		}
	}
	switch tb {
	case TieBreakStep:
		return cmpInt64(int64(a.Type.Step()), int64(b.Type.Step()))
	case TieBreakTypeCode:
		return cmpInt64(int64(a.Type), int64(b.Type))
	default:
		return 0
	}
}

// Allows reports whether candidate may be signed after hwm.
func (tb TieBreak) Allows(hwm, candidate types.Slot) bool {
	return tb.Compare(candidate, hwm) > 0
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
