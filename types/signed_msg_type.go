package types

import "fmt"

// SignedMsgType is a type of signed message in the consensus.
type SignedMsgType uint32

const (
	UnknownType SignedMsgType = 0x00

	// Votes
	PrevoteType   SignedMsgType = 0x01
	PrecommitType SignedMsgType = 0x02

	// Proposals
	ProposalType SignedMsgType = 0x20
)

// Consensus steps a message can be signed in. StepNone distinguishes the
// initial state.
const (
	StepNone      int8 = 0
	StepPropose   int8 = 1
	StepPrevote   int8 = 2
	StepPrecommit int8 = 3
)

// IsVoteTypeValid returns true if t is a valid vote type.
func IsVoteTypeValid(t SignedMsgType) bool {
	switch t {
	case PrevoteType, PrecommitType:
		return true
	default:
		return false
	}
}

// Step returns the consensus step the message type is signed in.
func (t SignedMsgType) Step() int8 {
	switch t {
	case ProposalType:
		return StepPropose
	case PrevoteType:
		return StepPrevote
	case PrecommitType:
		return StepPrecommit
	default:
		return StepNone
	}
}

func (t SignedMsgType) String() string {
	switch t {
	case ProposalType:
		return "Proposal"
	case PrevoteType:
		return "Prevote"
	case PrecommitType:
		return "Precommit"
	default:
		return fmt.Sprintf("SignedMsgType(%d)", uint32(t))
	}
}

// StepToVoteType maps a prevote or precommit step to its vote type.
func StepToVoteType(step int8) (SignedMsgType, error) {
	switch step {
	case StepPrevote:
		return PrevoteType, nil
	case StepPrecommit:
		return PrecommitType, nil
	default:
		return UnknownType, fmt.Errorf("unknown vote step: %v", step)
	}
}
