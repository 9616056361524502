package types

import "fmt"

// NoPOLRound is the pol_round of a proposal without a proof-of-lock round.
// Votes are mapped onto it as well.
const NoPOLRound int64 = -1

// Slot is the coordinate within consensus at which signing is decided.
// Block content is irrelevant to it.
type Slot struct {
	Height   int64
	Round    int64
	POLRound int64
	Type     SignedMsgType
}

// IsProposal reports whether the slot belongs to a proposal.
func (s Slot) IsProposal() bool {
	return s.Type == ProposalType
}

func (s Slot) String() string {
	return fmt.Sprintf("%d/%d/%d/%v", s.Height, s.Round, s.POLRound, s.Type)
}
