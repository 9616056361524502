package types

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/tendermint/kms/internal/libs/protoio"
)

// Canonical* wraps the structs in types for encoding them for use in
// SignBytes / the SignableMsg interface. Heights and rounds are sfixed64,
// the chain id is injected, the signature is gone.

// TimeFormat is used for generating the sigs
const TimeFormat = time.RFC3339Nano

// CanonicalProposal is the signed form of a Proposal.
type CanonicalProposal struct {
	Type      SignedMsgType
	Height    int64
	Round     int64
	POLRound  int64
	BlockID   *CanonicalBlockID
	Timestamp time.Time
	ChainID   string
}

// CanonicalVote is the signed form of a Vote.
type CanonicalVote struct {
	Type      SignedMsgType
	Height    int64
	Round     int64
	BlockID   *CanonicalBlockID
	Timestamp time.Time
	ChainID   string
}

//-----------------------------------
// Canonicalize the structs

func canonicalizeBlockIDPtr(blockID BlockID) *CanonicalBlockID {
	if blockID.IsZero() {
		return nil
	}
	cbid := CanonicalizeBlockID(blockID)
	return &cbid
}

// CanonicalizeProposal transforms the given Proposal to a CanonicalProposal.
func CanonicalizeProposal(chainID string, proposal *Proposal) *CanonicalProposal {
	return &CanonicalProposal{
		Type:      ProposalType,
		Height:    proposal.Height,
		Round:     proposal.Round,
		POLRound:  proposal.POLRound,
		BlockID:   canonicalizeBlockIDPtr(proposal.BlockID),
		Timestamp: proposal.Timestamp,
		ChainID:   chainID,
	}
}

// CanonicalizeVote transforms the given Vote to a CanonicalVote, which does
// not contain ValidatorIndex and ValidatorAddress fields.
func CanonicalizeVote(chainID string, vote *Vote) *CanonicalVote {
	return &CanonicalVote{
		Type:      vote.Type,
		Height:    vote.Height,
		Round:     vote.Round,
		BlockID:   canonicalizeBlockIDPtr(vote.BlockID),
		Timestamp: vote.Timestamp,
		ChainID:   chainID,
	}
}

// CanonicalTime can be used to stringify time in a canonical way.
func CanonicalTime(t time.Time) string {
	return t.Round(0).UTC().Format(TimeFormat)
}

// ProposalSignBytes returns the length-prefixed canonical encoding of p
// for chainID.
func ProposalSignBytes(chainID string, p *Proposal) ([]byte, error) {
	return protoio.MarshalDelimited(CanonicalizeProposal(chainID, p))
}

// VoteSignBytes returns the length-prefixed canonical encoding of v for
// chainID.
func VoteSignBytes(chainID string, v *Vote) ([]byte, error) {
	return protoio.MarshalDelimited(CanonicalizeVote(chainID, v))
}

func (m *CanonicalProposal) Reset() { *m = CanonicalProposal{} }
func (m *CanonicalProposal) ProtoMessage() {}
func (m *CanonicalProposal) String() string {
	return fmt.Sprintf("CanonicalProposal{%v %v/%v/%v %v @ %s %q}",
		m.Type, m.Height, m.Round, m.POLRound, m.BlockID, CanonicalTime(m.Timestamp), m.ChainID)
}

// Marshal encodes the proposal without a length prefix.
func (m *CanonicalProposal) Marshal() ([]byte, error) {
	var b []byte
	b = appendVarintField(b, 1, uint64(m.Type))
	b = appendSfixed64Field(b, 2, m.Height)
	b = appendSfixed64Field(b, 3, m.Round)
	b = appendSfixed64Field(b, 4, m.POLRound)
	if m.BlockID != nil {
		b = appendMessageField(b, 5, m.BlockID.marshal(), false)
	}
	b = appendTimestampField(b, 6, m.Timestamp)
	b = appendStringField(b, 7, m.ChainID)
	return b, nil
}

func (m *CanonicalProposal) Unmarshal(buf []byte) error {
	return unmarshalFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(typ, b)
			m.Type = SignedMsgType(v)
			return n, err
		case 2:
			v, n, err := consumeSfixed64(typ, b)
			m.Height = v
			return n, err
		case 3:
			v, n, err := consumeSfixed64(typ, b)
			m.Round = v
			return n, err
		case 4:
			v, n, err := consumeSfixed64(typ, b)
			m.POLRound = v
			return n, err
		case 5:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			m.BlockID = new(CanonicalBlockID)
			return n, m.BlockID.unmarshal(v)
		case 6:
			v, n, err := consumeTimestamp(typ, b)
			m.Timestamp = v
			return n, err
		case 7:
			v, n, err := consumeBytes(typ, b)
			m.ChainID = string(v)
			return n, err
		}
		return 0, nil
	})
}

// Slot returns the ordinal coordinate of the canonical proposal.
func (m *CanonicalProposal) Slot() Slot {
	return Slot{Height: m.Height, Round: m.Round, POLRound: m.POLRound, Type: ProposalType}
}

func (m *CanonicalVote) Reset() { *m = CanonicalVote{} }
func (m *CanonicalVote) ProtoMessage() {}
func (m *CanonicalVote) String() string {
	return fmt.Sprintf("CanonicalVote{%v %v/%v %v @ %s %q}",
		m.Type, m.Height, m.Round, m.BlockID, CanonicalTime(m.Timestamp), m.ChainID)
}

// Marshal encodes the vote without a length prefix.
func (m *CanonicalVote) Marshal() ([]byte, error) {
	var b []byte
	b = appendVarintField(b, 1, uint64(m.Type))
	b = appendSfixed64Field(b, 2, m.Height)
	b = appendSfixed64Field(b, 3, m.Round)
	if m.BlockID != nil {
		b = appendMessageField(b, 4, m.BlockID.marshal(), false)
	}
	b = appendTimestampField(b, 5, m.Timestamp)
	b = appendStringField(b, 6, m.ChainID)
	return b, nil
}

func (m *CanonicalVote) Unmarshal(buf []byte) error {
	return unmarshalFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(typ, b)
			m.Type = SignedMsgType(v)
			return n, err
		case 2:
			v, n, err := consumeSfixed64(typ, b)
			m.Height = v
			return n, err
		case 3:
			v, n, err := consumeSfixed64(typ, b)
			m.Round = v
			return n, err
		case 4:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			m.BlockID = new(CanonicalBlockID)
			return n, m.BlockID.unmarshal(v)
		case 5:
			v, n, err := consumeTimestamp(typ, b)
			m.Timestamp = v
			return n, err
		case 6:
			v, n, err := consumeBytes(typ, b)
			m.ChainID = string(v)
			return n, err
		}
		return 0, nil
	})
}

// Slot returns the ordinal coordinate of the canonical vote.
func (m *CanonicalVote) Slot() Slot {
	return Slot{Height: m.Height, Round: m.Round, POLRound: NoPOLRound, Type: m.Type}
}
