package types

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/tendermint/kms/internal/libs/protoio"
	tmbytes "github.com/tendermint/kms/libs/bytes"
)

// Proposal defines a block proposal for the consensus.
// It refers to the block by BlockID field.
// It may depend on votes from a previous round, a so-called Proof-of-Lock
// (POL) round, as noted in the POLRound.
// If POLRound >= 0, then BlockID corresponds to the block that is locked in POLRound.
type Proposal struct {
	Type      SignedMsgType `json:"type"`
	Height    int64         `json:"height"`
	Round     int64         `json:"round"`
	POLRound  int64         `json:"pol_round"` // -1 if null.
	BlockID   BlockID       `json:"block_id"`
	Timestamp time.Time     `json:"timestamp"`
	Signature []byte        `json:"signature"`
}

// NewProposal returns a new Proposal.
// If there is no POLRound, polRound should be -1.
func NewProposal(height, round, polRound int64, blockID BlockID, ts time.Time) *Proposal {
	return &Proposal{
		Type:      ProposalType,
		Height:    height,
		Round:     round,
		BlockID:   blockID,
		POLRound:  polRound,
		Timestamp: ts,
	}
}

// ValidateBasic performs basic validation. Checks run in a fixed order and
// the first failure is returned as a *ValidationError.
func (p *Proposal) ValidateBasic() error {
	if p.Type != ProposalType {
		return newValidationError(InvalidMessageType, "expected %v, got %v", ProposalType, p.Type)
	}
	if err := validateSlotFields(p.Height, p.Round); err != nil {
		return err
	}
	if p.POLRound < NoPOLRound {
		return newValidationError(NegativePOLRound, "%d (exception: -1)", p.POLRound)
	}
	return nil
}

// String returns a string representation of the Proposal.
//
// 1. height
// 2. round
// 3. block ID
// 4. POL round
// 5. first 6 bytes of signature
// 6. timestamp
func (p *Proposal) String() string {
	return fmt.Sprintf("Proposal{%v/%v (%v, %v) %X @ %s}",
		p.Height,
		p.Round,
		p.BlockID,
		p.POLRound,
		tmbytes.Fingerprint(p.Signature),
		CanonicalTime(p.Timestamp))
}

// SignBytes returns the Proposal bytes for signing.
func (p *Proposal) SignBytes(chainID string) ([]byte, error) {
	return ProposalSignBytes(chainID, p)
}

// Slot returns the coordinate the proposal is signed at.
func (p *Proposal) Slot() Slot {
	return Slot{Height: p.Height, Round: p.Round, POLRound: p.POLRound, Type: p.Type}
}

func (p *Proposal) marshal() []byte {
	var b []byte
	b = appendVarintField(b, 1, uint64(p.Type))
	b = appendVarintField(b, 2, uint64(p.Height))
	b = appendVarintField(b, 3, uint64(p.Round))
	b = appendVarintField(b, 4, uint64(p.POLRound))
	b = appendMessageField(b, 5, p.BlockID.marshal(), false)
	b = appendTimestampField(b, 6, p.Timestamp)
	b = appendBytesField(b, 7, p.Signature)
	return b
}

func (p *Proposal) unmarshal(buf []byte) error {
	return unmarshalFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(typ, b)
			p.Type = SignedMsgType(v)
			return n, err
		case 2:
			v, n, err := consumeVarint(typ, b)
			p.Height = int64(v)
			return n, err
		case 3:
			v, n, err := consumeVarint(typ, b)
			p.Round = int64(v)
			return n, err
		case 4:
			v, n, err := consumeVarint(typ, b)
			p.POLRound = int64(v)
			return n, err
		case 5:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			return n, p.BlockID.unmarshal(v)
		case 6:
			v, n, err := consumeTimestamp(typ, b)
			p.Timestamp = v
			return n, err
		case 7:
			v, n, err := consumeBytes(typ, b)
			p.Signature = v
			return n, err
		}
		return 0, nil
	})
}

//-----------------------------------------------------------------------------

// SignProposalRequest is the remote signer envelope around a proposal. A
// nil Proposal is the empty envelope.
type SignProposalRequest struct {
	Proposal *Proposal
}

var _ SignableMsg = (*SignProposalRequest)(nil)

// ValidateBasic checks the envelope and the proposal it carries.
func (r *SignProposalRequest) ValidateBasic() error {
	if r == nil || r.Proposal == nil {
		return ErrMissingConsensusMessage
	}
	return r.Proposal.ValidateBasic()
}

// SignBytes returns the canonical bytes of the carried proposal.
func (r *SignProposalRequest) SignBytes(chainID string) ([]byte, error) {
	if r.Proposal == nil {
		return nil, ErrMissingConsensusMessage
	}
	return r.Proposal.SignBytes(chainID)
}

func (r *SignProposalRequest) Slot() Slot {
	if r.Proposal == nil {
		return Slot{POLRound: NoPOLRound, Type: ProposalType}
	}
	return r.Proposal.Slot()
}

func (r *SignProposalRequest) MsgType() SignedMsgType {
	if r.Proposal == nil {
		return ProposalType
	}
	return r.Proposal.Type
}

func (r *SignProposalRequest) HasSignature() bool {
	return r != nil && r.Proposal != nil && len(r.Proposal.Signature) > 0
}

// SetSignature attaches sig to the proposal. It succeeds once per message.
func (r *SignProposalRequest) SetSignature(sig []byte) error {
	if r.Proposal == nil {
		return ErrMissingConsensusMessage
	}
	if len(sig) == 0 {
		return errors.New("empty signature")
	}
	if len(r.Proposal.Signature) > 0 {
		return ErrAlreadySigned
	}
	r.Proposal.Signature = append([]byte(nil), sig...)
	return nil
}

func (r *SignProposalRequest) Reset()        { *r = SignProposalRequest{} }
func (r *SignProposalRequest) ProtoMessage() {}
func (r *SignProposalRequest) String() string {
	if r.Proposal == nil {
		return "SignProposalRequest{nil}"
	}
	return fmt.Sprintf("SignProposalRequest{%v}", r.Proposal)
}

// Marshal encodes the registered envelope: prefix followed by the fields.
func (r *SignProposalRequest) Marshal() ([]byte, error) {
	b := append([]byte(nil), signProposalRequestPrefix...)
	if r.Proposal != nil {
		b = appendMessageField(b, 1, r.Proposal.marshal(), true)
	}
	return b, nil
}

func (r *SignProposalRequest) Unmarshal(buf []byte) error {
	body, err := trimPrefix(buf, signProposalRequestPrefix)
	if err != nil {
		return err
	}
	return unmarshalFields(body, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return 0, nil
		}
		v, n, err := consumeBytes(typ, b)
		if err != nil {
			return 0, err
		}
		r.Proposal = new(Proposal)
		return n, r.Proposal.unmarshal(v)
	})
}

// MarshalBinaryLengthPrefixed returns the historical remote signer wire form
// of the request.
func (r *SignProposalRequest) MarshalBinaryLengthPrefixed() ([]byte, error) {
	return protoio.MarshalDelimited(r)
}

// UnmarshalBinaryLengthPrefixed decodes the output of
// MarshalBinaryLengthPrefixed.
func (r *SignProposalRequest) UnmarshalBinaryLengthPrefixed(bz []byte) error {
	return protoio.UnmarshalDelimited(bz, r)
}
