package types

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/tendermint/kms/internal/libs/protoio"
	tmbytes "github.com/tendermint/kms/libs/bytes"
)

const nilVoteStr string = "nil-Vote"

// Vote represents a prevote or precommit from a validator.
type Vote struct {
	Type             SignedMsgType    `json:"type"`
	Height           int64            `json:"height"`
	Round            int64            `json:"round"`
	BlockID          BlockID          `json:"block_id"` // zero if vote is nil.
	Timestamp        time.Time        `json:"timestamp"`
	ValidatorAddress tmbytes.HexBytes `json:"validator_address"`
	ValidatorIndex   int64            `json:"validator_index"`
	Signature        []byte           `json:"signature"`
}

// ValidateBasic performs basic validation. Checks run in a fixed order and
// the first failure is returned as a *ValidationError.
func (vote *Vote) ValidateBasic() error {
	if !IsVoteTypeValid(vote.Type) {
		return newValidationError(InvalidMessageType, "expected a vote type, got %v", vote.Type)
	}
	return validateSlotFields(vote.Height, vote.Round)
}

// SignBytes returns the proto-encoding of the canonicalized Vote, for
// signing. Only the canonical fields are signed over.
func (vote *Vote) SignBytes(chainID string) ([]byte, error) {
	return VoteSignBytes(chainID, vote)
}

// Slot returns the coordinate the vote is signed at. Votes carry no POL
// round.
func (vote *Vote) Slot() Slot {
	return Slot{Height: vote.Height, Round: vote.Round, POLRound: NoPOLRound, Type: vote.Type}
}

// String returns a string representation of Vote.
//
// 1. validator index
// 2. first 6 bytes of validator address
// 3. height
// 4. round,
// 5. type byte
// 6. type string
// 7. first 6 bytes of block hash
// 8. first 6 bytes of signature
// 9. timestamp
func (vote *Vote) String() string {
	if vote == nil {
		return nilVoteStr
	}

	return fmt.Sprintf("Vote{%v:%X %v/%02d/%v(%v) %X %X @ %s}",
		vote.ValidatorIndex,
		tmbytes.Fingerprint(vote.ValidatorAddress),
		vote.Height,
		vote.Round,
		uint32(vote.Type),
		vote.Type,
		tmbytes.Fingerprint(vote.BlockID.Hash),
		tmbytes.Fingerprint(vote.Signature),
		CanonicalTime(vote.Timestamp),
	)
}

func (vote *Vote) marshal() []byte {
	var b []byte
	b = appendVarintField(b, 1, uint64(vote.Type))
	b = appendVarintField(b, 2, uint64(vote.Height))
	b = appendVarintField(b, 3, uint64(vote.Round))
	b = appendMessageField(b, 4, vote.BlockID.marshal(), false)
	b = appendTimestampField(b, 5, vote.Timestamp)
	b = appendBytesField(b, 6, vote.ValidatorAddress)
	b = appendVarintField(b, 7, uint64(vote.ValidatorIndex))
	b = appendBytesField(b, 8, vote.Signature)
	return b
}

func (vote *Vote) unmarshal(buf []byte) error {
	return unmarshalFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(typ, b)
			vote.Type = SignedMsgType(v)
			return n, err
		case 2:
			v, n, err := consumeVarint(typ, b)
			vote.Height = int64(v)
			return n, err
		case 3:
			v, n, err := consumeVarint(typ, b)
			vote.Round = int64(v)
			return n, err
		case 4:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			return n, vote.BlockID.unmarshal(v)
		case 5:
			v, n, err := consumeTimestamp(typ, b)
			vote.Timestamp = v
			return n, err
		case 6:
			v, n, err := consumeBytes(typ, b)
			vote.ValidatorAddress = v
			return n, err
		case 7:
			v, n, err := consumeVarint(typ, b)
			vote.ValidatorIndex = int64(v)
			return n, err
		case 8:
			v, n, err := consumeBytes(typ, b)
			vote.Signature = v
			return n, err
		}
		return 0, nil
	})
}

//-----------------------------------------------------------------------------

// SignVoteRequest is the remote signer envelope around a vote. A nil Vote
// is the empty envelope.
type SignVoteRequest struct {
	Vote *Vote
}

var _ SignableMsg = (*SignVoteRequest)(nil)

// ValidateBasic checks the envelope and the vote it carries.
func (r *SignVoteRequest) ValidateBasic() error {
	if r == nil || r.Vote == nil {
		return ErrMissingConsensusMessage
	}
	return r.Vote.ValidateBasic()
}

// SignBytes returns the canonical bytes of the carried vote.
func (r *SignVoteRequest) SignBytes(chainID string) ([]byte, error) {
	if r.Vote == nil {
		return nil, ErrMissingConsensusMessage
	}
	return r.Vote.SignBytes(chainID)
}

func (r *SignVoteRequest) Slot() Slot {
	if r.Vote == nil {
		return Slot{POLRound: NoPOLRound}
	}
	return r.Vote.Slot()
}

func (r *SignVoteRequest) MsgType() SignedMsgType {
	if r.Vote == nil {
		return UnknownType
	}
	return r.Vote.Type
}

func (r *SignVoteRequest) HasSignature() bool {
	return r != nil && r.Vote != nil && len(r.Vote.Signature) > 0
}

// SetSignature attaches sig to the vote. It succeeds once per message.
func (r *SignVoteRequest) SetSignature(sig []byte) error {
	if r.Vote == nil {
		return ErrMissingConsensusMessage
	}
	if len(sig) == 0 {
		return errors.New("empty signature")
	}
	if len(r.Vote.Signature) > 0 {
		return ErrAlreadySigned
	}
	r.Vote.Signature = append([]byte(nil), sig...)
	return nil
}

func (r *SignVoteRequest) Reset()        { *r = SignVoteRequest{} }
func (r *SignVoteRequest) ProtoMessage() {}
func (r *SignVoteRequest) String() string {
	return fmt.Sprintf("SignVoteRequest{%v}", r.Vote)
}

// Marshal encodes the registered envelope: prefix followed by the fields.
func (r *SignVoteRequest) Marshal() ([]byte, error) {
	b := append([]byte(nil), signVoteRequestPrefix...)
	if r.Vote != nil {
		b = appendMessageField(b, 1, r.Vote.marshal(), true)
	}
	return b, nil
}

func (r *SignVoteRequest) Unmarshal(buf []byte) error {
	body, err := trimPrefix(buf, signVoteRequestPrefix)
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
		r.Vote = new(Vote)
		return n, r.Vote.unmarshal(v)
	})
}

// MarshalBinaryLengthPrefixed returns the historical remote signer wire form
// of the request.
func (r *SignVoteRequest) MarshalBinaryLengthPrefixed() ([]byte, error) {
	return protoio.MarshalDelimited(r)
}

// UnmarshalBinaryLengthPrefixed decodes the output of
// MarshalBinaryLengthPrefixed.
func (r *SignVoteRequest) UnmarshalBinaryLengthPrefixed(bz []byte) error {
	return protoio.UnmarshalDelimited(bz, r)
}
