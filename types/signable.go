package types

import "errors"

// SignableMsg is a consensus message awaiting a signature.
// SignBytes strips signatures before serializing.
// NOTE: chainIDs are part of the SignBytes but not
// necessarily the object themselves.
type SignableMsg interface {
	ValidateBasic() error
	SignBytes(chainID string) ([]byte, error)
	Slot() Slot
	MsgType() SignedMsgType
	HasSignature() bool
	SetSignature(sig []byte) error

	MarshalBinaryLengthPrefixed() ([]byte, error)
}

// DecodeSignRequest decodes a length-prefixed request envelope of either
// kind, telling them apart by their registration prefix.
func DecodeSignRequest(bz []byte) (SignableMsg, error) {
	p := new(SignProposalRequest)
	err := p.UnmarshalBinaryLengthPrefixed(bz)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrUnknownPrefix) {
		return nil, err
	}

	v := new(SignVoteRequest)
	if err := v.UnmarshalBinaryLengthPrefixed(bz); err != nil {
		return nil, err
	}
	return v, nil
}
