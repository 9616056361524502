package types

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	tmbytes "github.com/tendermint/kms/libs/bytes"
)

// PartSetHeader identifies the parts a block was split into.
type PartSetHeader struct {
	Total int64            `json:"total"`
	Hash  tmbytes.HexBytes `json:"hash"`
}

// IsZero returns true if the header carries neither parts nor a hash.
func (psh PartSetHeader) IsZero() bool {
	return psh.Total == 0 && len(psh.Hash) == 0
}

// String returns a string representation of PartSetHeader.
//
// 1. total number of parts
// 2. first 6 bytes of the hash
func (psh PartSetHeader) String() string {
	return fmt.Sprintf("%v:%X", psh.Total, tmbytes.Fingerprint(psh.Hash))
}

// ValidateBasic performs basic validation.
func (psh PartSetHeader) ValidateBasic() error {
	if psh.Total < 0 {
		return errors.New("negative Total")
	}
	return nil
}

func (psh PartSetHeader) marshal() []byte {
	var b []byte
	b = appendVarintField(b, 1, uint64(psh.Total))
	b = appendBytesField(b, 2, psh.Hash)
	return b
}

func (psh *PartSetHeader) unmarshal(buf []byte) error {
	return unmarshalFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(typ, b)
			psh.Total = int64(v)
			return n, err
		case 2:
			v, n, err := consumeBytes(typ, b)
			psh.Hash = v
			return n, err
		}
		return 0, nil
	})
}

// BlockID references a block by its hash and part set header.
type BlockID struct {
	Hash          tmbytes.HexBytes `json:"hash"`
	PartSetHeader PartSetHeader    `json:"parts"`
}

// IsZero returns true if this is the BlockID of a nil block.
func (blockID BlockID) IsZero() bool {
	return len(blockID.Hash) == 0 && blockID.PartSetHeader.IsZero()
}

// ValidateBasic performs basic validation.
func (blockID BlockID) ValidateBasic() error {
	if err := blockID.PartSetHeader.ValidateBasic(); err != nil {
		return fmt.Errorf("wrong PartSetHeader: %w", err)
	}
	return nil
}

// String returns a human readable representation of the BlockID.
//
// 1. hash
// 2. part set header
func (blockID BlockID) String() string {
	return fmt.Sprintf(`%v:%v`, blockID.Hash, blockID.PartSetHeader)
}

func (blockID BlockID) marshal() []byte {
	var b []byte
	b = appendBytesField(b, 1, blockID.Hash)
	b = appendMessageField(b, 2, blockID.PartSetHeader.marshal(), false)
	return b
}

func (blockID *BlockID) unmarshal(buf []byte) error {
	return unmarshalFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeBytes(typ, b)
			blockID.Hash = v
			return n, err
		case 2:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			return n, blockID.PartSetHeader.unmarshal(v)
		}
		return 0, nil
	})
}

// CanonicalPartSetHeader is the signed form of a PartSetHeader. The hash
// precedes the total on the wire.
type CanonicalPartSetHeader struct {
	Hash  tmbytes.HexBytes `json:"hash,omitempty"`
	Total int64            `json:"total,omitempty"`
}

func (psh CanonicalPartSetHeader) marshal() []byte {
	var b []byte
	b = appendBytesField(b, 1, psh.Hash)
	b = appendVarintField(b, 2, uint64(psh.Total))
	return b
}

func (psh *CanonicalPartSetHeader) unmarshal(buf []byte) error {
	return unmarshalFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeBytes(typ, b)
			psh.Hash = v
			return n, err
		case 2:
			v, n, err := consumeVarint(typ, b)
			psh.Total = int64(v)
			return n, err
		}
		return 0, nil
	})
}

// CanonicalBlockID is the signed form of a BlockID.
type CanonicalBlockID struct {
	Hash          tmbytes.HexBytes       `json:"hash,omitempty"`
	PartSetHeader CanonicalPartSetHeader `json:"parts,omitempty"`
}

func (blockID CanonicalBlockID) marshal() []byte {
	var b []byte
	b = appendBytesField(b, 1, blockID.Hash)
	b = appendMessageField(b, 2, blockID.PartSetHeader.marshal(), false)
	return b
}

func (blockID *CanonicalBlockID) unmarshal(buf []byte) error {
	return unmarshalFields(buf, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeBytes(typ, b)
			blockID.Hash = v
			return n, err
		case 2:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			return n, blockID.PartSetHeader.unmarshal(v)
		}
		return 0, nil
	})
}

// CanonicalizeBlockID maps a BlockID onto its signed form.
func CanonicalizeBlockID(blockID BlockID) CanonicalBlockID {
	return CanonicalBlockID{
		Hash: blockID.Hash,
		PartSetHeader: CanonicalPartSetHeader{
			Hash:  blockID.PartSetHeader.Hash,
			Total: blockID.PartSetHeader.Total,
		},
	}
}
