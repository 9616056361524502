package types

import (
	"bytes"
	"crypto/sha256"
	"fmt"
)

// Registered names of the remote signer request envelopes.
const (
	SignProposalRequestName = "tendermint/remotesigner/SignProposalRequest"
	SignVoteRequestName     = "tendermint/remotesigner/SignVoteRequest"
)

var (
	signProposalRequestPrefix = namePrefix(SignProposalRequestName)
	signVoteRequestPrefix     = namePrefix(SignVoteRequestName)
)

// namePrefix derives the 4 byte registration prefix of a concrete type the
// way go-amino does: hash the name, drop leading zero bytes, drop the 3
// disambiguation bytes, drop zero bytes again, keep the next 4.
func namePrefix(name string) []byte {
	hash := sha256.Sum256([]byte(name))
	bz := hash[:]
	for bz[0] == 0x00 {
		bz = bz[1:]
	}
	bz = bz[3:]
	for bz[0] == 0x00 {
		bz = bz[1:]
	}
	return append([]byte(nil), bz[:4]...)
}

func trimPrefix(buf, prefix []byte) ([]byte, error) {
	if len(buf) < len(prefix) || !bytes.Equal(buf[:len(prefix)], prefix) {
		n := len(prefix)
		if len(buf) < n {
			n = len(buf)
		}
		return nil, fmt.Errorf("%w: want %X, got %X", ErrUnknownPrefix, prefix, buf[:n])
	}
	return buf[len(prefix):], nil
}
