package privval

import (
	"errors"
	"fmt"

	"github.com/tendermint/kms/types"
)

var (
	// ErrDoubleSign is matched by every DoubleSignError.
	ErrDoubleSign = errors.New("refusing to sign: slot is not above the high-water-mark")

	// ErrStoreConflict means the stored HWM differs from the one the guard
	// expected to replace.
	ErrStoreConflict = errors.New("high-water-mark changed in store")
)

// DoubleSignError is an expected refusal, not a malfunction.
type DoubleSignError struct {
	ChainID string
	Slot    types.Slot
	HWM     types.Slot
}

func (e *DoubleSignError) Error() string {
	return fmt.Sprintf("double sign refused on %s: %v <= %v", e.ChainID, e.Slot, e.HWM)
}

func (e *DoubleSignError) Unwrap() error { return ErrDoubleSign }

// PersistenceError reports a malformed or unwritable HWM record. At load
// time it is fatal; after a signature it fails the request and the
// signature is discarded.
type PersistenceError struct {
	ChainID string
	Op      string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("high-water-mark %s for %s: %v", e.Op, e.ChainID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
