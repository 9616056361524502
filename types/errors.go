package types

import "errors"

var (
	// ErrAlreadySigned is returned when a signature is attached to a message
	// that already carries one.
	ErrAlreadySigned = errors.New("message is already signed")

	ErrUnknownPrefix = errors.New("unknown registration prefix")
)
