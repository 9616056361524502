package keyring

import (
	"context"
	"errors"

	"github.com/tendermint/kms/crypto"
)

var (
	// ErrProviderUnavailable means the device or session cannot be reached.
	ErrProviderUnavailable = errors.New("signing provider unavailable")

	// ErrSigningRejected means the provider was reached but did not produce
	// a valid signature.
	ErrSigningRejected = errors.New("signing rejected")
)

// Provider is a key custody backend holding exactly one key. Providers that
// own a session also implement io.Closer.
//
//go:generate mockery --case underscore --name Provider
type Provider interface {
	// PubKey fails with ErrProviderUnavailable when the backend cannot be
	// reached.
	PubKey(ctx context.Context) (crypto.PubKey, error)

	// Sign fails with ErrProviderUnavailable or ErrSigningRejected.
	Sign(ctx context.Context, msg []byte) ([]byte, error)
}
