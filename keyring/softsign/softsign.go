// Package softsign holds a validator key in process memory, read from a key
// file on disk.
package softsign

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/creachadair/atomicfile"

	"github.com/tendermint/kms/crypto"
	"github.com/tendermint/kms/crypto/ed25519"
	"github.com/tendermint/kms/crypto/secp256k1"
	"github.com/tendermint/kms/keyring"
)

// keyFile is the on-disk form of a key.
type keyFile struct {
	KeyType string `json:"key_type"`
	PrivKey []byte `json:"priv_key"`
}

// Provider signs with a private key held in memory.
type Provider struct {
	privKey crypto.PrivKey
}

var _ keyring.Provider = (*Provider)(nil)

// NewProvider wraps privKey.
func NewProvider(privKey crypto.PrivKey) *Provider {
	return &Provider{privKey: privKey}
}

// Open reads the key file at path. keyType, when set, must match the type
// recorded in the file.
func Open(path, keyType string) (*Provider, error) {
	bz, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", keyring.ErrProviderUnavailable, err)
	}

	var kf keyFile
	dec := json.NewDecoder(bytes.NewReader(bz))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&kf); err != nil {
		return nil, fmt.Errorf("reading key file %s: %w", path, err)
	}
	if keyType != "" && keyType != kf.KeyType {
		return nil, fmt.Errorf("key file %s holds a %s key, configured as %s", path, kf.KeyType, keyType)
	}

	privKey, err := parsePrivKey(kf.KeyType, kf.PrivKey)
	if err != nil {
		return nil, fmt.Errorf("key file %s: %w", path, err)
	}
	return NewProvider(privKey), nil
}

// OpenProvider is Open returning the keyring interface, for
// keyring.Backends.
func OpenProvider(path, keyType string) (keyring.Provider, error) {
	p, err := Open(path, keyType)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func parsePrivKey(keyType string, bz []byte) (crypto.PrivKey, error) {
	switch keyType {
	case ed25519.KeyType:
		switch len(bz) {
		case ed25519.SeedSize:
			return ed25519.PrivKeyFromSeed(bz)
		case ed25519.PrivateKeySize:
			pk, err := ed25519.PrivKeyFromSeed(bz[:ed25519.SeedSize])
			if err != nil {
				return nil, err
			}
			if !bytes.Equal(pk.Bytes(), bz) {
				return nil, fmt.Errorf("ed25519 key does not match its seed")
			}
			return pk, nil
		default:
			return nil, fmt.Errorf("invalid ed25519 key size %d", len(bz))
		}
	case secp256k1.KeyType:
		return secp256k1.NewPrivKey(bz)
	default:
		return nil, fmt.Errorf("unknown key type %q", keyType)
	}
}

// WriteKeyFile stores privKey at path with owner-only permissions,
// replacing any existing file atomically.
func WriteKeyFile(path string, privKey crypto.PrivKey) error {
	bz, err := json.MarshalIndent(keyFile{
		KeyType: privKey.Type(),
		PrivKey: privKey.Bytes(),
	}, "", "  ")
	if err != nil {
		return err
	}
	_, err = atomicfile.WriteAll(path, bytes.NewReader(bz), 0600)
	return err
}

func (p *Provider) PubKey(ctx context.Context) (crypto.PubKey, error) {
	return p.privKey.PubKey(), nil
}

func (p *Provider) Sign(ctx context.Context, msg []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", keyring.ErrProviderUnavailable, err)
	}
	sig, err := p.privKey.Sign(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", keyring.ErrSigningRejected, err)
	}
	return sig, nil
}
