package keyring

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/semaphore"

	"github.com/tendermint/kms/crypto"
)

// KeyInfo describes a registered key.
type KeyInfo struct {
	KeyID   string
	Label   string
	PubKey  crypto.PubKey
	Address crypto.Address
}

type entry struct {
	keyID    string
	label    string
	pubKey   crypto.PubKey
	provider Provider

	// one in-flight call per provider
	sem *semaphore.Weighted
}

// KeyRing maps key ids to the providers that hold them. It owns the
// providers and closes them in Close.
type KeyRing struct {
	mtx     sync.RWMutex
	entries map[string]*entry
}

// New returns an empty KeyRing.
func New() *KeyRing {
	return &KeyRing{entries: make(map[string]*entry)}
}

// Add registers provider under keyID. label names the backend kind.
// Registering a key id or public key twice fails with ErrDuplicateKey.
func (kr *KeyRing) Add(pubKey crypto.PubKey, label, keyID string, provider Provider) error {
	if keyID == "" {
		return errors.New("key id can't be empty")
	}
	if pubKey == nil || provider == nil {
		return errors.New("public key and provider are required")
	}

	kr.mtx.Lock()
	defer kr.mtx.Unlock()

	if _, ok := kr.entries[keyID]; ok {
		return fmt.Errorf("%w: key id %q", ErrDuplicateKey, keyID)
	}
	for _, e := range kr.entries {
		if e.pubKey.Equals(pubKey) {
			return fmt.Errorf("%w: %v is already registered as %q", ErrDuplicateKey, pubKey.Address(), e.keyID)
		}
	}
	kr.entries[keyID] = &entry{
		keyID:    keyID,
		label:    label,
		pubKey:   pubKey,
		provider: provider,
		sem:      semaphore.NewWeighted(1),
	}
	return nil
}

func (kr *KeyRing) resolve(keyID string) (*entry, error) {
	kr.mtx.RLock()
	defer kr.mtx.RUnlock()

	if keyID != "" {
		e, ok := kr.entries[keyID]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, keyID)
		}
		return e, nil
	}

	switch len(kr.entries) {
	case 0:
		return nil, fmt.Errorf("%w: keyring is empty", ErrKeyNotFound)
	case 1:
		for _, e := range kr.entries {
			return e, nil
		}
	}
	return nil, ErrAmbiguousKey
}

// Sign signs msg with keyID, or with the only key when keyID is empty. The
// signature is checked against the registered public key before it is
// returned.
func (kr *KeyRing) Sign(ctx context.Context, keyID string, msg []byte) ([]byte, error) {
	e, err := kr.resolve(keyID)
	if err != nil {
		return nil, err
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("key %s: %w: %v", e.keyID, ErrProviderUnavailable, err)
	}
	defer e.sem.Release(1)

	sig, err := e.provider.Sign(ctx, msg)
	if err != nil {
		if errors.Is(err, ErrProviderUnavailable) || errors.Is(err, ErrSigningRejected) {
			return nil, fmt.Errorf("key %s: %w", e.keyID, err)
		}
		return nil, fmt.Errorf("key %s: %w: %v", e.keyID, ErrProviderUnavailable, err)
	}
	if !e.pubKey.VerifySignature(msg, sig) {
		return nil, fmt.Errorf("key %s: %w: signature does not verify", e.keyID, ErrSigningRejected)
	}
	return sig, nil
}

// PubKey returns the public key of keyID, or of the only key when keyID is
// empty.
func (kr *KeyRing) PubKey(keyID string) (crypto.PubKey, error) {
	e, err := kr.resolve(keyID)
	if err != nil {
		return nil, err
	}
	return e.pubKey, nil
}

// Keys lists the registered keys sorted by key id.
func (kr *KeyRing) Keys() []KeyInfo {
	kr.mtx.RLock()
	defer kr.mtx.RUnlock()

	keys := make([]KeyInfo, 0, len(kr.entries))
	for _, e := range kr.entries {
		keys = append(keys, KeyInfo{
			KeyID:   e.keyID,
			Label:   e.label,
			PubKey:  e.pubKey,
			Address: e.pubKey.Address(),
		})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].KeyID < keys[j].KeyID })
	return keys
}

// Len returns the number of registered keys.
func (kr *KeyRing) Len() int {
	kr.mtx.RLock()
	defer kr.mtx.RUnlock()
	return len(kr.entries)
}

// Close closes every provider that implements io.Closer and empties the
// ring.
func (kr *KeyRing) Close() error {
	kr.mtx.Lock()
	defer kr.mtx.Unlock()

	var err error
	for id, e := range kr.entries {
		if c, ok := e.provider.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
		delete(kr.entries, id)
	}
	return err
}
