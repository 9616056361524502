// Package ledgertm signs with the Tendermint validator app running on a
// Ledger device.
package ledgertm

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	ledger_go "github.com/zondax/ledger-go"

	"github.com/tendermint/kms/crypto"
	"github.com/tendermint/kms/crypto/ed25519"
	"github.com/tendermint/kms/keyring"
)

const (
	cla = 0x56

	insGetVersion = 0x00
	insPublicKey  = 0x01
	insSign       = 0x02

	payloadInit = 0x00
	payloadAdd  = 0x01
	payloadLast = 0x02

	// chunkSize is the largest payload the app accepts in one APDU.
	chunkSize = 250

	hardened = 0x80000000
)

// DefaultPath is the BIP32 path of the validator key, 44'/118'/0'/0'/0'.
var DefaultPath = []uint32{44 | hardened, 118 | hardened, hardened, hardened, hardened}

// Device exchanges raw APDUs with the device. The response excludes the
// status word; a non-success status is returned as an error.
type Device interface {
	Exchange(apdu []byte) ([]byte, error)
	Close() error
}

// Version of the validator app.
type Version struct {
	Mode  uint8
	Major uint8
	Minor uint8
	Patch uint8
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Provider holds an open session with the device. Exchanges are serialized.
type Provider struct {
	mtx    sync.Mutex
	dev    Device
	path   []uint32
	pubKey ed25519.PubKey

	version Version
}

var _ keyring.Provider = (*Provider)(nil)

// ConnectHID opens the first Ledger device on the USB bus.
func ConnectHID(ctx context.Context) (*Provider, error) {
	dev, err := ledger_go.NewLedgerAdmin().Connect(0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", keyring.ErrProviderUnavailable, err)
	}
	return Connect(ctx, dev)
}

// ConnectProvider is ConnectHID returning the keyring interface, for
// keyring.Backends.
func ConnectProvider(ctx context.Context) (keyring.Provider, error) {
	p, err := ConnectHID(ctx)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Connect checks that the validator app is open on dev and reads its public
// key. dev is closed if that fails.
func Connect(ctx context.Context, dev Device) (*Provider, error) {
	p := &Provider{dev: dev, path: DefaultPath}

	if err := p.connect(ctx); err != nil {
		_ = dev.Close()
		return nil, err
	}
	return p, nil
}

func (p *Provider) connect(ctx context.Context) error {
	resp, err := p.exchange(ctx, insGetVersion, 0, nil)
	if err != nil {
		return err
	}
	if len(resp) < 4 {
		return fmt.Errorf("%w: short version response (%d bytes)", keyring.ErrProviderUnavailable, len(resp))
	}
	p.version = Version{Mode: resp[0], Major: resp[1], Minor: resp[2], Patch: resp[3]}

	resp, err = p.exchange(ctx, insPublicKey, 0, serializePath(p.path))
	if err != nil {
		return err
	}
	pk, err := ed25519.NewPubKey(resp)
	if err != nil {
		return fmt.Errorf("%w: %v", keyring.ErrProviderUnavailable, err)
	}
	p.pubKey = pk
	return nil
}

// Version returns the app version read at connect time.
func (p *Provider) Version() Version { return p.version }

// PubKey returns the key read at connect time.
func (p *Provider) PubKey(ctx context.Context) (crypto.PubKey, error) {
	return p.pubKey, nil
}

// Sign sends msg in chunks: the BIP32 path first, then the message. The
// device shows the vote to the operator on the first use.
func (p *Provider) Sign(ctx context.Context, msg []byte) ([]byte, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	chunks := [][]byte{serializePath(p.path)}
	for len(msg) > chunkSize {
		chunks = append(chunks, msg[:chunkSize])
		msg = msg[chunkSize:]
	}
	chunks = append(chunks, msg)

	var resp []byte
	for i, chunk := range chunks {
		p1 := byte(payloadAdd)
		switch {
		case i == 0:
			p1 = payloadInit
		case i == len(chunks)-1:
			p1 = payloadLast
		}

		var err error
		resp, err = p.exchangeLocked(ctx, insSign, p1, chunk)
		if err != nil {
			return nil, err
		}
	}

	if len(resp) != ed25519.SignatureSize {
		return nil, fmt.Errorf("%w: signature of %d bytes", keyring.ErrSigningRejected, len(resp))
	}
	return resp, nil
}

// Close ends the session.
func (p *Provider) Close() error {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.dev.Close()
}

func (p *Provider) exchange(ctx context.Context, ins, p1 byte, data []byte) ([]byte, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.exchangeLocked(ctx, ins, p1, data)
}

func (p *Provider) exchangeLocked(ctx context.Context, ins, p1 byte, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", keyring.ErrProviderUnavailable, err)
	}
	apdu := make([]byte, 0, 5+len(data))
	apdu = append(apdu, cla, ins, p1, 0, byte(len(data)))
	apdu = append(apdu, data...)

	resp, err := p.dev.Exchange(apdu)
	if err != nil {
		if ins == insSign && isRefusal(err) {
			return nil, fmt.Errorf("%w: %v", keyring.ErrSigningRejected, err)
		}
		return nil, fmt.Errorf("%w: %v", keyring.ErrProviderUnavailable, err)
	}
	return resp, nil
}

// appUnavailable are the status words meaning the validator app is not the
// one answering.
var appUnavailable = map[string]bool{
	ledger_go.ErrorMessage(0x6E00): true,
	ledger_go.ErrorMessage(0x6E01): true,
}

// isRefusal reports whether err carries a status word from the app, as
// opposed to a failure of the USB transport. ledger-go only surfaces the
// status word through the error text.
func isRefusal(err error) bool {
	msg := err.Error()
	if appUnavailable[msg] {
		return false
	}
	return strings.HasPrefix(msg, "[APDU_CODE_") ||
		strings.HasPrefix(msg, "APDU_CODE_") ||
		strings.HasPrefix(msg, "Error code: ")
}

// serializePath encodes the path as a component count followed by
// little-endian components.
func serializePath(path []uint32) []byte {
	bz := make([]byte, 1+4*len(path))
	bz[0] = byte(len(path))
	for i, c := range path {
		binary.LittleEndian.PutUint32(bz[1+4*i:], c)
	}
	return bz
}
