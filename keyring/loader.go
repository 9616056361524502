package keyring

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/multierr"

	"github.com/tendermint/kms/config"
	"github.com/tendermint/kms/libs/log"
)

// Provider labels.
const (
	SoftSignLabel = "softsign"
	LedgerTMLabel = "ledgertm"
)

// Backends opens the providers named in the configuration.
type Backends struct {
	// SoftSign opens the key file at path.
	SoftSign func(path, keyType string) (Provider, error)

	// LedgerTM connects to the Ledger Tendermint app.
	LedgerTM func(ctx context.Context) (Provider, error)
}

// LoadFromConfig builds a KeyRing from cfg.
//
// More than one [[providers.ledgertm]] entry is a *ConfigError, as is a
// key registered twice; no ring is returned with those. A provider that
// fails to connect only loses its own entry: the failures are combined
// into the returned error and the ring holds every other key.
func LoadFromConfig(ctx context.Context, cfg *config.ProvidersConfig, backends Backends, logger log.Logger) (*KeyRing, error) {
	if len(cfg.LedgerTM) > 1 {
		return nil, &ConfigError{
			Section: "providers.ledgertm",
			Err:     fmt.Errorf("expected at most one instance, found %d", len(cfg.LedgerTM)),
		}
	}

	kr := New()
	var errs error

	add := func(label, keyID string, p Provider) error {
		pk, err := p.PubKey(ctx)
		if err != nil {
			closeProvider(p)
			return fmt.Errorf("%s key %q: %w", label, keyID, err)
		}
		if err := kr.Add(pk, label, keyID, p); err != nil {
			closeProvider(p)
			return &ConfigError{Section: "providers." + label, Err: err}
		}
		logger.Info("added key", "key_id", keyID, "provider", label, "address", pk.Address())
		return nil
	}

	for _, s := range cfg.SoftSign {
		if backends.SoftSign == nil {
			return nil, &ConfigError{Section: "providers.softsign", Err: errors.New("backend not available")}
		}
		p, err := backends.SoftSign(cfg.KeyFile(s), s.KeyType)
		if err != nil {
			logger.Error("failed to open softsign key", "key_id", s.KeyID, "err", err)
			errs = multierr.Append(errs, fmt.Errorf("softsign key %q: %w", s.KeyID, err))
			continue
		}
		if err := add(SoftSignLabel, s.KeyID, p); err != nil {
			var cerr *ConfigError
			if errors.As(err, &cerr) {
				_ = kr.Close()
				return nil, err
			}
			errs = multierr.Append(errs, err)
		}
	}

	for _, l := range cfg.LedgerTM {
		if backends.LedgerTM == nil {
			return nil, &ConfigError{Section: "providers.ledgertm", Err: errors.New("backend not available")}
		}
		keyID := l.KeyID
		if keyID == "" {
			keyID = config.DefaultLedgerKeyID
		}
		p, err := backends.LedgerTM(ctx)
		if err != nil {
			logger.Error("failed to connect to ledger", "key_id", keyID, "err", err)
			errs = multierr.Append(errs, fmt.Errorf("ledgertm key %q: %w", keyID, err))
			continue
		}
		if err := add(LedgerTMLabel, keyID, p); err != nil {
			var cerr *ConfigError
			if errors.As(err, &cerr) {
				_ = kr.Close()
				return nil, err
			}
			errs = multierr.Append(errs, err)
		}
	}

	return kr, errs
}

func closeProvider(p Provider) {
	if c, ok := p.(io.Closer); ok {
		_ = c.Close()
	}
}
