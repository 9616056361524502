package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/tendermint/kms/config"
	"github.com/tendermint/kms/keyring"
	"github.com/tendermint/kms/keyring/ledgertm"
	"github.com/tendermint/kms/keyring/softsign"
	"github.com/tendermint/kms/libs/log"
	"github.com/tendermint/kms/privval"
)

var defaultBackends = keyring.Backends{
	SoftSign: softsign.OpenProvider,
	LedgerTM: ledgertm.ConnectProvider,
}

// loadKeyRing registers every configured key. Keys whose provider cannot be
// reached are logged and left out.
func loadKeyRing(ctx context.Context, conf *config.Config, logger log.Logger) (*keyring.KeyRing, error) {
	kr, err := keyring.LoadFromConfig(ctx, conf.Providers, defaultBackends, logger.With("module", "keyring"))
	if kr == nil {
		return nil, err
	}
	if err != nil {
		logger.Error("some providers are unavailable", "err", err)
	}
	if kr.Len() == 0 {
		return nil, errors.New("no signing keys available")
	}
	return kr, nil
}

// openGuard opens the configured store and loads the high-water-marks of
// all configured chains. The returned store must be closed by the caller.
func openGuard(ctx context.Context, conf *config.Config, logger log.Logger) (*privval.Guard, privval.Store, error) {
	policy, err := privval.ParseTieBreak(conf.DoubleSign.TieBreak)
	if err != nil {
		return nil, nil, err
	}
	store, err := privval.NewStore(conf.DoubleSign)
	if err != nil {
		return nil, nil, fmt.Errorf("opening double-sign state: %w", err)
	}
	guard := privval.NewGuard(store, policy, logger.With("module", "guard"))
	if err := guard.Load(ctx, conf.ChainIDs()...); err != nil {
		store.Close()
		return nil, nil, err
	}
	return guard, store, nil
}

func newMetrics(conf *config.Config) *privval.Metrics {
	if conf.Instrumentation.Prometheus {
		return privval.PrometheusMetrics(conf.Instrumentation.Namespace)
	}
	return privval.NopMetrics()
}
