package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendermint/kms/config"
	"github.com/tendermint/kms/libs/log"
	"github.com/tendermint/kms/privval"
	"github.com/tendermint/kms/types"
)

// MakeLedgerCommand constructs the `ledger` command group.
func MakeLedgerCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Commands for the Ledger Tendermint app",
	}
	cmd.AddCommand(makeLedgerInitCommand(conf, logger))
	return cmd
}

type ledgerInitFlags struct {
	height  int64
	round   int64
	step    int8
	chainID string
	keyID   string
}

func makeLedgerInitCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	var flags ledgerInitFlags

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the height/round/step the device will sign from",
		Long: `Signs a single vote at the given height, round and step through the
full signing pipeline. The device and the double-sign state both record it,
so nothing at or below that position can be signed afterwards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ledgerInit(cmd, conf, logger, flags)
		},
	}
	cmd.Flags().Int64Var(&flags.height, "height", 0, "height to initialize at")
	cmd.Flags().Int64Var(&flags.round, "round", 0, "round to initialize at")
	cmd.Flags().Int8Var(&flags.step, "step", types.StepPrecommit, "step to initialize at (2 prevote, 3 precommit)")
	cmd.Flags().StringVar(&flags.chainID, "chain-id", "", "chain id (default: the first configured validator)")
	cmd.Flags().StringVar(&flags.keyID, "key-id", "", "key id (default: the key of the chain's validator)")
	if err := cmd.MarkFlagRequired("height"); err != nil {
		panic(err)
	}
	return cmd
}

func ledgerInit(cmd *cobra.Command, conf *config.Config, logger log.Logger, flags ledgerInitFlags) error {
	ctx := cmd.Context()

	chainID, keyID := flags.chainID, flags.keyID
	if chainID == "" {
		if len(conf.Validators) == 0 {
			return errors.New("no [[validator]] configured and no --chain-id given")
		}
		chainID = conf.Validators[0].ChainID
	}
	if keyID == "" {
		if v := conf.Validator(chainID); v != nil {
			keyID = v.KeyID
		}
	}

	voteType, err := types.StepToVoteType(flags.step)
	if err != nil {
		return err
	}

	kr, err := loadKeyRing(ctx, conf, logger)
	if err != nil {
		return fmt.Errorf("couldn't load keyring: %w", err)
	}
	defer kr.Close()

	guard, store, err := openGuard(ctx, conf, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	pubKey, err := kr.PubKey(keyID)
	if err != nil {
		return err
	}

	kms := privval.NewKMS(logger.With("module", "privval"), conf.DoubleSign, guard, kr, newMetrics(conf))
	vote := &types.Vote{
		Type:             voteType,
		Height:           flags.height,
		Round:            flags.round,
		Timestamp:        time.Now().UTC(),
		ValidatorAddress: pubKey.Address(),
	}
	if _, err := kms.SignVote(ctx, chainID, keyID, vote); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s at height %d, round %d, step %d (%v)\n",
		chainID, flags.height, flags.round, flags.step, voteType)
	return nil
}
