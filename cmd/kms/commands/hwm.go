package commands

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tendermint/kms/config"
	"github.com/tendermint/kms/libs/log"
	"github.com/tendermint/kms/privval"
)

// MakeHWMCommand constructs the `hwm` command group.
func MakeHWMCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hwm",
		Short: "Inspect the double-sign high-water-marks",
	}
	cmd.AddCommand(makeHWMShowCommand(conf, logger))
	return cmd
}

func makeHWMShowCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	var chainID string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the persisted high-water-mark of each chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := privval.NewStore(conf.DoubleSign)
			if err != nil {
				return fmt.Errorf("opening double-sign state: %w", err)
			}
			defer store.Close()

			chainIDs, err := hwmChains(conf, store, chainID)
			if err != nil {
				return err
			}
			logger.Debug("showing high-water-marks", "chains", chainList(chainIDs))

			out := cmd.OutOrStdout()
			for _, id := range chainIDs {
				slot, ok, err := store.Get(id)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintf(out, "%s: none\n", id)
					continue
				}
				fmt.Fprintf(out, "%s: height=%d round=%d pol_round=%d type=%v\n",
					id, slot.Height, slot.Round, slot.POLRound, slot.Type)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&chainID, "chain-id", "", "only show this chain")
	return cmd
}

// hwmChains returns the configured chains together with every chain the
// store has a record for.
func hwmChains(conf *config.Config, store privval.Store, chainID string) ([]string, error) {
	if chainID != "" {
		if err := config.ValidateChainID(chainID); err != nil {
			return nil, err
		}
		return []string{chainID}, nil
	}

	seen := make(map[string]struct{})
	for _, id := range conf.ChainIDs() {
		seen[id] = struct{}{}
	}
	if lister, ok := store.(privval.ChainLister); ok {
		ids, err := lister.Chains()
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil, errors.New("no chains configured or stored")
	}

	chainIDs := make([]string, 0, len(seen))
	for id := range seen {
		chainIDs = append(chainIDs, id)
	}
	sort.Strings(chainIDs)
	return chainIDs, nil
}

func chainList(ids []string) string {
	if len(ids) == 0 {
		return "none"
	}
	return strings.Join(ids, ",")
}
