package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tendermint/kms/config"
	"github.com/tendermint/kms/libs/log"
)

// MakeShowKeysCommand lists the keys of the configured providers.
func MakeShowKeysCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:     "show-keys",
		Aliases: []string{"show_keys"},
		Short:   "Show the registered signing keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			kr, err := loadKeyRing(cmd.Context(), conf, logger)
			if err != nil {
				return fmt.Errorf("couldn't load keyring: %w", err)
			}
			defer kr.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY ID\tPROVIDER\tTYPE\tADDRESS\tPUBKEY")
			for _, k := range kr.Keys() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%X\n",
					k.KeyID, k.Label, k.PubKey.Type(), k.Address, k.PubKey.Bytes())
			}
			return w.Flush()
		},
	}
}
