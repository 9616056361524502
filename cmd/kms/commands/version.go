package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendermint/kms/version"
)

const versionCommandName = "version"

// MakeVersionCommand prints the version. It runs without a config.
func MakeVersionCommand() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   versionCommandName,
		Short: "Show version info",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !verbose {
				fmt.Fprintln(cmd.OutOrStdout(), version.Version)
				return nil
			}
			values, err := json.MarshalIndent(version.Current(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(values))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show protocol versions")
	return cmd
}
