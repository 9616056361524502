package commands

import (
	"github.com/spf13/cobra"

	"github.com/tendermint/kms/config"
	"github.com/tendermint/kms/libs/log"
	kmsos "github.com/tendermint/kms/libs/os"
)

// MakeInitCommand writes a default config file and creates the
// double-sign state directory.
func MakeInitCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initializes a KMS home directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return initFiles(conf, logger)
		},
	}
}

func initFiles(conf *config.Config, logger log.Logger) error {
	configFile := config.ConfigFilePath(conf.RootDir)
	if kmsos.FileExists(configFile) {
		logger.Info("Found config file", "path", configFile)
	} else {
		if err := config.WriteConfigFile(conf.RootDir, conf); err != nil {
			return err
		}
		logger.Info("Generated config file", "path", configFile)
	}

	if conf.DoubleSign.Backend == config.BackendMemDB {
		return nil
	}
	stateDir := conf.DoubleSign.StateDirPath()
	if err := kmsos.EnsureDir(stateDir, 0700); err != nil {
		return err
	}
	logger.Info("Using state directory", "path", stateDir)
	return nil
}
